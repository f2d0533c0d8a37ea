// Package main provides a standalone export server that serves synthetic
// exports for local runs and load testing.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	"github.com/medstream-labs/export-analytics-cli/internal/config"
	"github.com/medstream-labs/export-analytics-cli/internal/logger"
	"github.com/medstream-labs/export-analytics-cli/internal/mockexport"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log, err := logger.New(cfg.Service.Environment)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer func(log *zap.Logger) {
		err := log.Sync()
		if err != nil {
			log.Error("Failed to sync logger", zap.Error(err))
		}
	}(log)

	log.Info("Starting mock export server",
		zap.String("environment", cfg.Service.Environment),
		zap.String("port", cfg.Mock.Port))

	catalog := mockexport.DefaultCatalog()
	if cfg.Mock.CatalogPath != "" {
		catalog, err = mockexport.LoadCatalog(cfg.Mock.CatalogPath)
		if err != nil {
			log.Fatal("Failed to load export catalog", zap.Error(err))
		}
		log.Info("Export catalog loaded", zap.String("path", cfg.Mock.CatalogPath))
	}

	for _, name := range catalog.Names() {
		spec, _ := catalog.Get(name)
		log.Info("Export available",
			zap.String("export_id", name),
			zap.Int("downloads", spec.Downloads),
			zap.String("rows", humanize.Comma(spec.TotalRows())))
	}

	h := mockexport.NewHandler(catalog, log)

	var root http.Handler = h
	if cfg.Mock.Gzip {
		root = gzhttp.GzipHandler(h)
		log.Info("Response compression enabled")
	}

	server := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Mock.Port),
		Handler: root,
	}

	go func() {
		log.Info("Mock export server starting", zap.String("address", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start mock export server", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down mock export server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Failed to shut down cleanly", zap.Error(err))
	}
}
