package mockexport

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medstream-labs/export-analytics-cli/internal/dto"
)

type Handler struct {
	catalog *Catalog
	router  *gin.Engine
	log     *zap.Logger
}

func NewHandler(catalog *Catalog, log *zap.Logger) *Handler {
	h := &Handler{
		catalog: catalog,
		router:  gin.Default(),
		log:     log,
	}

	h.registerRoutes()

	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.router.GET("/health", h.healthCheck)
	h.router.GET("/api/export/:export_id", h.getExport)
	h.router.GET("/api/export/:export_id/:download_id/data", h.getDownloadData)
}

// healthCheck handles health check requests
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, dto.HealthResponse{Status: "ok"})
}

// getExport handles GET /api/export/:export_id
func (h *Handler) getExport(c *gin.Context) {
	exportID := c.Param("export_id")

	spec, ok := h.catalog.Get(exportID)
	if !ok {
		h.log.Warn("Unknown export requested",
			zap.String("export_id", exportID))
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "unknown_export",
			Message: fmt.Sprintf("export %q does not exist", exportID),
		})
		return
	}

	h.log.Info("Export resolved",
		zap.String("export_id", exportID),
		zap.Int("downloads", spec.Downloads))

	c.JSON(http.StatusOK, dto.ExportDownloadsResponse{
		Data: dto.ExportDownloadsData{DownloadIDs: spec.DownloadIDs()},
	})
}

// getDownloadData handles GET /api/export/:export_id/:download_id/data
func (h *Handler) getDownloadData(c *gin.Context) {
	exportID := c.Param("export_id")

	spec, ok := h.catalog.Get(exportID)
	if !ok {
		h.log.Warn("Unknown export requested",
			zap.String("export_id", exportID))
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "unknown_export",
			Message: fmt.Sprintf("export %q does not exist", exportID),
		})
		return
	}

	downloadID, err := uuid.Parse(c.Param("download_id"))
	if err != nil {
		h.log.Warn("Invalid download id",
			zap.String("export_id", exportID),
			zap.String("download_id", c.Param("download_id")))
		c.JSON(http.StatusBadRequest, dto.ErrorResponse{
			Error:   "invalid_download_id",
			Message: err.Error(),
		})
		return
	}

	fileIndex, ok := spec.IndexOf(downloadID)
	if !ok {
		h.log.Warn("Unknown download requested",
			zap.String("export_id", exportID),
			zap.String("download_id", downloadID.String()))
		c.JSON(http.StatusNotFound, dto.ErrorResponse{
			Error:   "unknown_download",
			Message: fmt.Sprintf("download %s is not part of export %q", downloadID, exportID),
		})
		return
	}

	h.log.Info("Streaming download",
		zap.String("export_id", exportID),
		zap.String("download_id", downloadID.String()),
		zap.Int("file_index", fileIndex))

	c.Header("Content-Type", "text/csv")
	c.Status(http.StatusOK)

	if err := spec.WriteCSV(c.Writer, fileIndex); err != nil {
		// Headers are gone by now; all we can do is log and drop the
		// connection mid stream.
		h.log.Error("Failed to stream download",
			zap.String("export_id", exportID),
			zap.String("download_id", downloadID.String()),
			zap.Error(err))
	}
}
