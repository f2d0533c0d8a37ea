package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzhttp"
	"go.uber.org/zap"

	envConfig "github.com/medstream-labs/export-analytics-cli/internal/config"
	"github.com/medstream-labs/export-analytics-cli/internal/dto"
	"github.com/medstream-labs/export-analytics-cli/internal/export"
)

// Client talks to the export provider's HTTP API
type Client struct {
	httpClient       *http.Client
	baseURL          string
	discoveryTimeout time.Duration
	readStallTimeout time.Duration
	log              *zap.Logger
}

// NewClient creates a new export API client. Responses are transparently
// gunzipped when the server compresses them.
func NewClient(cfg envConfig.Export, log *zap.Logger) *Client {
	httpClient := &http.Client{
		Transport: gzhttp.Transport(http.DefaultTransport),
	}

	log.Info("Export API client created",
		zap.String("base_url", cfg.BaseURL))

	return &Client{
		httpClient:       httpClient,
		baseURL:          strings.TrimRight(cfg.BaseURL, "/"),
		discoveryTimeout: time.Duration(cfg.DiscoveryTimeoutSec) * time.Second,
		readStallTimeout: time.Duration(cfg.ReadStallTimeoutSec) * time.Second,
		log:              log,
	}
}

// Downloads resolves an export id into the ordered download ids of its files.
func (c *Client) Downloads(ctx context.Context, exportID string) ([]uuid.UUID, error) {
	if c.discoveryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.discoveryTimeout)
		defer cancel()
	}

	endpoint := fmt.Sprintf("%s/api/export/%s", c.baseURL, url.PathEscape(exportID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &export.DiscoveryError{ExportID: exportID, Reason: "building request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Error("Export discovery request failed",
			zap.String("export_id", exportID),
			zap.Error(err))
		return nil, &export.DiscoveryError{ExportID: exportID, Reason: "request failed", Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, &export.DiscoveryError{ExportID: exportID, Reason: statusReason(resp)}
	}

	var payload dto.ExportDownloadsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &export.DiscoveryError{ExportID: exportID, Reason: "decoding response", Err: err}
	}

	c.log.Info("Export resolved",
		zap.String("export_id", exportID),
		zap.Int("downloads", len(payload.Data.DownloadIDs)))

	return payload.Data.DownloadIDs, nil
}

// OpenDownload opens the CSV stream of one download. The returned reader
// aborts the request when no bytes arrive within the stall window, so a
// silently dead connection cannot hang the run forever.
func (c *Client) OpenDownload(ctx context.Context, exportID string, downloadID uuid.UUID) (io.ReadCloser, error) {
	endpoint := fmt.Sprintf("%s/api/export/%s/%s/data", c.baseURL, url.PathEscape(exportID), downloadID)

	reqCtx, cancel := context.WithCancel(ctx)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, endpoint, nil)
	if err != nil {
		cancel()
		return nil, &export.TransportError{ExportID: exportID, DownloadID: downloadID, Reason: "building request", Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		cancel()
		c.log.Error("Download request failed",
			zap.String("export_id", exportID),
			zap.String("download_id", downloadID.String()),
			zap.Error(err))
		return nil, &export.TransportError{ExportID: exportID, DownloadID: downloadID, Reason: "request failed", Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		reason := statusReason(resp)
		_ = resp.Body.Close()
		cancel()
		return nil, &export.TransportError{ExportID: exportID, DownloadID: downloadID, Reason: reason}
	}

	c.log.Debug("Download stream opened",
		zap.String("export_id", exportID),
		zap.String("download_id", downloadID.String()))

	return newStallGuard(resp.Body, c.readStallTimeout, cancel), nil
}

// statusReason summarizes a non-200 response, preferring the server's own
// error code when the body carries one.
func statusReason(resp *http.Response) string {
	var apiErr dto.ErrorResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&apiErr); err == nil && apiErr.Error != "" {
		return fmt.Sprintf("%s (status %d)", apiErr.Error, resp.StatusCode)
	}
	return fmt.Sprintf("unexpected status %d", resp.StatusCode)
}

// stallGuard wraps a response body with a per read deadline. The timer is
// re-armed on every Read; if it fires, the request context is cancelled and
// the in-flight Read fails instead of blocking forever.
type stallGuard struct {
	body    io.ReadCloser
	timeout time.Duration
	timer   *time.Timer
	cancel  context.CancelFunc
	stalled atomic.Bool
}

func newStallGuard(body io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) io.ReadCloser {
	g := &stallGuard{body: body, timeout: timeout, cancel: cancel}
	if timeout > 0 {
		g.timer = time.AfterFunc(timeout, func() {
			g.stalled.Store(true)
			cancel()
		})
	}
	return g
}

func (g *stallGuard) Read(p []byte) (int, error) {
	if g.timer != nil {
		g.timer.Reset(g.timeout)
	}
	n, err := g.body.Read(p)
	if err != nil && !errors.Is(err, io.EOF) && g.stalled.Load() {
		// Not wrapped: the cancellation underneath came from this guard and
		// must not match a caller abort.
		err = fmt.Errorf("no data received for %s: %v", g.timeout, err)
	}
	return n, err
}

func (g *stallGuard) Close() error {
	if g.timer != nil {
		g.timer.Stop()
	}
	g.cancel()
	return g.body.Close()
}
