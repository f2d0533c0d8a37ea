package dto

import "github.com/google/uuid"

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// ExportDownloadsData carries the ordered download ids of one export. The
// order is the order the files must be fetched and folded in.
type ExportDownloadsData struct {
	DownloadIDs []uuid.UUID `json:"download_ids"`
}

// ExportDownloadsResponse represents the discovery payload for an export
type ExportDownloadsResponse struct {
	Data ExportDownloadsData `json:"data"`
}

// HealthResponse represents the liveness payload of the export server
type HealthResponse struct {
	Status string `json:"status"`
}
