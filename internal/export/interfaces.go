package export

import (
	"context"
	"io"

	"github.com/google/uuid"
)

// Client defines the interface for reaching an export provider. Downloads
// returns the export's file ids in the order they must be fetched and
// folded; OpenDownload opens one file's CSV stream. The caller owns closing
// the returned reader.
type Client interface {
	Downloads(ctx context.Context, exportID string) ([]uuid.UUID, error)
	OpenDownload(ctx context.Context, exportID string, downloadID uuid.UUID) (io.ReadCloser, error)
}
