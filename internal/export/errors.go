package export

import (
	"fmt"

	"github.com/google/uuid"
)

// DiscoveryError reports that an export id could not be resolved into its
// download list. It always precedes any counting.
type DiscoveryError struct {
	ExportID string
	Reason   string
	Err      error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discovery failed for export %q: %s", e.ExportID, e.Reason)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// TransportError reports a failed fetch or a stream that died mid file. It
// is fatal to the whole run.
type TransportError struct {
	ExportID   string
	DownloadID uuid.UUID
	Reason     string
	Err        error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport failure on export %q download %s: %s", e.ExportID, e.DownloadID, e.Reason)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
