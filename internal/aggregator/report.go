package aggregator

import (
	"encoding/json"
	"fmt"
	"io"
)

// Report is the immutable projection of an Aggregator that the run hands to
// the output boundary. Counts are uint64 so the largest exports stay in
// range.
type Report struct {
	Patients map[string]map[string]uint64 `json:"patients"`
	Totals   map[string]uint64            `json:"totals"`

	// MalformedRows is set only on runs using the skip-malformed policy,
	// so a lenient report is always distinguishable from a strict one.
	MalformedRows *uint64 `json:"malformed_rows,omitempty"`
}

// Events returns the total number of events across all types.
func (r *Report) Events() uint64 {
	var n uint64
	for _, c := range r.Totals {
		n += c
	}
	return n
}

// Encode writes the report as two-space-indented JSON followed by a newline.
// encoding/json sorts map keys, so equal reports encode byte-identically.
func (r *Report) Encode(w io.Writer) error {
	buf, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	buf = append(buf, '\n')
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}
