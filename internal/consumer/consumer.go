package consumer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Policy selects what the consumer does when it meets a malformed row.
type Policy int

const (
	// PolicyFailFast aborts the whole run on the first malformed row. An
	// aggregate that silently dropped rows cannot be audited from its output
	// alone, so failing is the default.
	PolicyFailFast Policy = iota

	// PolicySkipMalformed counts malformed rows and keeps going. The count
	// is surfaced in the final report so the drop is never silent.
	PolicySkipMalformed
)

// ParsePolicy maps the configuration spelling of a policy to its value.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "fail":
		return PolicyFailFast, nil
	case "skip":
		return PolicySkipMalformed, nil
	default:
		return PolicyFailFast, fmt.Errorf("unknown malformed-row policy %q (supported: fail, skip)", s)
	}
}

// Stats describes one consumed stream.
type Stats struct {
	Rows      int64  // data rows parsed and counted
	Malformed uint64 // rows skipped under PolicySkipMalformed
}

// Config configures the stream consumer.
type Config struct {
	Policy Policy
	// ProgressEveryRows sets how often per-file progress is narrated on the
	// diagnostic channel. Zero disables narration.
	ProgressEveryRows int64
}

// StreamConsumer drives one file's CSV stream through the row parser into an
// event counter, one record at a time. Nothing beyond the csv reader's
// single-record buffer is ever held, which is what keeps memory flat no
// matter how long the file is.
type StreamConsumer struct {
	config Config
	log    *zap.Logger
}

// NewStreamConsumer creates a stream consumer.
func NewStreamConsumer(config Config, log *zap.Logger) *StreamConsumer {
	return &StreamConsumer{
		config: config,
		log:    log,
	}
}

// Consume reads r to completion, folding every valid data row into counter
// via one Increment call each. A source with no bytes at all is an empty
// file: zero rows contributed, no error.
//
// Errors: malformed input surfaces as *MalformedRowError (fatal under
// PolicyFailFast), a cancelled context surfaces as ctx.Err(), and any other
// read failure is passed through untouched for the caller to classify as a
// transport failure. The returned Stats always reflect the rows applied
// before the error.
func (c *StreamConsumer) Consume(ctx context.Context, r io.Reader, counter EventCounter) (Stats, error) {
	var stats Stats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1 // the row parser owns the column-count check
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return stats, nil
		}
		return stats, c.mapReadError(err)
	}

	// A header without the key columns makes every row of the file
	// uncountable; skipping cannot recover it, so this is fatal under both
	// policies.
	parser, err := NewRowParser(header)
	if err != nil {
		return stats, err
	}

	for {
		if err := ctx.Err(); err != nil {
			c.log.Info("Stream consumption cancelled",
				zap.Int64("rows_applied", stats.Rows))
			return stats, err
		}

		record, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return stats, nil
			}

			mapped := c.mapReadError(err)
			var malformed *MalformedRowError
			if errors.As(mapped, &malformed) && c.config.Policy == PolicySkipMalformed {
				stats.Malformed++
				c.log.Warn("Skipping malformed row",
					zap.Int("line", malformed.Line),
					zap.String("reason", malformed.Reason))
				continue
			}
			return stats, mapped
		}

		line, _ := reader.FieldPos(0)
		rec, parseErr := parser.Parse(record, line)
		if parseErr != nil {
			if c.config.Policy == PolicySkipMalformed {
				stats.Malformed++
				var malformed *MalformedRowError
				if errors.As(parseErr, &malformed) {
					c.log.Warn("Skipping malformed row",
						zap.Int("line", malformed.Line),
						zap.String("reason", malformed.Reason))
				}
				continue
			}
			return stats, parseErr
		}

		counter.Increment(rec.PatientID, rec.EventType)
		stats.Rows++

		if c.config.ProgressEveryRows > 0 && stats.Rows%c.config.ProgressEveryRows == 0 {
			c.log.Info("Streaming rows",
				zap.String("rows", humanize.Comma(stats.Rows)))
		}
	}
}

// mapReadError turns csv syntax errors into the malformed-row taxonomy and
// leaves everything else (a dying transport, a stalled read) untouched.
func (c *StreamConsumer) mapReadError(err error) error {
	var parseErr *csv.ParseError
	if errors.As(err, &parseErr) {
		return &MalformedRowError{
			Line:   parseErr.Line,
			Reason: parseErr.Err.Error(),
			Err:    err,
		}
	}
	return err
}
