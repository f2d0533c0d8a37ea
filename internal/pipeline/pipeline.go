package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/medstream-labs/export-analytics-cli/internal/aggregator"
	"github.com/medstream-labs/export-analytics-cli/internal/config"
	"github.com/medstream-labs/export-analytics-cli/internal/consumer"
	"github.com/medstream-labs/export-analytics-cli/internal/export"
)

// Pipeline orchestrates one export run: resolve the download list, stream
// every file through the consumer in order, and fold all rows into a single
// count table.
type Pipeline struct {
	client   export.Client
	consumer *consumer.StreamConsumer
	policy   consumer.Policy
	log      *zap.Logger
}

// NewPipeline creates a new pipeline
func NewPipeline(cfg *config.Config, client export.Client, log *zap.Logger) (*Pipeline, error) {
	policy, err := consumer.ParsePolicy(cfg.Pipeline.OnMalformed)
	if err != nil {
		return nil, err
	}

	streamConsumer := consumer.NewStreamConsumer(consumer.Config{
		Policy:            policy,
		ProgressEveryRows: cfg.Pipeline.ProgressEveryRows,
	}, log)

	return &Pipeline{
		client:   client,
		consumer: streamConsumer,
		policy:   policy,
		log:      log,
	}, nil
}

// Run processes the whole export and returns its report. All files succeed
// or the run fails: on any error the report is nil and nothing of the
// partial aggregate survives.
func (p *Pipeline) Run(ctx context.Context, exportID string) (*aggregator.Report, error) {
	start := time.Now()

	p.log.Info("Starting export analysis",
		zap.String("export_id", exportID))

	downloads, err := p.client.Downloads(ctx, exportID)
	if err != nil {
		return nil, err
	}

	p.log.Info("Export discovered",
		zap.String("export_id", exportID),
		zap.Int("downloads", len(downloads)))

	agg := aggregator.New()
	var totalRows int64
	var malformed uint64

	for i, downloadID := range downloads {
		p.log.Info("Processing download",
			zap.String("download_id", downloadID.String()),
			zap.Int("position", i+1),
			zap.Int("downloads", len(downloads)))

		stats, err := p.processDownload(ctx, exportID, downloadID, agg)
		if err != nil {
			return nil, err
		}
		totalRows += stats.Rows
		malformed += stats.Malformed

		p.log.Info("Download complete",
			zap.String("download_id", downloadID.String()),
			zap.String("rows", humanize.Comma(stats.Rows)))
	}

	report := agg.Snapshot()
	if p.policy == consumer.PolicySkipMalformed {
		report.MalformedRows = &malformed
	}

	p.log.Info("Export analysis complete",
		zap.String("export_id", exportID),
		zap.String("rows", humanize.Comma(totalRows)),
		zap.Int("patients", len(report.Patients)),
		zap.Duration("elapsed", time.Since(start)))

	return report, nil
}

func (p *Pipeline) processDownload(ctx context.Context, exportID string, downloadID uuid.UUID, agg *aggregator.Aggregator) (consumer.Stats, error) {
	stream, err := p.client.OpenDownload(ctx, exportID, downloadID)
	if err != nil {
		return consumer.Stats{}, err
	}
	defer func() {
		if err := stream.Close(); err != nil {
			p.log.Warn("Failed to close download stream",
				zap.String("download_id", downloadID.String()),
				zap.Error(err))
		}
	}()

	stats, err := p.consumer.Consume(ctx, stream, agg)
	if err != nil {
		return stats, p.classify(exportID, downloadID, err)
	}

	return stats, nil
}

// classify wraps raw stream failures as transport errors. Malformed rows and
// caller cancellation pass through unchanged.
func (p *Pipeline) classify(exportID string, downloadID uuid.UUID, err error) error {
	var malformedErr *consumer.MalformedRowError
	if errors.As(err, &malformedErr) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return &export.TransportError{
		ExportID:   exportID,
		DownloadID: downloadID,
		Reason:     "stream read failed",
		Err:        err,
	}
}
