package pipeline

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/imagescrape/internal/model"
)

// BatchProcessor runs one pipeline per query with bounded concurrency.
type BatchProcessor struct {
	// pipelineFactory creates a fresh pipeline for each run, so per-query
	// settings and the random source are never shared between goroutines.
	pipelineFactory func(run *model.Run) *Pipeline

	concurrency int
	logger      *slog.Logger
}

// BatchOption configures a BatchProcessor.
type BatchOption func(*BatchProcessor)

// WithBatchLogger sets a custom logger for batch processing.
func WithBatchLogger(logger *slog.Logger) BatchOption {
	return func(b *BatchProcessor) {
		b.logger = logger
	}
}

// WithConcurrency sets the maximum number of concurrent runs.
// Non-positive values are ignored. The default is 1.
func WithConcurrency(n int) BatchOption {
	return func(b *BatchProcessor) {
		if n > 0 {
			b.concurrency = n
		}
	}
}

// NewBatchProcessor creates a BatchProcessor.
func NewBatchProcessor(pipelineFactory func(run *model.Run) *Pipeline, opts ...BatchOption) *BatchProcessor {
	bp := &BatchProcessor{
		pipelineFactory: pipelineFactory,
		concurrency:     1,
	}
	for _, opt := range opts {
		opt(bp)
	}
	if bp.logger == nil {
		bp.logger = slog.Default()
	}
	return bp
}

// ProcessBatch executes a pipeline for every run. A failed run does not stop
// the others; its error is stored in the run. The returned error is non-nil
// only when ctx was cancelled.
func (bp *BatchProcessor) ProcessBatch(ctx context.Context, runs []*model.Run) ([]*model.Run, error) {
	err := bp.ProcessBatchWithCallback(ctx, runs, nil)
	return runs, err
}

// ProcessBatchWithCallback is ProcessBatch with callback invoked after each
// run completes. callback is called from the worker goroutine.
func (bp *BatchProcessor) ProcessBatchWithCallback(
	ctx context.Context,
	runs []*model.Run,
	callback func(run *model.Run, index int),
) error {
	bp.logger.Info("starting batch processing",
		"total_queries", len(runs),
		"concurrency", bp.concurrency,
	)
	startTime := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bp.concurrency)

	for i, run := range runs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				// Never started; still reported so it can be recorded.
				run.Cancelled = true
				run.SetError(err)
				run.Finish()
			} else if err := bp.pipelineFactory(run).Execute(gctx, run); err != nil {
				bp.logger.Warn("query failed",
					"query", run.Query.Text,
					"error", err,
				)
			} else {
				bp.logger.Info("query completed",
					"query", run.Query.Text,
					"images", run.SuccessCount(),
					"failures", run.FailureCount(),
				)
			}

			if callback != nil {
				callback(run, i)
			}

			// Failures stay in the run so other queries keep going.
			return nil
		})
	}

	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	bp.logger.Info("batch processing complete",
		"total_queries", len(runs),
		"elapsed", time.Since(startTime),
	)
	return err
}
