package recommend

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/natserract/recommend/pkg/metrics"
	"github.com/sourcegraph/conc/pool"
)

const (
	DefaultBatchChunkSize   = 500
	DefaultBatchConcurrency = 4
)

// BatchOptions configures RunBatches. Zero values take the defaults.
type BatchOptions struct {
	ChunkSize      int
	MaxConcurrency int
}

// BatchReport summarizes a RunBatches run.
type BatchReport struct {
	Chunks    int
	Succeeded int
	Failed    int
	// ItemErrors collects the per-item failures of partially failed chunks.
	ItemErrors []BatchError
	// Errors holds the chunks that failed as a whole.
	Errors []error
}

// RunBatches splits items into chunks and sends them concurrently. A chunk
// answered with a batch error list counts as failed, but its item errors are
// collected and the run goes on. The returned error joins the errors of
// chunks that failed as a whole.
func RunBatches[T any](ctx context.Context, items []T, opts BatchOptions, send func(ctx context.Context, chunk []T) (*Response, error)) (*BatchReport, error) {
	size := opts.ChunkSize
	if size <= 0 {
		size = DefaultBatchChunkSize
	}
	workers := opts.MaxConcurrency
	if workers <= 0 {
		workers = DefaultBatchConcurrency
	}

	report := &BatchReport{}
	var mu sync.Mutex

	p := pool.New().WithMaxGoroutines(workers).WithErrors()
	for start := 0; start < len(items); start += size {
		end := min(start+size, len(items))
		chunk := items[start:end]
		first := start
		report.Chunks++

		p.Go(func() error {
			err := ctx.Err()
			if err == nil {
				_, err = send(ctx, chunk)
			}

			mu.Lock()
			defer mu.Unlock()

			var batchErr *BatchErrorListError
			switch {
			case err == nil:
				report.Succeeded++
				metrics.BatchChunks.WithLabelValues("success").Inc()
				return nil
			case errors.As(err, &batchErr):
				report.Failed++
				report.ItemErrors = append(report.ItemErrors, batchErr.Errors()...)
				metrics.BatchChunks.WithLabelValues("partial").Inc()
				return nil
			}

			report.Failed++
			err = fmt.Errorf("chunk at item %d: %w", first, err)
			report.Errors = append(report.Errors, err)
			metrics.BatchChunks.WithLabelValues("failure").Inc()
			return err
		})
	}

	if err := p.Wait(); err != nil {
		return report, err
	}
	return report, nil
}
