// Package batch fans trackers out across the discovered files with
// bounded concurrency and aggregates their terminal records.
package batch

import (
	"context"
	"log"
	"sync"
	"sync/atomic"

	"voiceguard-batch/internal/models"
	"voiceguard-batch/internal/telemetry"
)

// Runner produces a terminal record for one file. *tracker.Tracker
// satisfies it.
type Runner interface {
	Run(ctx context.Context, d models.FileDescriptor) models.AnalysisRecord
}

// Coordinator runs one tracker per file through a fixed worker pool.
type Coordinator struct {
	runner      Runner
	concurrency int
}

// New builds a coordinator with the given pool size (minimum 1).
func New(r Runner, concurrency int) *Coordinator {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Coordinator{runner: r, concurrency: concurrency}
}

// Run waits for every tracker to reach a terminal state and returns one
// record per input file in discovery order. Per-file failures never
// cancel siblings; cancelling ctx drains the remaining trackers into
// Cancelled records.
func (c *Coordinator) Run(ctx context.Context, files []models.FileDescriptor) models.BatchResult {
	records := make([]models.AnalysisRecord, len(files))
	if len(files) == 0 {
		return models.BatchResult{Records: records}
	}

	workers := c.concurrency
	if workers > len(files) {
		workers = len(files)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	var finished atomic.Int64
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				telemetry.InFlightGauge.Inc()
				rec := c.runner.Run(ctx, files[idx])
				telemetry.InFlightGauge.Dec()
				records[idx] = rec
				count(rec)
				log.Printf("[%d/%d] %s: %s %s", finished.Add(1), len(files), rec.OriginalFilename, rec.Status, rec.Conclusion)
			}
		}()
	}

	for i := range files {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	return models.BatchResult{Records: records}
}

func count(rec models.AnalysisRecord) {
	switch rec.Status {
	case models.StatusCompleted:
		telemetry.JobsCompleted.Inc()
	case models.StatusFailed:
		telemetry.JobsFailed.Inc()
	case models.StatusTimedOut:
		telemetry.JobsTimedOut.Inc()
	case models.StatusCancelled:
		telemetry.JobsCancelled.Inc()
	}
}
