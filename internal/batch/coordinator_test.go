package batch

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"voiceguard-batch/internal/models"
)

// fakeRunner completes every file unless its path is marked to block
// until cancellation.
type fakeRunner struct {
	delay   time.Duration
	blocked map[string]bool

	current atomic.Int64
	peak    atomic.Int64
}

func (f *fakeRunner) Run(ctx context.Context, d models.FileDescriptor) models.AnalysisRecord {
	cur := f.current.Add(1)
	for {
		peak := f.peak.Load()
		if cur <= peak || f.peak.CompareAndSwap(peak, cur) {
			break
		}
	}
	defer f.current.Add(-1)

	if f.blocked[d.Path] {
		<-ctx.Done()
		return models.AnalysisRecord{OriginalFilename: d.Path, Status: models.StatusCancelled}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	return models.AnalysisRecord{OriginalFilename: d.Path, Status: models.StatusCompleted, Conclusion: models.ConclusionHuman}
}

func descriptors(n int) []models.FileDescriptor {
	out := make([]models.FileDescriptor, n)
	for i := range out {
		out[i] = models.FileDescriptor{Path: fmt.Sprintf("/audio/%02d.wav", i), SHA256: "samehash"}
	}
	return out
}

func TestRunPreservesCountAndOrder(t *testing.T) {
	files := descriptors(10)
	runner := &fakeRunner{}

	res := New(runner, 3).Run(context.Background(), files)

	if len(res.Records) != len(files) {
		t.Fatalf("expected %d records, got %d", len(files), len(res.Records))
	}
	for i, rec := range res.Records {
		if rec.OriginalFilename != files[i].Path {
			t.Fatalf("record %d out of order: %q", i, rec.OriginalFilename)
		}
	}
	// Identical content hashes stay independent records.
	if res.Incomplete() != 0 {
		t.Fatalf("expected all completed, %d incomplete", res.Incomplete())
	}
}

func TestRunBoundsConcurrency(t *testing.T) {
	files := descriptors(12)
	runner := &fakeRunner{delay: 10 * time.Millisecond}

	New(runner, 3).Run(context.Background(), files)

	if peak := runner.peak.Load(); peak > 3 {
		t.Fatalf("concurrency limit exceeded: %d", peak)
	}
}

func TestRunCancellationDoesNotDropRecords(t *testing.T) {
	files := descriptors(10)
	blocked := map[string]bool{
		files[1].Path: true,
		files[4].Path: true,
		files[7].Path: true,
	}
	runner := &fakeRunner{blocked: blocked}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	res := New(runner, 10).Run(ctx, files)

	if len(res.Records) != 10 {
		t.Fatalf("expected 10 records, got %d", len(res.Records))
	}
	cancelled, completed := 0, 0
	for _, rec := range res.Records {
		switch rec.Status {
		case models.StatusCancelled:
			cancelled++
		case models.StatusCompleted:
			completed++
		default:
			t.Fatalf("unexpected status %q", rec.Status)
		}
	}
	if cancelled != 3 || completed != 7 {
		t.Fatalf("expected 3 cancelled / 7 completed, got %d / %d", cancelled, completed)
	}
}

func TestRunEmptyInput(t *testing.T) {
	res := New(&fakeRunner{}, 4).Run(context.Background(), nil)
	if len(res.Records) != 0 {
		t.Fatalf("expected no records, got %d", len(res.Records))
	}
}
