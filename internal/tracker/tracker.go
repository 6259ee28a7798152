// Package tracker drives one file through upload, job creation, and
// polling to a terminal state. Each tracker run is independent: one
// file's failure never touches another file's job.
package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"voiceguard-batch/internal/backend"
	"voiceguard-batch/internal/models"
)

// Backend is the remote contract the tracker depends on. *backend.Client
// satisfies it; tests substitute a scripted fake.
type Backend interface {
	CreateBlob(ctx context.Context, d models.FileDescriptor) (backend.Blob, error)
	UploadBytes(ctx context.Context, uploadURL string, d models.FileDescriptor) error
	CreateJob(ctx context.Context, fileID string) (string, error)
	FetchStatus(ctx context.Context, streamID string) (backend.StreamStatus, error)
	FetchDetail(ctx context.Context, streamID string) (json.RawMessage, error)
}

// Config holds the polling and deadline knobs.
type Config struct {
	PollInterval   time.Duration
	TimeoutFactor  float64
	TimeoutMin     time.Duration
	TimeoutBuffer  time.Duration
	TimeoutDefault time.Duration
}

// Tracker owns the per-file state machine.
type Tracker struct {
	backend    Backend
	cfg        Config
	wantDetail bool
	now        func() time.Time
}

// New builds a tracker. wantDetail controls whether completed jobs also
// fetch the raw per-segment payload for the JSON projection.
func New(b Backend, cfg Config, wantDetail bool) *Tracker {
	return &Tracker{backend: b, cfg: cfg, wantDetail: wantDetail, now: time.Now}
}

// Run drives descriptor d to a terminal state and returns its record.
// It never returns an error: every disposition, including cancellation,
// becomes exactly one AnalysisRecord.
func (t *Tracker) Run(ctx context.Context, d models.FileDescriptor) models.AnalysisRecord {
	job := &models.Job{Descriptor: d, State: models.StatePending}

	blob, err := t.backend.CreateBlob(ctx, d)
	if err != nil {
		return t.abort(ctx, job, fmt.Errorf("create blob: %w", err))
	}
	job.FileID = blob.FileID
	job.State = models.StateBlobCreated

	if err := t.backend.UploadBytes(ctx, blob.UploadURL, d); err != nil {
		return t.abort(ctx, job, fmt.Errorf("upload: %w", err))
	}
	job.State = models.StateUploaded

	streamID, err := t.backend.CreateJob(ctx, job.FileID)
	if err != nil {
		return t.abort(ctx, job, fmt.Errorf("create job: %w", err))
	}
	job.StreamID = streamID
	job.State = models.StateJobCreated

	job.Deadline = t.now().Add(t.timeoutFor(d.Duration))
	job.State = models.StatePolling
	return t.poll(ctx, job)
}

// timeoutFor computes the deadline offset: max(duration x factor, min) +
// buffer for a known duration, the configured default otherwise.
func (t *Tracker) timeoutFor(duration time.Duration) time.Duration {
	if duration <= 0 {
		return t.cfg.TimeoutDefault
	}
	timeout := time.Duration(float64(duration) * t.cfg.TimeoutFactor)
	if timeout < t.cfg.TimeoutMin {
		timeout = t.cfg.TimeoutMin
	}
	return timeout + t.cfg.TimeoutBuffer
}

func (t *Tracker) poll(ctx context.Context, job *models.Job) models.AnalysisRecord {
	for {
		job.Attempts++
		st, err := t.backend.FetchStatus(ctx, job.StreamID)
		if err != nil {
			return t.abort(ctx, job, fmt.Errorf("fetch status: %w", err))
		}

		switch {
		case st.Status == backend.StreamStatusCompleted && st.Result != nil:
			job.Result = st.Result
			job.State = models.StateCompleted
			return t.finish(ctx, job)
		case st.Status == backend.StreamStatusFailed:
			job.LastError = fmt.Errorf("stream %s reported %s", job.StreamID, st.Status)
			job.State = models.StateFailed
			return t.finish(ctx, job)
		}

		if !t.now().Before(job.Deadline) {
			job.State = models.StateTimedOut
			return t.finish(ctx, job)
		}

		select {
		case <-ctx.Done():
			job.LastError = ctx.Err()
			job.State = models.StateCancelled
			return t.finish(ctx, job)
		case <-time.After(t.cfg.PollInterval):
		}
	}
}

// abort classifies a call failure: operator cancellation becomes the
// Cancelled terminal state, everything else Failed.
func (t *Tracker) abort(ctx context.Context, job *models.Job, err error) models.AnalysisRecord {
	job.LastError = err
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		job.State = models.StateCancelled
	} else {
		job.State = models.StateFailed
	}
	return t.finish(ctx, job)
}

// finish freezes the job into its immutable terminal record.
func (t *Tracker) finish(ctx context.Context, job *models.Job) models.AnalysisRecord {
	rec := models.AnalysisRecord{
		OriginalFilename: job.Descriptor.Path,
		FileID:           job.FileID,
		StreamID:         job.StreamID,
		Status:           job.State.Status(),
		Probability:      -1,
	}

	switch job.State {
	case models.StateCompleted:
		rec.Conclusion = job.Result.Conclusion
		rec.Probability = job.Result.Probability
		rec.Reason = job.Result.Reason
		if t.wantDetail {
			detail, err := t.backend.FetchDetail(ctx, job.StreamID)
			if err != nil {
				log.Printf("detail fetch failed for stream %s: %v", job.StreamID, err)
			} else {
				rec.Detail = detail
			}
		}
	case models.StateTimedOut:
		rec.Conclusion = models.ConclusionInconclusive
		rec.Reason = "TIMEOUT"
	case models.StateCancelled:
		rec.Conclusion = models.ConclusionError
		rec.Reason = "cancelled"
	default:
		rec.Conclusion = models.ConclusionError
		if job.LastError != nil {
			rec.Reason = job.LastError.Error()
		}
	}
	return rec
}
