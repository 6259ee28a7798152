package models

import (
	"encoding/json"
	"time"
)

// JobState enumerates the per-file tracker lifecycle.
type JobState string

const (
	StatePending     JobState = "pending"
	StateBlobCreated JobState = "blob_created"
	StateUploaded    JobState = "uploaded"
	StateJobCreated  JobState = "job_created"
	StatePolling     JobState = "polling"
	StateCompleted   JobState = "completed"
	StateFailed      JobState = "failed"
	StateTimedOut    JobState = "timed_out"
	StateCancelled   JobState = "cancelled"
)

// Terminal reports whether no further transition can occur from s.
func (s JobState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateTimedOut, StateCancelled:
		return true
	}
	return false
}

// Status values written to output artifacts, one per terminal state.
const (
	StatusCompleted = "COMPLETED"
	StatusFailed    = "FAILED"
	StatusTimedOut  = "TIMED_OUT"
	StatusCancelled = "CANCELLED"
)

// Status maps a terminal state to its artifact status string.
// Non-terminal states return an empty string.
func (s JobState) Status() string {
	switch s {
	case StateCompleted:
		return StatusCompleted
	case StateFailed:
		return StatusFailed
	case StateTimedOut:
		return StatusTimedOut
	case StateCancelled:
		return StatusCancelled
	}
	return ""
}

// Conclusion vocabulary reported by the backend, plus ERROR for jobs
// that never produced a verdict.
const (
	ConclusionHuman        = "HUMAN"
	ConclusionAI           = "AI"
	ConclusionInconclusive = "INCONCLUSIVE"
	ConclusionError        = "ERROR"
)

// FileDescriptor is the immutable identity of one discovered input file.
type FileDescriptor struct {
	Path     string
	Name     string // sanitized upload name
	SHA256   string
	MIME     string
	Size     int64
	Duration time.Duration // 0 means unknown
}

// StreamResult is the backend's verdict for one completed stream.
type StreamResult struct {
	Conclusion  string
	Probability float64 // negative when the backend omitted it
	Reason      string
}

// Job is the mutable tracking state for one file, owned by exactly one
// tracker. FileID and StreamID are set once and never overwritten.
type Job struct {
	Descriptor FileDescriptor
	FileID     string
	StreamID   string
	State      JobState
	Attempts   int // poll attempts against the stream
	Deadline   time.Time
	LastError  error
	Result     *StreamResult
}

// AnalysisRecord is the immutable terminal projection of one job.
type AnalysisRecord struct {
	OriginalFilename string
	FileID           string
	StreamID         string
	Status           string
	Conclusion       string
	Probability      float64 // negative when unknown
	Reason           string
	Detail           json.RawMessage // raw backend payload, JSON projection only
}

// BatchResult holds one record per input file in discovery order.
type BatchResult struct {
	Records []AnalysisRecord
}

// Incomplete counts records that did not reach COMPLETED.
func (b BatchResult) Incomplete() int {
	n := 0
	for _, r := range b.Records {
		if r.Status != StatusCompleted {
			n++
		}
	}
	return n
}
