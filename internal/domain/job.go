package domain

import (
	"time"

	"github.com/google/uuid"
)

// RequestID is a request-scoped identifier for one URL being processed.
type RequestID string

// String returns the string representation of the RequestID.
func (id RequestID) String() string {
	return string(id)
}

// NewRequestID generates a short unique request identifier.
func NewRequestID() RequestID {
	return RequestID("req_" + uuid.New().String()[:8])
}

// JobRequest is one input URL scheduled for processing.
type JobRequest struct {
	ID        RequestID
	URL       string
	Debug     bool
	CreatedAt time.Time
}

// NewJobRequest creates a request for url with a fresh identifier.
func NewJobRequest(url string, debug bool) JobRequest {
	return JobRequest{
		ID:        NewRequestID(),
		URL:       url,
		Debug:     debug,
		CreatedAt: time.Now(),
	}
}

// Stage is a step of the single-URL pipeline.
type Stage string

const (
	StageValidating      Stage = "validating"
	StageCheckingNetwork Stage = "checking_network"
	StageDownloading     Stage = "downloading"
	StageTranscribing    Stage = "transcribing"
	StageCleaningUp      Stage = "cleaning_up"
	StageDone            Stage = "done"
)

// ProcessResult is the outcome of processing one JobRequest.
type ProcessResult struct {
	Request    JobRequest
	Transcript string
	Err        *Error
	// Stage is the stage that failed, or StageDone on success.
	Stage    Stage
	Duration time.Duration
}

// Success reports whether a transcript was produced.
func (r ProcessResult) Success() bool {
	return r.Err == nil
}

// Kind returns the failure kind, or "" on success.
func (r ProcessResult) Kind() Kind {
	if r.Err == nil {
		return ""
	}
	return r.Err.Kind
}

// ExitCode maps the result to a process exit code.
func (r ProcessResult) ExitCode() int {
	if r.Err == nil {
		return ExitOK
	}
	return r.Err.Kind.ExitCode()
}

// Message returns the user-facing failure message, or "" on success.
func (r ProcessResult) Message() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.UserMessage()
}

// BatchSummary is the ordered set of results for one run.
type BatchSummary struct {
	Results []ProcessResult
}

// Add appends a result, preserving input order.
func (s *BatchSummary) Add(r ProcessResult) {
	s.Results = append(s.Results, r)
}

// Total returns the number of processed items.
func (s *BatchSummary) Total() int {
	return len(s.Results)
}

// Succeeded returns the number of successful items.
func (s *BatchSummary) Succeeded() int {
	n := 0
	for _, r := range s.Results {
		if r.Success() {
			n++
		}
	}
	return n
}

// Failed returns the number of failed items.
func (s *BatchSummary) Failed() int {
	return s.Total() - s.Succeeded()
}

// FailedResults returns only the failed results.
func (s *BatchSummary) FailedResults() []ProcessResult {
	var failed []ProcessResult
	for _, r := range s.Results {
		if !r.Success() {
			failed = append(failed, r)
		}
	}
	return failed
}

// ExitCode returns the overall exit code. A single item keeps its own code;
// a batch exits 1 when any item failed.
func (s *BatchSummary) ExitCode() int {
	if len(s.Results) == 1 {
		return s.Results[0].ExitCode()
	}
	if s.Failed() > 0 {
		return 1
	}
	return ExitOK
}
