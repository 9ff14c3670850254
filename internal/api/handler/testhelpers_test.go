package handler

import (
	"context"
	"io"
	"log/slog"
	"sync"

	"github.com/iconidentify/reelscribe/internal/domain"
	"github.com/iconidentify/reelscribe/internal/worker"
)

// testLogger returns a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockQueue is a test implementation of Submitter and QueueStatter.
type mockQueue struct {
	mu        sync.Mutex
	results   map[string]domain.ProcessResult
	submitErr error
	submitted []string
	stats     worker.Stats
}

func newMockQueue() *mockQueue {
	return &mockQueue{
		results: make(map[string]domain.ProcessResult),
		stats:   worker.Stats{Running: true},
	}
}

func (m *mockQueue) Submit(ctx context.Context, req domain.JobRequest) (domain.ProcessResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.submitted = append(m.submitted, req.URL)
	if m.submitErr != nil {
		return domain.ProcessResult{}, m.submitErr
	}
	if res, ok := m.results[req.URL]; ok {
		res.Request = req
		return res, nil
	}
	return domain.ProcessResult{Request: req, Transcript: "transcript for " + req.URL, Stage: domain.StageDone}, nil
}

func (m *mockQueue) Stats() worker.Stats {
	return m.stats
}

// failWith returns a failed result of the given kind.
func failWith(kind domain.Kind, detail string) domain.ProcessResult {
	return domain.ProcessResult{Err: domain.Errorf(kind, "test", "%s", detail)}
}
