package transcriber

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/iconidentify/reelscribe/internal/config"
	"github.com/iconidentify/reelscribe/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockBackend is a scripted Backend that records calls.
type mockBackend struct {
	mu sync.Mutex

	uploadErr   error
	statuses    []domain.RemoteStatus
	statusErr   error
	text        string
	generateErr error
	deleteErr   error
	onUpload    func()
	onStatus    func(ctx context.Context)

	uploads   int
	uploadCtx error
	statusN   int
	generates int
	deletes   []string
	prompt    string
}

func (m *mockBackend) Upload(ctx context.Context, path string) (*domain.RemoteJob, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads++
	if m.onUpload != nil {
		m.onUpload()
	}
	m.uploadCtx = ctx.Err()
	if m.uploadErr != nil {
		return nil, m.uploadErr
	}
	return &domain.RemoteJob{
		Name:     "files/test-1",
		URI:      "https://example.invalid/files/test-1",
		MIMEType: "video/mp4",
		Status:   domain.RemoteProcessing,
	}, nil
}

func (m *mockBackend) Status(ctx context.Context, name string) (domain.RemoteStatus, error) {
	m.mu.Lock()
	m.statusN++
	n := m.statusN
	hook := m.onStatus
	m.mu.Unlock()
	if hook != nil {
		hook(ctx)
	}
	if m.statusErr != nil {
		return "", m.statusErr
	}
	if len(m.statuses) == 0 {
		return domain.RemoteProcessing, nil
	}
	if n > len(m.statuses) {
		return m.statuses[len(m.statuses)-1], nil
	}
	return m.statuses[n-1], nil
}

func (m *mockBackend) Generate(ctx context.Context, job *domain.RemoteJob, prompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.generates++
	m.prompt = prompt
	return m.text, m.generateErr
}

func (m *mockBackend) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	m.deletes = append(m.deletes, name)
	return m.deleteErr
}

func newTestTranscriber(b Backend) *Transcriber {
	return New(b, config.GeminiConfig{
		PollInterval:      5 * time.Millisecond,
		ProcessingTimeout: 200 * time.Millisecond,
	}, testLogger())
}

func smallArtifact() *domain.MediaArtifact {
	return domain.NewMediaArtifact("/tmp/reel_x/abc.mp4", "/tmp/reel_x", 1024)
}

func TestTranscriber_Transcribe_Success(t *testing.T) {
	b := &mockBackend{
		statuses: []domain.RemoteStatus{domain.RemoteProcessing, domain.RemoteActive},
		text:     "  hello from the reel \n",
	}
	tr := newTestTranscriber(b)

	text, err := tr.Transcribe(context.Background(), smallArtifact())
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "hello from the reel" {
		t.Errorf("text = %q", text)
	}
	if b.prompt != Prompt {
		t.Errorf("prompt = %q, want the fixed transcription prompt", b.prompt)
	}
	if b.statusN != 2 {
		t.Errorf("status polls = %d, want 2", b.statusN)
	}
	if len(b.deletes) != 1 || b.deletes[0] != "files/test-1" {
		t.Errorf("deletes = %v, want exactly one for files/test-1", b.deletes)
	}
}

func TestTranscriber_Transcribe_TooLargeForAPI(t *testing.T) {
	b := &mockBackend{}
	tr := newTestTranscriber(b)

	art := domain.NewMediaArtifact("/tmp/reel_x/big.mp4", "/tmp/reel_x", 20*1024*1024+1)
	_, err := tr.Transcribe(context.Background(), art)
	if kind := domain.KindOf(err, ""); kind != domain.KindFileTooLargeForAPI {
		t.Errorf("kind = %q, want %q", kind, domain.KindFileTooLargeForAPI)
	}
	if b.uploads != 0 || b.statusN != 0 || b.generates != 0 || len(b.deletes) != 0 {
		t.Errorf("backend should not be called: uploads=%d status=%d generates=%d deletes=%d",
			b.uploads, b.statusN, b.generates, len(b.deletes))
	}
}

func TestTranscriber_Transcribe_ExactlyAtLimit(t *testing.T) {
	b := &mockBackend{statuses: []domain.RemoteStatus{domain.RemoteActive}, text: "ok"}
	tr := newTestTranscriber(b)

	art := domain.NewMediaArtifact("/tmp/reel_x/edge.mp4", "/tmp/reel_x", 20*1024*1024)
	if _, err := tr.Transcribe(context.Background(), art); err != nil {
		t.Errorf("20MB exactly should be accepted, got %v", err)
	}
}

func TestTranscriber_Transcribe_Failures(t *testing.T) {
	tests := []struct {
		name        string
		backend     *mockBackend
		wantKind    domain.Kind
		wantDeletes int
	}{
		{
			name:        "upload error",
			backend:     &mockBackend{uploadErr: domain.NewError(domain.KindAPIKeyInvalid, "upload", errors.New("401"))},
			wantKind:    domain.KindAPIKeyInvalid,
			wantDeletes: 0,
		},
		{
			name:        "untagged upload error",
			backend:     &mockBackend{uploadErr: errors.New("broken pipe")},
			wantKind:    domain.KindAPIError,
			wantDeletes: 0,
		},
		{
			name:        "processing failed",
			backend:     &mockBackend{statuses: []domain.RemoteStatus{domain.RemoteFailed}},
			wantKind:    domain.KindAPIError,
			wantDeletes: 1,
		},
		{
			name:        "processing timeout",
			backend:     &mockBackend{statuses: []domain.RemoteStatus{domain.RemoteProcessing}},
			wantKind:    domain.KindAPIError,
			wantDeletes: 1,
		},
		{
			name:        "status error",
			backend:     &mockBackend{statusErr: domain.NewError(domain.KindRateLimited, "status", errors.New("429"))},
			wantKind:    domain.KindRateLimited,
			wantDeletes: 1,
		},
		{
			name: "generate rate limited",
			backend: &mockBackend{
				statuses:    []domain.RemoteStatus{domain.RemoteActive},
				generateErr: domain.NewError(domain.KindRateLimited, "generate", errors.New("quota")),
			},
			wantKind:    domain.KindRateLimited,
			wantDeletes: 1,
		},
		{
			name: "empty transcript",
			backend: &mockBackend{
				statuses: []domain.RemoteStatus{domain.RemoteActive},
				text:     "   \n",
			},
			wantKind:    domain.KindExtractionFailed,
			wantDeletes: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := newTestTranscriber(tt.backend)

			_, err := tr.Transcribe(context.Background(), smallArtifact())
			if kind := domain.KindOf(err, ""); kind != tt.wantKind {
				t.Errorf("kind = %q, want %q (err: %v)", kind, tt.wantKind, err)
			}
			if len(tt.backend.deletes) != tt.wantDeletes {
				t.Errorf("deletes = %d, want %d", len(tt.backend.deletes), tt.wantDeletes)
			}
		})
	}
}

func TestTranscriber_Transcribe_DeleteFailureKeepsResult(t *testing.T) {
	b := &mockBackend{
		statuses:  []domain.RemoteStatus{domain.RemoteActive},
		text:      "transcript",
		deleteErr: errors.New("500 internal"),
	}
	tr := newTestTranscriber(b)

	text, err := tr.Transcribe(context.Background(), smallArtifact())
	if err != nil {
		t.Fatalf("delete failure must not replace the result, got %v", err)
	}
	if text != "transcript" {
		t.Errorf("text = %q", text)
	}
	if len(b.deletes) != 1 {
		t.Errorf("deletes = %d, want 1", len(b.deletes))
	}
}

func TestTranscriber_Transcribe_CancelledStillDeletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &mockBackend{onStatus: func(context.Context) { cancel() }}
	tr := newTestTranscriber(b)

	_, err := tr.Transcribe(ctx, smallArtifact())
	if kind := domain.KindOf(err, ""); kind != domain.KindCancelled {
		t.Errorf("kind = %q, want %q", kind, domain.KindCancelled)
	}
	if len(b.deletes) != 1 {
		t.Errorf("deletes = %d, want 1 even after cancellation", len(b.deletes))
	}
}

func TestTranscriber_Transcribe_TimeoutIsBounded(t *testing.T) {
	b := &mockBackend{}
	tr := New(b, config.GeminiConfig{
		PollInterval:      10 * time.Millisecond,
		ProcessingTimeout: 50 * time.Millisecond,
	}, testLogger())

	start := time.Now()
	_, err := tr.Transcribe(context.Background(), smallArtifact())
	if err == nil {
		t.Fatal("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("poll loop took %v, should stop at the processing deadline", elapsed)
	}
	if b.statusN > 10 {
		t.Errorf("status polls = %d, interval not respected", b.statusN)
	}
}

func TestTranscriber_Transcribe_StalledStatusIsBounded(t *testing.T) {
	b := &mockBackend{onStatus: func(ctx context.Context) {
		select {
		case <-ctx.Done():
		case <-time.After(3 * time.Second):
		}
	}}
	tr := New(b, config.GeminiConfig{
		PollInterval:      10 * time.Millisecond,
		ProcessingTimeout: 100 * time.Millisecond,
	}, testLogger())

	start := time.Now()
	_, err := tr.Transcribe(context.Background(), smallArtifact())
	elapsed := time.Since(start)

	if kind := domain.KindOf(err, ""); kind != domain.KindAPIError {
		t.Fatalf("kind = %q, want %q (err: %v)", kind, domain.KindAPIError, err)
	}
	if !strings.Contains(err.Error(), "file processing timeout") {
		t.Errorf("error = %q, want processing timeout", err)
	}
	if elapsed > time.Second {
		t.Errorf("Transcribe took %v, a stalled status call must end at the processing deadline", elapsed)
	}
	if len(b.deletes) != 1 {
		t.Errorf("deletes = %d, want 1", len(b.deletes))
	}
}

func TestTranscriber_Transcribe_CancelledDuringUploadStillDeletes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	b := &mockBackend{onUpload: cancel}
	tr := newTestTranscriber(b)

	_, err := tr.Transcribe(ctx, smallArtifact())
	if kind := domain.KindOf(err, ""); kind != domain.KindCancelled {
		t.Errorf("kind = %q, want %q", kind, domain.KindCancelled)
	}
	if b.uploadCtx != nil {
		t.Errorf("upload context ended early: %v", b.uploadCtx)
	}
	if b.statusN != 0 || b.generates != 0 {
		t.Errorf("status=%d generate=%d, want no calls after cancellation", b.statusN, b.generates)
	}
	if len(b.deletes) != 1 || b.deletes[0] != "files/test-1" {
		t.Errorf("deletes = %v, want the uploaded file deleted once", b.deletes)
	}
}

func TestNew_Defaults(t *testing.T) {
	tr := New(&mockBackend{}, config.GeminiConfig{}, nil)

	if tr.cfg.MaxUploadSize != 20*1024*1024 {
		t.Errorf("MaxUploadSize = %d, want 20MB", tr.cfg.MaxUploadSize)
	}
	if tr.cfg.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", tr.cfg.PollInterval)
	}
	if tr.cfg.ProcessingTimeout != 60*time.Second {
		t.Errorf("ProcessingTimeout = %v, want 60s", tr.cfg.ProcessingTimeout)
	}
	if tr.cfg.CleanupTimeout != 10*time.Second {
		t.Errorf("CleanupTimeout = %v, want 10s", tr.cfg.CleanupTimeout)
	}
}
