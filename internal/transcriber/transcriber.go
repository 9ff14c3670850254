package transcriber

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/iconidentify/reelscribe/internal/config"
	"github.com/iconidentify/reelscribe/internal/domain"
)

// Prompt is sent with every uploaded video.
const Prompt = "Transcribe all spoken words from this video. If there are visible captions or text overlays, include them as well. Output only the complete transcription text."

// Backend is the remote transcription service.
type Backend interface {
	Upload(ctx context.Context, path string) (*domain.RemoteJob, error)
	Status(ctx context.Context, name string) (domain.RemoteStatus, error)
	Generate(ctx context.Context, job *domain.RemoteJob, prompt string) (string, error)
	Delete(ctx context.Context, name string) error
}

// Transcriber turns a downloaded video into text through a Backend.
type Transcriber struct {
	backend Backend
	cfg     config.GeminiConfig
	logger  *slog.Logger
}

// New creates a Transcriber. Zero limits in cfg take their defaults.
func New(backend Backend, cfg config.GeminiConfig, logger *slog.Logger) *Transcriber {
	if cfg.MaxUploadSize <= 0 {
		cfg.MaxUploadSize = config.DefaultMaxUploadSize
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = config.DefaultPollInterval
	}
	if cfg.ProcessingTimeout <= 0 {
		cfg.ProcessingTimeout = config.DefaultProcessingTimeout
	}
	if cfg.UploadTimeout <= 0 {
		cfg.UploadTimeout = config.DefaultUploadTimeout
	}
	if cfg.GenerateTimeout <= 0 {
		cfg.GenerateTimeout = config.DefaultGenerateTimeout
	}
	if cfg.CleanupTimeout <= 0 {
		cfg.CleanupTimeout = config.DefaultCleanupTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Transcriber{
		backend: backend,
		cfg:     cfg,
		logger:  logger,
	}
}

// Transcribe uploads the artifact, waits for the service to process it and
// returns the generated transcript. Once an upload succeeds the remote file is
// deleted exactly once, whatever happens afterwards.
func (t *Transcriber) Transcribe(ctx context.Context, artifact *domain.MediaArtifact) (string, error) {
	if artifact.Size > t.cfg.MaxUploadSize {
		return "", domain.Errorf(domain.KindFileTooLargeForAPI, "transcribe",
			"%.1fMB exceeds %.0fMB", mb(artifact.Size), mb(t.cfg.MaxUploadSize))
	}

	logger := t.logger.With("path", artifact.Path, "size_bytes", artifact.Size)
	logger.Info("uploading video")

	job, err := t.upload(ctx, artifact.Path)
	if err != nil {
		return "", err
	}

	defer t.cleanup(ctx, job, logger)

	if errors.Is(ctx.Err(), context.Canceled) {
		return "", domain.NewError(domain.KindCancelled, "upload", ctx.Err())
	}

	logger = logger.With("file", job.Name)
	logger.Debug("upload complete, waiting for processing")

	if err := t.waitActive(ctx, job); err != nil {
		return "", err
	}

	logger.Info("extracting transcript")

	genCtx, cancel := context.WithTimeout(ctx, t.cfg.GenerateTimeout)
	defer cancel()

	text, err := t.backend.Generate(genCtx, job, Prompt)
	if err != nil {
		return "", t.tag(ctx, "generate", err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return "", domain.Errorf(domain.KindExtractionFailed, "transcribe", "no speech detected or empty response")
	}

	return text, nil
}

// upload runs detached from cancellation of ctx so that a file the service
// accepted always comes back with a handle that can be deleted. It is still
// bounded by the upload timeout.
func (t *Transcriber) upload(ctx context.Context, path string) (*domain.RemoteJob, error) {
	upCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.UploadTimeout)
	defer cancel()

	job, err := t.backend.Upload(upCtx, path)
	if err != nil {
		return nil, t.tag(ctx, "upload", err)
	}
	if job == nil || job.Name == "" {
		return nil, domain.Errorf(domain.KindAPIError, "upload", "service returned no file handle")
	}
	return job, nil
}

// waitActive polls until the job is active, failed, or the processing
// deadline passes. Status calls share the deadline so a stalled request
// cannot outlive it.
func (t *Transcriber) waitActive(ctx context.Context, job *domain.RemoteJob) error {
	if job.Status == domain.RemoteActive {
		return nil
	}

	pollCtx, cancel := context.WithTimeout(ctx, t.cfg.ProcessingTimeout)
	defer cancel()
	ticker := time.NewTicker(t.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-pollCtx.Done():
			return t.pollDone(ctx)
		case <-ticker.C:
		}

		status, err := t.backend.Status(pollCtx, job.Name)
		if err != nil {
			if pollCtx.Err() != nil {
				return t.pollDone(ctx)
			}
			return t.tag(ctx, "poll", err)
		}
		job.Status = status

		switch status {
		case domain.RemoteActive:
			return nil
		case domain.RemoteFailed:
			return domain.Errorf(domain.KindAPIError, "poll", "video processing failed")
		}
	}
}

// pollDone reports why the poll context ended.
func (t *Transcriber) pollDone(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return domain.NewError(domain.KindCancelled, "poll", ctx.Err())
	}
	return domain.Errorf(domain.KindAPIError, "poll", "file processing timeout after %v", t.cfg.ProcessingTimeout)
}

// cleanup deletes the remote file on a context that survives cancellation
// of the request.
func (t *Transcriber) cleanup(ctx context.Context, job *domain.RemoteJob, logger *slog.Logger) {
	delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.CleanupTimeout)
	defer cancel()

	if err := t.backend.Delete(delCtx, job.Name); err != nil {
		cerr := domain.NewError(domain.KindCleanupFailed, "delete remote file", err)
		logger.Warn("failed to delete uploaded file", "file", job.Name, "error", cerr)
		return
	}
	logger.Debug("deleted uploaded file", "file", job.Name)
}

// tag makes sure backend errors carry a kind, preferring Cancelled when the
// caller's context is gone.
func (t *Transcriber) tag(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.Canceled) {
		return domain.NewError(domain.KindCancelled, op, err)
	}
	if _, ok := domain.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.KindAPIError, op, fmt.Errorf("request timed out: %w", err))
	}
	return domain.NewError(domain.KindAPIError, op, err)
}

func mb(b int64) float64 {
	return float64(b) / (1024 * 1024)
}
