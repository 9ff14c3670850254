package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/iconidentify/reelscribe/internal/domain"
	"github.com/iconidentify/reelscribe/internal/downloader"
	"github.com/iconidentify/reelscribe/internal/validate"
)

// NetworkChecker reports whether the internet is reachable.
type NetworkChecker interface {
	Require(ctx context.Context) error
}

// Transcriber turns a downloaded artifact into text.
type Transcriber interface {
	Transcribe(ctx context.Context, artifact *domain.MediaArtifact) (string, error)
}

// Processor runs one URL through validate, download, transcribe and cleanup.
type Processor struct {
	probe       NetworkChecker
	downloader  downloader.Downloader
	transcriber Transcriber
	logger      *slog.Logger
}

// NewProcessor creates a Processor. probe may be nil when connectivity is
// checked once up front by the caller.
func NewProcessor(
	probe NetworkChecker,
	dl downloader.Downloader,
	tr Transcriber,
	logger *slog.Logger,
) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		probe:       probe,
		downloader:  dl,
		transcriber: tr,
		logger:      logger,
	}
}

// Process handles a single request. It never returns an error: every failure
// is reported in the result, and the downloaded file is removed on every path.
func (p *Processor) Process(ctx context.Context, req domain.JobRequest) (result domain.ProcessResult) {
	start := time.Now()
	result = domain.ProcessResult{Request: req, Stage: domain.StageValidating}

	logger := p.logger.With("request_id", req.ID, "url", req.URL)

	defer func() {
		if r := recover(); r != nil {
			logger.Error("panic while processing", "stage", result.Stage, "panic", r)
			result.Transcript = ""
			result.Err = domain.Errorf(domain.KindAPIError, string(result.Stage), "internal error: %v", r)
		}
		result.Duration = time.Since(start)
		if result.Err != nil {
			logger.Error("processing failed",
				"stage", result.Stage,
				"kind", result.Err.Kind,
				"error", result.Err,
				"duration", result.Duration,
			)
		} else {
			logger.Info("processing complete", "duration", result.Duration, "chars", len(result.Transcript))
		}
	}()

	fail := func(err error, fallback domain.Kind) domain.ProcessResult {
		result.Err = domain.Ensure(err, fallback, string(result.Stage))
		return result
	}

	if err := ctx.Err(); err != nil {
		return fail(domain.NewError(domain.KindCancelled, "process", err), domain.KindCancelled)
	}

	platform, err := validate.Platform(req.URL)
	if err != nil {
		return fail(err, domain.KindInvalidURL)
	}
	logger = logger.With("platform", platform)

	if p.probe != nil {
		result.Stage = domain.StageCheckingNetwork
		logger.Debug("checking network")
		if err := p.probe.Require(ctx); err != nil {
			return fail(err, domain.KindNetworkError)
		}
	}

	result.Stage = domain.StageDownloading
	logger.Info("downloading video")
	artifact, err := p.downloader.Download(ctx, req.URL)
	if err != nil {
		return fail(err, domain.KindDownloadFailed)
	}
	if artifact == nil {
		return fail(fmt.Errorf("downloader returned no file"), domain.KindDownloadFailed)
	}

	defer func() {
		if err := artifact.Remove(); err != nil {
			logger.Warn("failed to remove downloaded file", "dir", artifact.Dir, "error", err)
		} else {
			logger.Debug("removed downloaded file", "dir", artifact.Dir)
		}
	}()

	logger.Debug("download complete", "size_bytes", artifact.Size, "format", artifact.Format)

	result.Stage = domain.StageTranscribing
	text, err := p.transcriber.Transcribe(ctx, artifact)
	if err != nil {
		return fail(err, domain.KindAPIError)
	}

	result.Stage = domain.StageDone
	result.Transcript = text
	return result
}
