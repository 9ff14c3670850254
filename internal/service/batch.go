package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/iconidentify/reelscribe/internal/config"
	"github.com/iconidentify/reelscribe/internal/domain"
)

// URLProcessor handles one request.
type URLProcessor interface {
	Process(ctx context.Context, req domain.JobRequest) domain.ProcessResult
}

// Batch processes URLs sequentially with a fixed pause between items.
type Batch struct {
	proc     URLProcessor
	delay    time.Duration
	debug    bool
	progress io.Writer
	logger   *slog.Logger

	// sleep waits for d or until ctx is done.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBatch creates a batch runner. Progress markers are written to progress.
func NewBatch(proc URLProcessor, cfg config.BatchConfig, debug bool, progress io.Writer, logger *slog.Logger) *Batch {
	if cfg.Delay <= 0 {
		cfg.Delay = config.DefaultBatchDelay
	}
	if progress == nil {
		progress = io.Discard
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Batch{
		proc:     proc,
		delay:    cfg.Delay,
		debug:    debug,
		progress: progress,
		logger:   logger,
		sleep:    sleepContext,
	}
}

// Run processes urls in order. A failing item never stops the batch; a
// cancelled context does, and the items not yet started are recorded as
// cancelled.
func (b *Batch) Run(ctx context.Context, urls []string) *domain.BatchSummary {
	summary := &domain.BatchSummary{}
	total := len(urls)

	for i, url := range urls {
		n := i + 1

		if i > 0 {
			if err := b.sleep(ctx, b.delay); err != nil {
				b.cancelRemaining(summary, urls[i:], err)
				break
			}
		}
		if err := ctx.Err(); err != nil {
			b.cancelRemaining(summary, urls[i:], err)
			break
		}

		if total > 1 {
			fmt.Fprintf(b.progress, "[%d/%d] %s\n", n, total, url)
		}

		res := b.proc.Process(ctx, domain.NewJobRequest(url, b.debug))
		summary.Add(res)

		if !res.Success() && total > 1 {
			fmt.Fprintf(b.progress, "ERROR: [%d/%d] [FAILED] %s: %s\n", n, total, url, res.Message())
		}
	}

	b.logger.Info("batch finished",
		"total", summary.Total(),
		"succeeded", summary.Succeeded(),
		"failed", summary.Failed(),
	)
	return summary
}

func (b *Batch) cancelRemaining(summary *domain.BatchSummary, urls []string, cause error) {
	b.logger.Warn("batch cancelled", "remaining", len(urls))
	for _, url := range urls {
		summary.Add(domain.ProcessResult{
			Request: domain.NewJobRequest(url, b.debug),
			Err:     domain.NewError(domain.KindCancelled, "batch", cause),
			Stage:   domain.StageValidating,
		})
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// ReadURLFile loads a URL list file.
func ReadURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domain.Errorf(domain.KindInvalidInput, "read url file", "file not found: %s", path)
		}
		return nil, domain.NewError(domain.KindInvalidInput, "read url file", err)
	}
	defer f.Close()

	urls, err := ParseURLList(f)
	if err != nil {
		return nil, domain.NewError(domain.KindInvalidInput, "read url file", err)
	}
	return urls, nil
}

// ParseURLList returns one URL per non-blank line, skipping lines that
// start with '#'.
func ParseURLList(r io.Reader) ([]string, error) {
	var urls []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan url list: %w", err)
	}
	return urls, nil
}

var reportRule = strings.Repeat("=", 60)

// WriteReport prints the batch report.
func WriteReport(w io.Writer, summary *domain.BatchSummary) error {
	bw := bufio.NewWriter(w)

	fmt.Fprintf(bw, "\n%s\n", reportRule)
	fmt.Fprintf(bw, "BATCH RESULTS: %d/%d successful\n", summary.Succeeded(), summary.Total())
	fmt.Fprintf(bw, "%s\n", reportRule)

	for i, r := range summary.Results {
		if r.Success() {
			fmt.Fprintf(bw, "\n[%d] %s\n%s\n", i+1, r.Request.URL, r.Transcript)
		} else {
			fmt.Fprintf(bw, "\n[%d] [FAILED] %s: %s\n", i+1, r.Request.URL, r.Message())
		}
	}

	fmt.Fprintf(bw, "\n%s\n", reportRule)
	fmt.Fprintf(bw, "Summary: %d succeeded, %d failed\n", summary.Succeeded(), summary.Failed())

	return bw.Flush()
}
