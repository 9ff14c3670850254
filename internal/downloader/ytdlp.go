package downloader

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/iconidentify/reelscribe/internal/config"
	"github.com/iconidentify/reelscribe/internal/domain"
)

const (
	defaultWatchInterval = 500 * time.Millisecond
	stderrTailLen        = 300
)

// partialSuffixes mark files yt-dlp is still writing.
var partialSuffixes = []string{".part", ".ytdl", ".temp"}

// YtdlpDownloader implements Downloader by running yt-dlp as a subprocess.
type YtdlpDownloader struct {
	path          string
	tempPath      string
	timeout       time.Duration
	maxFileSize   int64
	watchInterval time.Duration
	runner        commandRunner
	logger        *slog.Logger
}

// NewYtdlpDownloader creates a yt-dlp based downloader.
func NewYtdlpDownloader(cfg config.DownloadConfig, logger *slog.Logger) *YtdlpDownloader {
	if cfg.YtdlpPath == "" {
		cfg.YtdlpPath = config.DefaultYtdlpPath
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.DefaultDownloadTimeout
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = config.DefaultMaxFileSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &YtdlpDownloader{
		path:          cfg.YtdlpPath,
		tempPath:      cfg.TempPath,
		timeout:       cfg.Timeout,
		maxFileSize:   cfg.MaxFileSize,
		watchInterval: defaultWatchInterval,
		runner:        &execRunner{},
		logger:        logger,
	}
}

// Download runs yt-dlp for url, bounded by the configured timeout and size cap.
func (d *YtdlpDownloader) Download(ctx context.Context, url string) (_ *domain.MediaArtifact, err error) {
	dir, err := os.MkdirTemp(d.tempPath, "reel_")
	if err != nil {
		return nil, domain.NewError(domain.KindDownloadFailed, "download", fmt.Errorf("create temp dir: %w", err))
	}

	// Nothing may remain on disk when the download fails.
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(dir); rmErr != nil {
				d.logger.Warn("failed to remove partial download", "dir", dir, "error", rmErr)
			}
		}
	}()

	cmdCtx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	var tooLarge atomic.Bool
	watchCtx, stopWatch := context.WithCancel(cmdCtx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		d.watchSize(watchCtx, dir, func() {
			tooLarge.Store(true)
			cancel()
		})
	}()

	d.logger.Debug("running yt-dlp", "url", url, "dir", dir)
	res, runErr := d.runner.Run(cmdCtx, d.path, d.args(dir, url)...)
	stopWatch()
	wg.Wait()

	switch {
	case tooLarge.Load():
		return nil, domain.Errorf(domain.KindDownloadTooLarge, "download", "exceeded %s while downloading", formatSize(d.maxFileSize))
	case errors.Is(ctx.Err(), context.Canceled):
		return nil, domain.NewError(domain.KindCancelled, "download", ctx.Err())
	case errors.Is(cmdCtx.Err(), context.DeadlineExceeded):
		return nil, domain.Errorf(domain.KindDownloadTimeout, "download", "yt-dlp did not finish within %v", d.timeout)
	}

	output := res.Stdout + res.Stderr
	if strings.Contains(output, "larger than max-filesize") {
		return nil, domain.Errorf(domain.KindDownloadTooLarge, "download", "yt-dlp reported a file over %s", formatSize(d.maxFileSize))
	}

	if runErr != nil {
		detail := tail(strings.TrimSpace(res.Stderr), stderrTailLen)
		if detail == "" {
			detail = runErr.Error()
		}
		return nil, domain.Errorf(domain.KindDownloadFailed, "download", "yt-dlp exited with status %d: %s", res.ExitCode, detail)
	}

	path, err := findVideo(dir)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, domain.NewError(domain.KindDownloadFailed, "download", fmt.Errorf("stat output: %w", err))
	}

	// The declared size may be missing or wrong; only bytes on disk count.
	if info.Size() > d.maxFileSize {
		return nil, domain.Errorf(domain.KindDownloadTooLarge, "download", "downloaded %s, limit is %s", formatSize(info.Size()), formatSize(d.maxFileSize))
	}

	d.logger.Debug("download complete", "path", path, "size_bytes", info.Size())

	return domain.NewMediaArtifact(path, dir, info.Size()), nil
}

func (d *YtdlpDownloader) args(dir, url string) []string {
	return []string{
		"-P", dir,
		"-o", "%(id)s.%(ext)s",
		"--max-filesize", strconv.FormatInt(d.maxFileSize, 10),
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--",
		url,
	}
}

// watchSize samples the bytes written to dir and calls onExceed once they
// pass the size cap.
func (d *YtdlpDownloader) watchSize(ctx context.Context, dir string, onExceed func()) {
	ticker := time.NewTicker(d.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if dirSize(dir) > d.maxFileSize {
				d.logger.Debug("download exceeded size cap, stopping yt-dlp", "dir", dir)
				onExceed()
				return
			}
		}
	}
}

func dirSize(dir string) int64 {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if info, err := e.Info(); err == nil {
			total += info.Size()
		}
	}
	return total
}

// findVideo returns the newest finished video file in dir.
func findVideo(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", domain.NewError(domain.KindDownloadFailed, "download", fmt.Errorf("read output dir: %w", err))
	}

	type candidate struct {
		path    string
		modTime time.Time
	}
	var videos []candidate
	var others []string

	for _, e := range entries {
		if e.IsDir() || isPartial(e.Name()) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if domain.IsSupportedFormat(filepath.Ext(e.Name())) {
			videos = append(videos, candidate{filepath.Join(dir, e.Name()), info.ModTime()})
		} else {
			others = append(others, e.Name())
		}
	}

	if len(videos) == 0 {
		if len(others) > 0 {
			return "", domain.Errorf(domain.KindUnsupportedFormat, "download", "got %s, expected one of %s",
				others[0], strings.Join(domain.SupportedFormats, ", "))
		}
		return "", domain.Errorf(domain.KindDownloadFailed, "download", "no video file produced")
	}

	sort.Slice(videos, func(i, j int) bool {
		return videos[i].modTime.After(videos[j].modTime)
	})
	return videos[0].path, nil
}

func isPartial(name string) bool {
	for _, s := range partialSuffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return "..." + s[len(s)-n:]
}

func formatSize(b int64) string {
	return fmt.Sprintf("%.1fMB", float64(b)/(1024*1024))
}
