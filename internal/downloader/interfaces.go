package downloader

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"

	"github.com/iconidentify/reelscribe/internal/domain"
)

// Downloader fetches the video behind a post URL into a local file.
type Downloader interface {
	// Download saves the video for url into a fresh temp directory.
	// On success the caller owns the artifact and must Remove it.
	// On failure nothing is left on disk.
	Download(ctx context.Context, url string) (*domain.MediaArtifact, error)
}

// commandResult is the captured output of one external command.
type commandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// commandRunner abstracts process execution for testability.
type commandRunner interface {
	Run(ctx context.Context, name string, args ...string) (commandResult, error)
}

// processWaitDelay bounds how long Run waits for output pipes after the
// context ends. Children of the tool (ffmpeg merges) may hold them open.
const processWaitDelay = 2 * time.Second

// execRunner executes commands via os/exec.
type execRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
// Cancelling ctx kills the command together with every process it started.
func (r *execRunner) Run(ctx context.Context, name string, args ...string) (commandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	killProcessTree(cmd)
	cmd.WaitDelay = processWaitDelay
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := commandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}

	return result, nil
}
