package preflight

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/iconidentify/reelscribe/internal/domain"
)

// installHints are shown when a required tool is missing.
var installHints = map[string]string{
	"yt-dlp": "Install with: pip install yt-dlp",
}

// Checker validates that external tools are available on PATH.
type Checker struct {
	lookPath func(string) (string, error)
}

// NewChecker builds a checker using the platform's executable lookup.
func NewChecker() *Checker {
	return &Checker{
		lookPath: exec.LookPath,
	}
}

// RequireTool returns the resolved path of name, or a fatal DependencyMissing error.
func (c *Checker) RequireTool(name string) (string, error) {
	path, err := c.lookPath(name)
	if err != nil {
		msg := fmt.Errorf("%s not installed", name)
		if hint, ok := installHints[filepath.Base(name)]; ok {
			msg = fmt.Errorf("%s not installed. %s", name, hint)
		}
		return "", domain.NewError(domain.KindDependencyMissing, "", msg)
	}
	return path, nil
}
