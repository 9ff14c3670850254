package domain

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// SupportedFormats lists the container formats accepted from the downloader.
var SupportedFormats = []string{"mp4", "mkv", "webm", "mov", "flv"}

// IsSupportedFormat checks if a file extension (with or without dot) is accepted.
func IsSupportedFormat(ext string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, f := range SupportedFormats {
		if ext == f {
			return true
		}
	}
	return false
}

// MediaArtifact is a downloaded media file inside its own temp directory.
type MediaArtifact struct {
	Path   string
	Dir    string
	Size   int64
	Format string

	once      sync.Once
	removeErr error
}

// NewMediaArtifact describes a downloaded file.
func NewMediaArtifact(path, dir string, size int64) *MediaArtifact {
	return &MediaArtifact{
		Path:   path,
		Dir:    dir,
		Size:   size,
		Format: strings.ToLower(strings.TrimPrefix(filepath.Ext(path), ".")),
	}
}

// Remove deletes the artifact and its directory. Only the first call touches
// the filesystem; later calls return the first call's result.
func (a *MediaArtifact) Remove() error {
	if a == nil {
		return nil
	}
	a.once.Do(func() {
		target := a.Dir
		if target == "" {
			target = a.Path
		}
		if err := os.RemoveAll(target); err != nil {
			a.removeErr = NewError(KindCleanupFailed, "remove artifact", err)
		}
	})
	return a.removeErr
}

// RemoteStatus is the state of a file on the transcription service.
type RemoteStatus string

const (
	RemoteUploading  RemoteStatus = "uploading"
	RemoteProcessing RemoteStatus = "processing"
	RemoteActive     RemoteStatus = "active"
	RemoteFailed     RemoteStatus = "failed"
)

// Terminal reports whether no further transition will occur.
func (s RemoteStatus) Terminal() bool {
	return s == RemoteActive || s == RemoteFailed
}

// RemoteJob is an uploaded media file on the transcription service.
type RemoteJob struct {
	Name     string
	URI      string
	MIMEType string
	Status   RemoteStatus
}
