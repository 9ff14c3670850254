// Package ui provides the embedded web page for the transcription server.
package ui

import (
	_ "embed"
)

// IndexHTML is the single-page form that posts a URL to /transcribe and
// shows the transcript or error.
//
//go:embed index.html
var IndexHTML []byte
