package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a pipeline failure. Every component returns failures tagged
// with a Kind at its own boundary; callers never infer it from message text.
type Kind string

const (
	KindInvalidURL         Kind = "InvalidURL"
	KindInvalidInput       Kind = "InvalidInput"
	KindDependencyMissing  Kind = "DependencyMissing"
	KindNetworkError       Kind = "NetworkError"
	KindDownloadTimeout    Kind = "DownloadTimeout"
	KindDownloadTooLarge   Kind = "DownloadTooLarge"
	KindDownloadFailed     Kind = "DownloadFailed"
	KindUnsupportedFormat  Kind = "UnsupportedFormat"
	KindFileTooLargeForAPI Kind = "FileTooLargeForAPI"
	KindAPIKeyMissing      Kind = "APIKeyMissing"
	KindAPIKeyInvalid      Kind = "APIKeyInvalid"
	KindRateLimited        Kind = "RateLimited"
	KindAPIError           Kind = "APIError"
	KindExtractionFailed   Kind = "ExtractionFailed"
	KindCancelled          Kind = "Cancelled"
	KindCleanupFailed      Kind = "CleanupFailed"
)

// Process exit codes.
const (
	ExitOK         = 0
	ExitInvalidURL = 1
	ExitDownload   = 2
	ExitPreflight  = 3
	ExitRateLimit  = 4
	ExitAPI        = 5
	ExitExtraction = 6
	ExitNetwork    = 7
	ExitCancelled  = 130
)

// ExitCode returns the process exit code for the kind.
func (k Kind) ExitCode() int {
	switch k {
	case KindInvalidURL, KindInvalidInput:
		return ExitInvalidURL
	case KindDownloadTimeout, KindDownloadTooLarge, KindDownloadFailed, KindUnsupportedFormat:
		return ExitDownload
	case KindDependencyMissing, KindAPIKeyMissing:
		return ExitPreflight
	case KindRateLimited:
		return ExitRateLimit
	case KindAPIError, KindAPIKeyInvalid:
		return ExitAPI
	case KindFileTooLargeForAPI, KindExtractionFailed:
		return ExitExtraction
	case KindNetworkError:
		return ExitNetwork
	case KindCancelled:
		return ExitCancelled
	case KindCleanupFailed:
		return ExitOK
	default:
		return ExitAPI
	}
}

// Fatal reports whether the kind aborts the whole run rather than one URL.
func (k Kind) Fatal() bool {
	return k == KindDependencyMissing || k == KindAPIKeyMissing
}

// Message returns the user-facing description of the kind.
func (k Kind) Message() string {
	switch k {
	case KindInvalidURL:
		return "Invalid URL"
	case KindInvalidInput:
		return "Invalid input"
	case KindDependencyMissing:
		return "Required dependency not installed"
	case KindNetworkError:
		return "No internet connection"
	case KindDownloadTimeout:
		return "Download timed out"
	case KindDownloadTooLarge:
		return "Downloaded video exceeds the size limit"
	case KindDownloadFailed:
		return "Could not download"
	case KindUnsupportedFormat:
		return "Unsupported video format"
	case KindFileTooLargeForAPI:
		return "Video file too large for free tier (max 20MB)"
	case KindAPIKeyMissing:
		return "GEMINI_API_KEY not found in .env file"
	case KindAPIKeyInvalid:
		return "Gemini API error - check your API key"
	case KindRateLimited:
		return "Gemini API rate limit (wait 1 minute)"
	case KindAPIError:
		return "Gemini API error"
	case KindExtractionFailed:
		return "Could not transcribe"
	case KindCancelled:
		return "Cancelled"
	case KindCleanupFailed:
		return "Cleanup failed"
	default:
		return string(k)
	}
}

// Error is the tagged failure returned across component boundaries.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	msg := e.Kind.Message()
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// UserMessage renders the error for stderr and HTTP responses, without the
// internal operation prefix.
func (e *Error) UserMessage() string {
	if e.Err != nil {
		return e.Kind.Message() + " - " + e.Err.Error()
	}
	return e.Kind.Message()
}

// NewError creates a new Error.
func NewError(kind Kind, op string, err error) *Error {
	return &Error{
		Kind: kind,
		Op:   op,
		Err:  err,
	}
}

// Errorf creates a new Error with a formatted detail.
func Errorf(kind Kind, op string, format string, args ...any) *Error {
	return NewError(kind, op, fmt.Errorf(format, args...))
}

// AsError extracts the tagged error from err, if any.
func AsError(err error) (*Error, bool) {
	var de *Error
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// KindOf returns the Kind of err, falling back to fallback when err carries no tag.
func KindOf(err error, fallback Kind) Kind {
	if de, ok := AsError(err); ok {
		return de.Kind
	}
	return fallback
}

// Ensure tags err with fallback unless it already carries a Kind.
func Ensure(err error, fallback Kind, op string) *Error {
	if err == nil {
		return nil
	}
	if de, ok := AsError(err); ok {
		return de
	}
	return NewError(fallback, op, err)
}
