package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/iconidentify/reelscribe/internal/domain"
	"github.com/iconidentify/reelscribe/internal/worker"
)

const maxBodyBytes = 64 * 1024

// Submitter runs one request through the serial worker.
type Submitter interface {
	Submit(ctx context.Context, req domain.JobRequest) (domain.ProcessResult, error)
}

// TranscribeHandler handles transcription requests from the web UI.
type TranscribeHandler struct {
	queue  Submitter
	debug  bool
	logger *slog.Logger
}

// NewTranscribeHandler creates a new transcribe handler.
func NewTranscribeHandler(queue Submitter, debug bool, logger *slog.Logger) *TranscribeHandler {
	return &TranscribeHandler{
		queue:  queue,
		debug:  debug,
		logger: logger,
	}
}

// TranscribeRequest accepts a single URL or a list.
type TranscribeRequest struct {
	URL  string   `json:"url,omitempty"`
	URLs []string `json:"urls,omitempty"`
}

// TranscribeResponse is returned for a single URL.
type TranscribeResponse struct {
	Success       bool   `json:"success"`
	Transcription string `json:"transcription,omitempty"`
	Error         string `json:"error,omitempty"`
	Kind          string `json:"kind,omitempty"`
}

// ItemResult is one entry of a batch response.
type ItemResult struct {
	URL           string `json:"url"`
	Success       bool   `json:"success"`
	Transcription string `json:"transcription,omitempty"`
	Error         string `json:"error,omitempty"`
	Kind          string `json:"kind,omitempty"`
}

// BatchResponse is returned for a URL list.
type BatchResponse struct {
	Success bool         `json:"success"`
	Results []ItemResult `json:"results"`
}

// Transcribe handles POST /transcribe.
func (h *TranscribeHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	var req TranscribeRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, TranscribeResponse{Error: "ERROR: No URLs provided"})
		return
	}

	if len(req.URLs) > 0 {
		h.batch(w, r, compact(req.URLs))
		return
	}

	url := strings.TrimSpace(req.URL)
	if url == "" {
		writeJSON(w, http.StatusBadRequest, TranscribeResponse{Error: "ERROR: No URLs provided"})
		return
	}

	res, err := h.queue.Submit(r.Context(), domain.NewJobRequest(url, h.debug))
	if err != nil {
		status, msg := queueError(err)
		h.logger.Warn("request not processed", "url", url, "error", err)
		writeJSON(w, status, TranscribeResponse{Error: "ERROR: " + msg})
		return
	}

	if !res.Success() {
		writeJSON(w, StatusForKind(res.Kind()), TranscribeResponse{
			Error: "ERROR: " + res.Message(),
			Kind:  string(res.Kind()),
		})
		return
	}

	writeJSON(w, http.StatusOK, TranscribeResponse{
		Success:       true,
		Transcription: res.Transcript,
	})
}

func (h *TranscribeHandler) batch(w http.ResponseWriter, r *http.Request, urls []string) {
	if len(urls) == 0 {
		writeJSON(w, http.StatusBadRequest, TranscribeResponse{Error: "ERROR: No URLs provided"})
		return
	}

	resp := BatchResponse{Success: true, Results: make([]ItemResult, 0, len(urls))}
	for _, url := range urls {
		item := ItemResult{URL: url}

		res, err := h.queue.Submit(r.Context(), domain.NewJobRequest(url, h.debug))
		switch {
		case err != nil:
			_, msg := queueError(err)
			item.Error = "ERROR: " + msg
			item.Kind = string(domain.KindCancelled)
		case res.Success():
			item.Success = true
			item.Transcription = res.Transcript
		default:
			item.Error = "ERROR: " + res.Message()
			item.Kind = string(res.Kind())
		}
		resp.Results = append(resp.Results, item)
	}

	writeJSON(w, http.StatusOK, resp)
}

// StatusForKind maps a failure kind to an HTTP status code.
func StatusForKind(k domain.Kind) int {
	switch k {
	case domain.KindInvalidURL, domain.KindInvalidInput:
		return http.StatusBadRequest
	case domain.KindDownloadTooLarge, domain.KindFileTooLargeForAPI:
		return http.StatusRequestEntityTooLarge
	case domain.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case domain.KindRateLimited:
		return http.StatusTooManyRequests
	case domain.KindNetworkError, domain.KindDependencyMissing, domain.KindAPIKeyMissing:
		return http.StatusServiceUnavailable
	case domain.KindDownloadTimeout:
		return http.StatusGatewayTimeout
	case domain.KindDownloadFailed, domain.KindAPIError, domain.KindAPIKeyInvalid, domain.KindExtractionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func queueError(err error) (int, string) {
	switch {
	case errors.Is(err, worker.ErrQueueFull):
		return http.StatusServiceUnavailable, "Server busy, try again shortly"
	case errors.Is(err, worker.ErrStopped):
		return http.StatusServiceUnavailable, "Server is shutting down"
	default:
		return http.StatusServiceUnavailable, "Request cancelled"
	}
}

func compact(urls []string) []string {
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		if u = strings.TrimSpace(u); u != "" {
			out = append(out, u)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
