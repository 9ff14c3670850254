package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/googleapis/gax-go/v2/apierror"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"

	"github.com/iconidentify/reelscribe/internal/domain"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.5-flash"

// mimeTypes maps supported video extensions to upload MIME types.
var mimeTypes = map[string]string{
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".flv":  "video/x-flv",
}

// Config for creating a new Gemini client.
type Config struct {
	APIKey string
	Model  string // Optional, defaults to DefaultModel
}

// Client talks to the Gemini file and generateContent APIs.
type Client struct {
	genai *genai.Client
	model string
}

// NewClient creates a Gemini client authenticated with an API key.
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, domain.Errorf(domain.KindAPIKeyMissing, "gemini", "GEMINI_API_KEY is not set")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}

	gc, err := genai.NewClient(ctx, option.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, Classify("gemini client", err)
	}

	return &Client{genai: gc, model: cfg.Model}, nil
}

// Model returns the generation model name.
func (c *Client) Model() string {
	return c.model
}

// Close releases the underlying connections.
func (c *Client) Close() error {
	return c.genai.Close()
}

// Upload sends a local media file to the file API.
func (c *Client) Upload(ctx context.Context, path string) (*domain.RemoteJob, error) {
	f, err := c.genai.UploadFileFromPath(ctx, path, &genai.UploadFileOptions{
		DisplayName: filepath.Base(path),
		MIMEType:    MIMEType(path),
	})
	if err != nil {
		return nil, Classify("upload", err)
	}
	return toRemoteJob(f), nil
}

// Status reports the processing state of an uploaded file.
func (c *Client) Status(ctx context.Context, name string) (domain.RemoteStatus, error) {
	f, err := c.genai.GetFile(ctx, name)
	if err != nil {
		return "", Classify("file status", err)
	}
	return toStatus(f.State), nil
}

// Generate asks the model for text about an active uploaded file.
func (c *Client) Generate(ctx context.Context, job *domain.RemoteJob, prompt string) (string, error) {
	model := c.genai.GenerativeModel(c.model)
	resp, err := model.GenerateContent(ctx,
		genai.FileData{MIMEType: job.MIMEType, URI: job.URI},
		genai.Text(prompt),
	)
	if err != nil {
		return "", Classify("generate", err)
	}
	return responseText(resp), nil
}

// Delete removes an uploaded file.
func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.genai.DeleteFile(ctx, name); err != nil {
		return Classify("delete", err)
	}
	return nil
}

// ListModels returns the names of models that support generateContent, sorted.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	var names []string
	it := c.genai.ListModels(ctx)
	for {
		m, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, Classify("list models", err)
		}
		if supportsGenerate(m.SupportedGenerationMethods) {
			names = append(names, m.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

// MIMEType infers the upload MIME type from a file extension.
func MIMEType(path string) string {
	if mt, ok := mimeTypes[strings.ToLower(filepath.Ext(path))]; ok {
		return mt
	}
	return "application/octet-stream"
}

// Classify tags a Gemini API error with the matching domain kind.
// Cancellation is reported as Cancelled, deadlines as APIError.
func Classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if _, ok := domain.AsError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) {
		return domain.NewError(domain.KindCancelled, op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.NewError(domain.KindAPIError, op, fmt.Errorf("request timed out: %w", err))
	}

	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		if kind, ok := kindForReason(apiErr.Reason()); ok {
			return domain.NewError(kind, op, err)
		}
		if kind, ok := kindForStatus(apiErr.HTTPCode()); ok {
			return domain.NewError(kind, op, err)
		}
		if st := apiErr.GRPCStatus(); st != nil {
			switch st.Code() {
			case codes.Unauthenticated, codes.PermissionDenied:
				return domain.NewError(domain.KindAPIKeyInvalid, op, err)
			case codes.ResourceExhausted:
				return domain.NewError(domain.KindRateLimited, op, err)
			}
		}
	}

	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		for _, item := range gErr.Errors {
			if kind, ok := kindForReason(item.Reason); ok {
				return domain.NewError(kind, op, err)
			}
		}
		if kind, ok := kindForStatus(gErr.Code); ok {
			return domain.NewError(kind, op, err)
		}
	}

	return domain.NewError(domain.KindAPIError, op, err)
}

func kindForStatus(code int) (domain.Kind, bool) {
	switch code {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.KindAPIKeyInvalid, true
	case http.StatusTooManyRequests:
		return domain.KindRateLimited, true
	}
	return "", false
}

func kindForReason(reason string) (domain.Kind, bool) {
	r := strings.ToUpper(reason)
	switch {
	case r == "":
		return "", false
	case r == "API_KEY_INVALID", strings.Contains(r, "API_KEY"):
		return domain.KindAPIKeyInvalid, true
	case r == "RESOURCE_EXHAUSTED", r == "RATE_LIMIT_EXCEEDED", strings.Contains(r, "QUOTA"):
		return domain.KindRateLimited, true
	}
	return "", false
}

func toRemoteJob(f *genai.File) *domain.RemoteJob {
	return &domain.RemoteJob{
		Name:     f.Name,
		URI:      f.URI,
		MIMEType: f.MIMEType,
		Status:   toStatus(f.State),
	}
}

func toStatus(s genai.FileState) domain.RemoteStatus {
	switch s {
	case genai.FileStateActive:
		return domain.RemoteActive
	case genai.FileStateFailed:
		return domain.RemoteFailed
	default:
		return domain.RemoteProcessing
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	var b strings.Builder
	for _, cand := range resp.Candidates {
		if cand == nil || cand.Content == nil {
			continue
		}
		for _, part := range cand.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				b.WriteString(string(text))
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func supportsGenerate(methods []string) bool {
	for _, m := range methods {
		if m == "generateContent" {
			return true
		}
	}
	return false
}
