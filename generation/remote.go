package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// GenerateResponse is the body of a successful /generate or /vibe-code call
type GenerateResponse struct {
	HTML      []string  `json:"html"`
	Variants  int       `json:"variants"`
	Timestamp time.Time `json:"timestamp"`
}

// EditResponse is the body of a successful /edit call
type EditResponse struct {
	HTML      string    `json:"html"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorResponse is the envelope returned for any failed call
type ErrorResponse struct {
	Error   bool   `json:"error"`
	Message string `json:"message"`
}

// RemoteError carries the message from a failed remote call
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("generation server returned %d: %s", e.StatusCode, e.Message)
}

// Remote is a Generator that calls an oscar generation server over HTTP
type Remote struct {
	baseURL string
	client  *http.Client
}

// NewRemote creates a client for the server at baseURL. A zero timeout
// leaves requests bounded only by their context.
func NewRemote(baseURL string, timeout time.Duration) *Remote {
	return &Remote{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *Remote) Generate(ctx context.Context, req GenerateRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var resp GenerateResponse
	if err := r.post(ctx, "/generate", req, &resp); err != nil {
		return nil, err
	}
	return resp.HTML, nil
}

func (r *Remote) Edit(ctx context.Context, req EditRequest) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	var resp EditResponse
	if err := r.post(ctx, "/edit", req, &resp); err != nil {
		return "", err
	}
	return resp.HTML, nil
}

func (r *Remote) VibeCode(ctx context.Context, req VibeCodeRequest) ([]string, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	var resp GenerateResponse
	if err := r.post(ctx, "/vibe-code", req, &resp); err != nil {
		return nil, err
	}
	return resp.HTML, nil
}

// BaseHTML fetches the seed document served at /base.html
func (r *Remote) BaseHTML(ctx context.Context) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/base.html", nil)
	if err != nil {
		return "", err
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("fetch base.html: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read base.html: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return string(body), nil
}

// Ping checks the server health endpoint
func (r *Remote) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, r.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := r.client.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &RemoteError{StatusCode: resp.StatusCode, Message: resp.Status}
	}
	return nil
}

func (r *Remote) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s response: %w", path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var env ErrorResponse
		if json.Unmarshal(body, &env) == nil && env.Message != "" {
			return &RemoteError{StatusCode: resp.StatusCode, Message: env.Message}
		}
		return &RemoteError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}

	var env ErrorResponse
	if json.Unmarshal(body, &env) == nil && env.Error {
		return &RemoteError{StatusCode: resp.StatusCode, Message: env.Message}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

var _ Generator = (*Remote)(nil)
