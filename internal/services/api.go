// API service for making HTTP requests to the migration backend
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/desertthunder/syncctl/internal/shared"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "http://127.0.0.1:8000"

// APIService provides methods for making raw HTTP requests to the migration backend.
//
// Every request waits on a shared [rate.Limiter] so polling and operator actions together stay under the configured rate.
type APIService struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewAPIService creates a new API service instance for the backend at baseURL.
func NewAPIService(baseURL string, client *http.Client) *APIService {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if client == nil {
		client = http.DefaultClient
	}

	return &APIService{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: client,
		limiter:    rate.NewLimiter(rate.Inf, 1),
	}
}

// WithRateLimit caps outgoing requests at rps per second. Non-positive values remove the cap.
func (a *APIService) WithRateLimit(rps float64) *APIService {
	if rps <= 0 {
		a.limiter = rate.NewLimiter(rate.Inf, 1)
		return a
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	a.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	return a
}

// BaseURL returns the backend root the service targets.
func (a *APIService) BaseURL() string {
	return a.baseURL
}

// APIResponse represents a raw API response with status and body.
type APIResponse struct {
	StatusCode int
	Headers    http.Header
	Body       []byte
	IsJSON     bool
	JSONData   any
}

// OK reports a 2xx status.
func (r *APIResponse) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// APIError is a non-2xx response. Detail is the backend's {"detail": ...} message when present.
type APIError struct {
	Method string
	Path   string
	Status int
	Detail string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d: %s", e.Method, e.Path, e.Status, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

// Unwrap maps the response onto the shared sentinels so callers can use [errors.Is].
func (e *APIError) Unwrap() []error {
	errs := []error{shared.ErrAPIRequest}
	switch {
	case e.Status == http.StatusServiceUnavailable && strings.Contains(strings.ToUpper(e.Detail), "SAFE MODE"):
		errs = append(errs, shared.ErrRestricted)
	case e.Status == http.StatusServiceUnavailable:
		errs = append(errs, shared.ErrServiceUnavailable)
	case e.Status == http.StatusNotFound:
		errs = append(errs, shared.ErrNotFound)
	}
	return errs
}

// Get performs a GET request to the specified path and returns the raw response.
func (a *APIService) Get(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodGet, path, nil)
}

// Post performs a POST request with the given JSON data and returns the raw response.
func (a *APIService) Post(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPost, path, data)
}

// Put performs a PUT request with an optional JSON body.
func (a *APIService) Put(ctx context.Context, path string, data []byte) (*APIResponse, error) {
	return a.do(ctx, http.MethodPut, path, data)
}

// Delete performs a DELETE request.
func (a *APIService) Delete(ctx context.Context, path string) (*APIResponse, error) {
	return a.do(ctx, http.MethodDelete, path, nil)
}

func (a *APIService) do(ctx context.Context, method, path string, data []byte) (*APIResponse, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	var body io.Reader
	if data != nil {
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if data != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: request failed: %w", shared.ErrServiceUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	apiResp := &APIResponse{
		StatusCode: resp.StatusCode,
		Headers:    resp.Header,
		Body:       raw,
	}

	var jsonData any
	if err := json.Unmarshal(raw, &jsonData); err == nil {
		apiResp.IsJSON = true
		apiResp.JSONData = jsonData
	}

	return apiResp, nil
}

// call performs the request, turns non-2xx responses into [*APIError] and decodes the body into out when out is non-nil.
func (a *APIService) call(ctx context.Context, method, path string, in, out any) error {
	var data []byte
	if in != nil {
		var err error
		if data, err = json.Marshal(in); err != nil {
			return fmt.Errorf("%w: failed to encode request: %v", shared.ErrInvalidInput, err)
		}
	}

	resp, err := a.do(ctx, method, path, data)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Detail: detailOf(resp.Body)}
	}

	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%w: failed to decode %s %s: %v", shared.ErrAPIRequest, method, path, err)
	}
	return nil
}

// detailOf extracts FastAPI-style {"detail": "..."} bodies. Validation errors carry a list; its first msg is used.
func detailOf(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || len(payload.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}

	var s string
	if err := json.Unmarshal(payload.Detail, &s); err == nil {
		return s
	}

	var list []struct {
		Msg string `json:"msg"`
	}
	if err := json.Unmarshal(payload.Detail, &list); err == nil && len(list) > 0 {
		return list[0].Msg
	}
	return string(payload.Detail)
}

// IsRestricted reports whether err came from the backend refusing a mutation in restricted mode.
func IsRestricted(err error) bool {
	return errors.Is(err, shared.ErrRestricted)
}
