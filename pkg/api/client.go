// Package api implements the REST client for the burnout-analysis backend.
//
// The client is a thin transport layer: it performs no retries and no
// interpretation of job state. Retry/backoff policy belongs to the
// orchestrator, and 404 suggestion handling belongs to the resolver, so both
// need the raw status code and body, which StatusError preserves.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/vanderheijden86/burnboard/pkg/model"
)

// DefaultTimeout bounds a single request. Poll-level deadlines are shorter
// and come from the caller's context.
const DefaultTimeout = 30 * time.Second

// StatusError is returned for any non-2xx response. Body is the raw response
// body, preserved because 404 bodies may embed a suggested replacement id.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	body := e.Body
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	return fmt.Sprintf("api status=%d body=%s", e.Code, strings.TrimSpace(body))
}

// IsNotFound reports whether err is a 404 StatusError.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == http.StatusNotFound
}

// TransportError wraps network-level failures (DNS, connect, timeout) so the
// orchestrator can distinguish them from backend rejections.
type TransportError struct {
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport: %v", e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying HTTP client (used by tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.http = hc
	}
}

// Client talks to the analysis backend over bearer-authenticated HTTPS.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewClient creates a client for the backend at baseURL.
func NewClient(baseURL, token string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateAnalysis submits a new analysis run and returns the created job id.
func (c *Client) CreateAnalysis(ctx context.Context, req model.AnalysisRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/analyses/run", nil, req, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", fmt.Errorf("backend returned no job id")
	}
	return out.ID, nil
}

// Analysis fetches a job by its internal id.
func (c *Client) Analysis(ctx context.Context, id string) (model.Job, error) {
	var job model.Job
	err := c.do(ctx, http.MethodGet, "/analyses/"+url.PathEscape(id), nil, nil, &job)
	return job, err
}

// AnalysisByRef fetches a job by either identifier form (internal id or
// public uuid).
func (c *Client) AnalysisByRef(ctx context.Context, ref string) (model.Job, error) {
	var job model.Job
	err := c.do(ctx, http.MethodGet, "/analyses/by-id/"+url.PathEscape(ref), nil, nil, &job)
	return job, err
}

// DeleteAnalysis removes a job. Callers treat 404 as success (the job was
// already gone).
func (c *Client) DeleteAnalysis(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/analyses/"+url.PathEscape(id), nil, nil, nil)
}

// HistoricalTrends fetches the daily time series covering the last daysBack days.
func (c *Client) HistoricalTrends(ctx context.Context, daysBack int) ([]model.TimeSeriesPoint, error) {
	q := url.Values{}
	q.Set("days_back", fmt.Sprint(daysBack))
	var out struct {
		Series []model.TimeSeriesPoint `json:"series"`
	}
	if err := c.do(ctx, http.MethodGet, "/analyses/trends/historical", q, nil, &out); err != nil {
		return nil, err
	}
	return out.Series, nil
}

// Integrations lists the connected integrations for a platform.
func (c *Client) Integrations(ctx context.Context, platform model.Platform) ([]model.Integration, error) {
	var out struct {
		Integrations []model.Integration `json:"integrations"`
	}
	path := "/" + url.PathEscape(string(platform)) + "/integrations"
	if err := c.do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return out.Integrations, nil
}

// PlatformStatus fetches the connection status for a platform.
func (c *Client) PlatformStatus(ctx context.Context, platform model.Platform) (model.PlatformStatus, error) {
	var out model.PlatformStatus
	path := "/integrations/" + url.PathEscape(string(platform)) + "/status"
	err := c.do(ctx, http.MethodGet, path, nil, nil, &out)
	return out, err
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body, out any) error {
	if c.baseURL == "" {
		return errors.New("api: empty base URL")
	}

	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		r = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, r)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
		return &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
