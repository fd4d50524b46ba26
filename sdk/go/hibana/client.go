package hibana

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the Hibana server (e.g. "http://localhost:8080").
	BaseURL string

	// HTTPClient is an optional custom HTTP client. If nil, a default client
	// with a 30-second timeout is used.
	HTTPClient *http.Client

	// Timeout applies to individual API requests. Defaults to 30 seconds.
	Timeout time.Duration
}

// Client is an HTTP client for the Hibana analysis API.
// All methods are safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient creates a Client from the given configuration.
// Returns an error if BaseURL is empty.
func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("hibana: BaseURL is required")
	}

	baseURL := strings.TrimRight(cfg.BaseURL, "/")

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Client{
		baseURL: baseURL,
		client:  httpClient,
	}, nil
}

// Analyze submits a source reference (a file path, directory, or URL
// reachable from the server) for analysis and returns the summary of the
// new analysis.
func (c *Client) Analyze(ctx context.Context, source string) (*AnalysisSummary, error) {
	body := map[string]string{"source": source}
	var resp AnalysisSummary
	if err := c.post(ctx, "/v1/analyses", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Upload streams a raw event log to the server for analysis. The log may
// be gzip- or zstd-compressed. The source label names the upload in the
// resulting analysis; if empty the server labels it "upload".
func (c *Client) Upload(ctx context.Context, source string, log io.Reader) (*AnalysisSummary, error) {
	path := "/v1/analyses"
	if source != "" {
		path += "?source=" + url.QueryEscape(source)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, log)
	if err != nil {
		return nil, fmt.Errorf("hibana: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")

	var resp AnalysisSummary
	if err := c.doRequest(req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Get retrieves the full result of a completed analysis.
func (c *Client) Get(ctx context.Context, analysisID string) (*AnalysisDetail, error) {
	var resp AnalysisDetail
	if err := c.get(ctx, "/v1/analyses/"+url.PathEscape(analysisID), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// List returns summaries of held analyses, most recent first.
// A limit <= 0 uses the server default.
func (c *Client) List(ctx context.Context, limit int) (*ListResponse, error) {
	path := "/v1/analyses"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp ListResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recommendations returns the tuning suggestions of an analysis,
// optionally filtered by category and priority. Empty filter values
// match everything.
func (c *Client) Recommendations(ctx context.Context, analysisID, category, priority string) (*RecommendationsResponse, error) {
	q := url.Values{}
	if category != "" {
		q.Set("category", category)
	}
	if priority != "" {
		q.Set("priority", priority)
	}
	path := "/v1/analyses/" + url.PathEscape(analysisID) + "/recommendations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp RecommendationsResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Report fetches the self-contained HTML report of an analysis.
func (c *Client) Report(ctx context.Context, analysisID string) ([]byte, error) {
	path := "/v1/analyses/" + url.PathEscape(analysisID) + "/report"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("hibana: create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("hibana: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("hibana: read response body: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, parseErrorResponse(resp.StatusCode, body)
	}
	return body, nil
}

// Delete removes an analysis from the server's working set and from
// history.
func (c *Client) Delete(ctx context.Context, analysisID string) error {
	return c.doDelete(ctx, "/v1/analyses/"+url.PathEscape(analysisID), nil)
}

// History returns persisted analysis records, most recent first.
// A limit <= 0 uses the server default.
func (c *Client) History(ctx context.Context, limit int) (*HistoryResponse, error) {
	path := "/v1/history"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp HistoryResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health reports the server's liveness and working-set status.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	if err := c.get(ctx, "/health", &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ---------------------------------------------------------------------------
// Transport
// ---------------------------------------------------------------------------

type apiEnvelope struct {
	Data json.RawMessage `json:"data"`
}

type apiErrorEnvelope struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (c *Client) post(ctx context.Context, path string, body any, dest any) error {
	encoded, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("hibana: marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("hibana: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, dest)
}

func (c *Client) get(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("hibana: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doDelete(ctx context.Context, path string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("hibana: create request: %w", err)
	}

	return c.doRequest(req, dest)
}

func (c *Client) doRequest(req *http.Request, dest any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("hibana: %s %s: %w", req.Method, req.URL.Path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	return handleResponse(resp, dest)
}

func handleResponse(resp *http.Response, dest any) error {
	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("hibana: read response body: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseErrorResponse(resp.StatusCode, bodyBytes)
	}

	// 204 No Content — nothing to decode.
	if resp.StatusCode == http.StatusNoContent || dest == nil {
		return nil
	}

	// Unwrap the server's { "data": ... } envelope.
	var envelope apiEnvelope
	if err := json.Unmarshal(bodyBytes, &envelope); err != nil {
		return fmt.Errorf("hibana: decode response envelope: %w", err)
	}

	if envelope.Data == nil {
		// Fallback: some endpoints may not wrap in "data".
		return json.Unmarshal(bodyBytes, dest)
	}

	return json.Unmarshal(envelope.Data, dest)
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var envelope apiErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error.Message != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
	} else {
		apiErr.Code = http.StatusText(statusCode)
		apiErr.Message = string(body)
	}

	return apiErr
}
