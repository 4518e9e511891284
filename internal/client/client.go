// Package client talks to the webgenie HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/kiranshivaraju/webgenie/internal/api/response"
	"github.com/kiranshivaraju/webgenie/internal/jobs"
	"github.com/kiranshivaraju/webgenie/pkg/models"
)

// Sentinel errors for transport failures. Server-side errors are *APIError.
var (
	ErrUnreachable = errors.New("webgenie API unreachable")
	ErrTimeout     = errors.New("webgenie API timeout")
)

// APIError is a decoded {"error": {...}} envelope.
type APIError struct {
	Status  int
	Code    string
	Message string
	Details json.RawMessage
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("api error: status %d", e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// ListOptions filters a job listing.
type ListOptions struct {
	Status    string
	DatasetID string
	Algorithm string
	Skip      int
	Limit     int
}

// ImageStatus reports whether an algorithm image is present on the host.
type ImageStatus struct {
	Algorithm string `json:"algorithm"`
	Image     string `json:"image"`
	Available bool   `json:"available"`
}

// Client is a typed wrapper around the REST endpoints.
type Client struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// New creates a client. An empty apiKey sends no credentials.
func New(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/api/v1/health", nil, nil)
}

func (c *Client) Submit(ctx context.Context, req jobs.SubmitRequest) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodPost, "/api/v1/jobs", req, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) GetJob(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodGet, jobPath(id, ""), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) ListJobs(ctx context.Context, opts ListOptions) ([]models.Job, response.PaginationMeta, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", opts.Status)
	}
	if opts.DatasetID != "" {
		q.Set("dataset_id", opts.DatasetID)
	}
	if opts.Algorithm != "" {
		q.Set("algorithm", opts.Algorithm)
	}
	if opts.Skip > 0 {
		q.Set("skip", strconv.Itoa(opts.Skip))
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	path := "/api/v1/jobs"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, response.PaginationMeta{}, err
	}
	defer resp.Body.Close()

	var page struct {
		Data []models.Job            `json:"data"`
		Meta response.PaginationMeta `json:"meta"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, response.PaginationMeta{}, fmt.Errorf("decoding job list: %w", err)
	}
	return page.Data, page.Meta, nil
}

// Logs returns the job's execution log as served, including the
// placeholder text when none exists yet.
func (c *Client) Logs(ctx context.Context, id string) (string, error) {
	resp, err := c.send(ctx, http.MethodGet, jobPath(id, "/logs"), nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading logs: %w", err)
	}
	return string(data), nil
}

func (c *Client) Cancel(ctx context.Context, id string) (*models.Job, error) {
	var job models.Job
	if err := c.do(ctx, http.MethodDelete, jobPath(id, ""), nil, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (c *Client) Result(ctx context.Context, id string) (*jobs.ResultInfo, error) {
	var info jobs.ResultInfo
	if err := c.do(ctx, http.MethodGet, jobPath(id, "/result"), nil, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (c *Client) Summary(ctx context.Context, id string) (*models.NetworkSummary, error) {
	var sum models.NetworkSummary
	if err := c.do(ctx, http.MethodGet, jobPath(id, "/summary"), nil, &sum); err != nil {
		return nil, err
	}
	return &sum, nil
}

func (c *Client) Compare(ctx context.Context, jobA, jobB string, directed bool) (*models.NetworkComparison, error) {
	body := map[string]any{"job_a": jobA, "job_b": jobB, "directed": directed}
	var cmp models.NetworkComparison
	if err := c.do(ctx, http.MethodPost, "/api/v1/compare", body, &cmp); err != nil {
		return nil, err
	}
	return &cmp, nil
}

// DownloadNetwork streams the job's network in format to w.
func (c *Client) DownloadNetwork(ctx context.Context, id, format string, w io.Writer) error {
	path := jobPath(id, "/network")
	if format != "" {
		path += "?format=" + url.QueryEscape(format)
	}
	resp, err := c.send(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("downloading network: %w", err)
	}
	return nil
}

func (c *Client) Algorithms(ctx context.Context) ([]models.Algorithm, error) {
	var algs []models.Algorithm
	if err := c.do(ctx, http.MethodGet, "/api/v1/algorithms", nil, &algs); err != nil {
		return nil, err
	}
	return algs, nil
}

func (c *Client) Algorithm(ctx context.Context, name string) (*models.Algorithm, error) {
	var alg models.Algorithm
	if err := c.do(ctx, http.MethodGet, "/api/v1/algorithms/"+url.PathEscape(name), nil, &alg); err != nil {
		return nil, err
	}
	return &alg, nil
}

func (c *Client) CheckImage(ctx context.Context, name string) (*ImageStatus, error) {
	var st ImageStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/algorithms/"+url.PathEscape(name)+"/image", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// Watch follows a job over the websocket endpoint, calling onUpdate for each
// pushed status. It returns the last job seen once the server closes the
// stream after a terminal status.
func (c *Client) Watch(ctx context.Context, id string, onUpdate func(*models.Job) error) (*models.Job, error) {
	wsURL := strings.Replace(c.baseURL, "http://", "ws://", 1)
	wsURL = strings.Replace(wsURL, "https://", "wss://", 1)
	wsURL += jobPath(id, "/watch")

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	header := http.Header{}
	if c.apiKey != "" {
		header.Set("X-API-Key", c.apiKey)
	}
	conn, resp, err := dialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil && resp.StatusCode != http.StatusSwitchingProtocols {
			defer resp.Body.Close()
			return nil, decodeError(resp)
		}
		return nil, classifyError(err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var last *models.Job
	for {
		var msg struct {
			Type  string      `json:"type"`
			Job   *models.Job `json:"job"`
			Error string      `json:"error"`
		}
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return last, nil
			}
			if ctx.Err() != nil {
				return last, ctx.Err()
			}
			return last, fmt.Errorf("watch %s: %w", id, err)
		}
		if msg.Type == "error" {
			return last, fmt.Errorf("watch %s: %s", id, msg.Error)
		}
		if msg.Job == nil {
			continue
		}
		last = msg.Job
		if onUpdate != nil {
			if err := onUpdate(msg.Job); err != nil {
				return last, err
			}
		}
	}
}

func jobPath(id, suffix string) string {
	return "/api/v1/jobs/" + url.PathEscape(id) + suffix
}

// do sends a JSON request and decodes the "data" member into out.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if out == nil {
		return nil
	}
	env := struct {
		Data any `json:"data"`
	}{Data: out}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// send performs the request and converts non-2xx responses into *APIError.
// The caller closes the body on success.
func (c *Client) send(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var rdr io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		rdr = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rdr)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, classifyError(err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, decodeError(resp)
	}
	return resp, nil
}

func decodeError(resp *http.Response) *APIError {
	apiErr := &APIError{Status: resp.StatusCode}
	var env struct {
		Error struct {
			Code    string          `json:"code"`
			Message string          `json:"message"`
			Details json.RawMessage `json:"details"`
		} `json:"error"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&env); err == nil {
		apiErr.Code = env.Error.Code
		apiErr.Message = env.Error.Message
		apiErr.Details = env.Error.Details
	}
	return apiErr
}

// classifyError maps transport-level errors to sentinel errors.
func classifyError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return fmt.Errorf("%w: %v", ErrTimeout, err)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	return fmt.Errorf("%w: %v", ErrUnreachable, err)
}
