// Package asr submits recorded audio to the Doubao file recognition API
// and polls for the transcription.
//
// The protocol is submit/query: POST the request body to submit (the
// response body is empty, status travels in headers), then POST an empty
// body to query until the result carries utterances or reports a terminal
// failure state.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dubflow/dubflow/pkg/subtitle"
)

const (
	defaultBaseURL = "https://openspeech.bytedance.com"
	submitPath     = "/api/v3/auc/bigmodel/submit"
	queryPath      = "/api/v3/auc/bigmodel/query"

	// ResourceFileASR is the resource ID for big-model file recognition.
	ResourceFileASR = "volc.seedasr.auc"

	defaultTimeout = 60 * time.Second

	// DefaultPollInterval and DefaultMaxWait bound the query loop.
	DefaultPollInterval = 2 * time.Second
	DefaultMaxWait      = 3600 * time.Second
)

// Client calls the Doubao file recognition API.
type Client struct {
	appKey     string
	accessKey  string
	resourceID string
	baseURL    string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient substitutes the transport.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithResourceID overrides the recognition resource.
func WithResourceID(id string) Option {
	return func(c *Client) { c.resourceID = id }
}

// NewClient builds a client from the application credentials.
func NewClient(appKey, accessKey string, opts ...Option) *Client {
	c := &Client{
		appKey:     appKey,
		accessKey:  accessKey,
		resourceID: ResourceFileASR,
		baseURL:    defaultBaseURL,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	return c
}

func (c *Client) setHeaders(req *http.Request, requestID string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Api-App-Key", c.appKey)
	req.Header.Set("X-Api-Access-Key", c.accessKey)
	req.Header.Set("X-Api-Resource-Id", c.resourceID)
	req.Header.Set("X-Api-Request-Id", requestID)
	req.Header.Set("X-Api-Sequence", "-1")
}

// Submit enqueues a recognition task and returns its request ID.
func (c *Client) Submit(ctx context.Context, req *Request) (string, error) {
	requestID := uuid.NewString()

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("marshal asr request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+submitPath, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create submit request: %w", err)
	}
	c.setHeaders(httpReq, requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("submit: %w", err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(resp.Body)

	status := resp.Header.Get("X-Api-Status-Code")
	message := resp.Header.Get("X-Api-Message")
	if resp.StatusCode >= 400 || status == "" || !okStatus[status] {
		return "", &Error{
			StatusCode: status,
			Message:    message,
			HTTPStatus: resp.StatusCode,
			Body:       truncateBody(respBody),
		}
	}
	return requestID, nil
}

// Query fetches the current task document.
func (c *Client) Query(ctx context.Context, requestID string) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+queryPath, strings.NewReader("{}"))
	if err != nil {
		return nil, fmt.Errorf("create query request: %w", err)
	}
	c.setHeaders(httpReq, requestID)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read query response: %w", err)
	}

	status := resp.Header.Get("X-Api-Status-Code")
	if resp.StatusCode >= 400 || (status != "" && !okStatus[status]) {
		return nil, &Error{
			StatusCode: status,
			Message:    resp.Header.Get("X-Api-Message"),
			HTTPStatus: resp.StatusCode,
			Body:       truncateBody(body),
		}
	}
	return body, nil
}

// PollOptions bounds SubmitAndPoll.
type PollOptions struct {
	Interval time.Duration
	MaxWait  time.Duration
}

// SubmitAndPoll submits the task and queries at a fixed interval until the
// result carries utterances, a terminal failure state appears, or the
// deadline passes. It returns the raw response bytes, kept verbatim as the
// evidence artifact, alongside the parsed document.
func (c *Client) SubmitAndPoll(ctx context.Context, req *Request, opts PollOptions) ([]byte, *subtitle.RawResponse, error) {
	if opts.Interval <= 0 {
		opts.Interval = DefaultPollInterval
	}
	if opts.MaxWait <= 0 {
		opts.MaxWait = DefaultMaxWait
	}

	requestID, err := c.Submit(ctx, req)
	if err != nil {
		return nil, nil, err
	}

	deadline := time.Now().Add(opts.MaxWait)
	for time.Now().Before(deadline) {
		body, err := c.Query(ctx, requestID)
		if err != nil {
			return nil, nil, err
		}

		done, parsed, err := inspectQueryDoc(body)
		if err != nil {
			return nil, nil, fmt.Errorf("task %s: %w", requestID, err)
		}
		if done {
			return body, parsed, nil
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-time.After(opts.Interval):
		}
	}
	return nil, nil, fmt.Errorf("task %s: no result within %s", requestID, opts.MaxWait)
}

// terminal failure states in the task document.
var errorStates = map[string]bool{
	"failed":    true,
	"error":     true,
	"timeout":   true,
	"cancelled": true,
	"rejected":  true,
}

type queryDoc struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Error   string          `json:"error"`
	Result  json.RawMessage `json:"result"`
}

type resultDoc struct {
	Status     string                  `json:"status"`
	Message    string                  `json:"message"`
	Error      string                  `json:"error"`
	Text       string                  `json:"text"`
	Utterances []subtitle.RawUtterance `json:"utterances"`
}

// inspectQueryDoc decides whether a query response is final. Some API
// versions return the result as an object, others as a list.
func inspectQueryDoc(body []byte) (bool, *subtitle.RawResponse, error) {
	var doc queryDoc
	if err := json.Unmarshal(body, &doc); err != nil {
		return false, nil, fmt.Errorf("parse query response: %w", err)
	}
	if errorStates[strings.ToLower(doc.Status)] {
		return false, nil, fmt.Errorf("recognition failed: %s", firstNonEmpty(doc.Message, doc.Error, doc.Status))
	}
	if len(doc.Result) == 0 {
		return false, nil, nil
	}

	var results []resultDoc
	var single resultDoc
	if err := json.Unmarshal(doc.Result, &single); err == nil {
		results = []resultDoc{single}
	} else if err := json.Unmarshal(doc.Result, &results); err != nil {
		return false, nil, nil
	}

	for _, r := range results {
		if errorStates[strings.ToLower(r.Status)] {
			return false, nil, fmt.Errorf("recognition failed: %s", firstNonEmpty(r.Message, r.Error, r.Status))
		}
		if len(r.Utterances) > 0 {
			return true, &subtitle.RawResponse{
				Result: &subtitle.RawResult{Text: r.Text, Utterances: r.Utterances},
			}, nil
		}
	}
	return false, nil, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return "unknown"
}
