package httpapi

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

	"github.com/danielpatrickdp/adaptive-allocation/internal/allocation"
)

// DefaultTimeout bounds each request when the caller's context has no deadline.
const DefaultTimeout = 30 * time.Second

// #region client

// Client implements control.AllocationStore and control.ObservationSource
// against a service exposing the experiment endpoints.
type Client struct {
	baseURL string
	http    *http.Client
	headers http.Header
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.http = hc }
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) ClientOption {
	return func(c *Client) { c.headers.Add(key, value) }
}

// NewClient returns a client for baseURL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: DefaultTimeout},
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ReadWeights fetches the active weights.
func (c *Client) ReadWeights(ctx context.Context, experimentID string) (allocation.Weights, error) {
	var w allocation.Weights
	if err := c.do(ctx, http.MethodGet, c.experimentURL(experimentID, "weights"), nil, &w); err != nil {
		return nil, fmt.Errorf("read weights: %w", err)
	}
	return w, nil
}

// WriteWeights posts new weights with their explanation.
func (c *Client) WriteWeights(ctx context.Context, experimentID string, weights allocation.Weights, explanation allocation.AllocationExplanation) error {
	body := WriteWeightsRequest{Weights: weights, Explanation: explanation}
	if err := c.do(ctx, http.MethodPost, c.experimentURL(experimentID, "weights"), body, nil); err != nil {
		return fmt.Errorf("write weights: %w", err)
	}
	return nil
}

// ReadObservations fetches aggregated observations for the window.
func (c *Client) ReadObservations(ctx context.Context, experimentID string, windowStart, windowEnd int64) (allocation.Observations, error) {
	q := url.Values{}
	q.Set("start", strconv.FormatInt(windowStart, 10))
	q.Set("end", strconv.FormatInt(windowEnd, 10))

	var obs allocation.Observations
	if err := c.do(ctx, http.MethodGet, c.experimentURL(experimentID, "observations")+"?"+q.Encode(), nil, &obs); err != nil {
		return nil, fmt.Errorf("read observations: %w", err)
	}
	return obs, nil
}

// #endregion client

// #region transport

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Message)
}

func (c *Client) experimentURL(experimentID, resource string) string {
	return c.baseURL + "/experiments/" + url.PathEscape(experimentID) + "/" + resource
}

func (c *Client) do(ctx context.Context, method, target string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var e ErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// #endregion transport
