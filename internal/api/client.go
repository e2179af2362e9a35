// Package api is the HTTP client for the light controller API.
package api

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
	"github.com/rs/zerolog/log"
)

// Endpoint is a logical API endpoint name
type Endpoint string

const (
	EndpointHealth  Endpoint = "health"
	EndpointColor   Endpoint = "color"
	EndpointCommand Endpoint = "command"
)

// Failure reasons reported by TransportError
const (
	ReasonHealthFailed  = "Health check failed"
	ReasonCommandFailed = "Command failed"
)

// TransportError is returned for every failed request: non-2xx status,
// connection errors and undecodable bodies alike. Error() is a short fixed
// phrase naming the failed call; the cause is only reachable via Unwrap.
type TransportError struct {
	Endpoint   Endpoint
	Reason     string
	StatusCode int // 0 if no response was received
	Err        error
}

func (e *TransportError) Error() string {
	return e.Reason
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

func reasonFor(endpoint Endpoint) string {
	if endpoint == EndpointHealth {
		return ReasonHealthFailed
	}
	return ReasonCommandFailed
}

// Client talks to the controller API. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for the given base URL
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return NewClientWithHTTP(baseURL, &http.Client{Timeout: timeout})
}

// NewClientWithHTTP creates a client that shares an existing http.Client
func NewClientWithHTTP(baseURL string, httpClient *http.Client) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: httpClient,
	}
}

// BaseURL returns the base address requests are resolved against
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) url(endpoint Endpoint) string {
	return fmt.Sprintf("%s/%s", c.baseURL, endpoint)
}

// Get issues a GET request and returns the decoded JSON body
func (c *Client) Get(ctx context.Context, endpoint Endpoint) (any, error) {
	return c.do(ctx, http.MethodGet, endpoint, nil)
}

// Send POSTs body as JSON and returns the decoded JSON response
func (c *Client) Send(ctx context.Context, endpoint Endpoint, body any) (any, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, c.fail(endpoint, 0, fmt.Errorf("failed to marshal body: %w", err))
	}
	return c.do(ctx, http.MethodPost, endpoint, data)
}

func (c *Client) do(ctx context.Context, method string, endpoint Endpoint, body []byte) (any, error) {
	requestID := uuid.NewString()
	start := time.Now()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.url(endpoint), reader)
	if err != nil {
		return nil, c.fail(endpoint, 0, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("request_id", requestID).Str("endpoint", string(endpoint)).Msg("Request failed")
		return nil, c.fail(endpoint, 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		log.Debug().
			Str("request_id", requestID).
			Str("endpoint", string(endpoint)).
			Int("status", resp.StatusCode).
			Dur("elapsed", time.Since(start)).
			Msg("Request rejected")
		return nil, c.fail(endpoint, resp.StatusCode, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	var out any
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, c.fail(endpoint, resp.StatusCode, fmt.Errorf("failed to decode response: %w", err))
	}

	log.Debug().
		Str("request_id", requestID).
		Str("method", method).
		Str("endpoint", string(endpoint)).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")

	return out, nil
}

func (c *Client) fail(endpoint Endpoint, status int, err error) error {
	return &TransportError{
		Endpoint:   endpoint,
		Reason:     reasonFor(endpoint),
		StatusCode: status,
		Err:        err,
	}
}

// Close releases idle connections
func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}
