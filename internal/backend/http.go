package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// maxResponseSize caps how much of an explorer response is read.
const maxResponseSize = 8 << 20

// maxPayloadEcho caps the payload quoted in error messages.
const maxPayloadEcho = 256

// LookupError describes a failed explorer request. Payload holds the raw
// response body so the offending data can be inspected.
type LookupError struct {
	Op      string
	URL     string
	Status  int
	Payload []byte
	Err     error
}

func (e *LookupError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", e.Op, e.URL)
	if e.Status != 0 {
		fmt.Fprintf(&b, ": status %d", e.Status)
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	if len(e.Payload) > 0 {
		payload := e.Payload
		if len(payload) > maxPayloadEcho {
			payload = payload[:maxPayloadEcho]
		}
		fmt.Fprintf(&b, " (payload: %q)", payload)
	}
	return b.String()
}

func (e *LookupError) Unwrap() error { return e.Err }

// Is lets errors.Is match ErrLookupFailed.
func (e *LookupError) Is(target error) bool {
	return target == ErrLookupFailed
}

// client is the HTTP plumbing shared by the explorer backends.
type client struct {
	baseURL    string
	httpClient *http.Client

	mu        sync.RWMutex
	connected bool
}

func newClient(baseURL string, timeout time.Duration) *client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// ping marks the client connected once path answers 200.
func (c *client) ping(ctx context.Context, path string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseSize))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrNotConnected, resp.StatusCode)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
	return nil
}

func (c *client) close() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *client) isConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// get performs a GET request and decodes the JSON response into result.
// The raw body is returned for validation errors raised by the caller.
func (c *client) get(ctx context.Context, op, path string, result interface{}) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, &LookupError{Op: op, URL: c.baseURL + path, Err: err}
	}
	return c.do(op, req, result)
}

// post sends body as JSON and decodes the JSON response into result.
func (c *client) post(ctx context.Context, op, path string, body, result interface{}) ([]byte, error) {
	url := c.baseURL + path
	data, err := json.Marshal(body)
	if err != nil {
		return nil, &LookupError{Op: op, URL: url, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &LookupError{Op: op, URL: url, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(op, req, result)
}

func (c *client) do(op string, req *http.Request, result interface{}) ([]byte, error) {
	url := req.URL.String()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &LookupError{Op: op, URL: url, Err: err}
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &LookupError{Op: op, URL: url, Status: resp.StatusCode, Err: err}
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return payload, &LookupError{Op: op, URL: url, Status: resp.StatusCode, Payload: payload, Err: ErrRateLimited}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return payload, &LookupError{Op: op, URL: url, Status: resp.StatusCode, Payload: payload,
			Err: fmt.Errorf("unexpected status %s", http.StatusText(resp.StatusCode))}
	}

	if err := json.Unmarshal(payload, result); err != nil {
		return payload, &LookupError{Op: op, URL: url, Status: resp.StatusCode, Payload: payload,
			Err: fmt.Errorf("%w: %v", ErrMalformedResponse, err)}
	}

	return payload, nil
}
