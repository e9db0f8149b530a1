// Package remote holds the JSON-over-HTTP plumbing shared by the clients
// of the salt, proof, faucet, registration and RPC services.
package remote

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

// maxResponseBytes caps how much of a response body is read.
const maxResponseBytes = 4 << 20

// DefaultTimeout applies to clients built by NewHTTPClient.
const DefaultTimeout = 30 * time.Second

// StatusError reports a non-2xx response. The body text is folded into
// the message so misconfigured endpoints are easy to diagnose.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("%s request failed: HTTP %d", e.Service, e.StatusCode)
	}
	return fmt.Sprintf("%s request failed: HTTP %d: %s", e.Service, e.StatusCode, body)
}

// NewHTTPClient returns a client with the default timeout.
func NewHTTPClient() *http.Client {
	return &http.Client{Timeout: DefaultTimeout}
}

// Request describes one JSON call.
type Request struct {
	Service string
	Method  string
	URL     string
	Header  http.Header
	// Body is marshalled as JSON when non-nil.
	Body any
}

// Do performs the request and decodes a 2xx JSON response into out. out
// may be nil when the response body is irrelevant.
func Do(ctx context.Context, client *http.Client, r Request, out any) error {
	var body io.Reader
	if r.Body != nil {
		data, err := json.Marshal(r.Body)
		if err != nil {
			return fmt.Errorf("%s: marshalling request: %w", r.Service, err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", r.Service, err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if r.Body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", r.Service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("%s: reading response: %w", r.Service, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{Service: r.Service, StatusCode: resp.StatusCode, Body: string(data)}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", r.Service, err)
	}
	return nil
}
