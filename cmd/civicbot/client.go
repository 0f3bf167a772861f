package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// errServerDown marks a request that never reached a running server.
var errServerDown = errors.New("server not reachable, is civicbot serve running?")

// serverStatus mirrors the /v1/status response.
type serverStatus struct {
	Model          string    `json:"model"`
	HasCredentials bool      `json:"has_credentials"`
	Pending        int       `json:"pending"`
	Draining       bool      `json:"draining"`
	Dispatched     uint64    `json:"dispatched"`
	LastStart      time.Time `json:"last_start"`
	Typing         bool      `json:"typing"`
	Location       string    `json:"location"`
}

// apiError is a non-2xx reply from the local API.
type apiError struct {
	Status  int
	Type    string
	Message string
}

func (e *apiError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("server returned %d (%s): %s", e.Status, e.Type, e.Message)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

// apiClient queries the loopback API of `civicbot serve`.
type apiClient struct {
	baseURL    string
	httpClient *http.Client
}

func newAPIClient(port int, timeout time.Duration) *apiClient {
	return &apiClient{
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// status fetches the governor and session snapshot. A server that cannot
// be reached yields an error wrapping errServerDown.
func (c *apiClient) status(ctx context.Context) (serverStatus, error) {
	var st serverStatus
	resp, err := c.get(ctx, "/v1/status")
	if err != nil {
		return st, err
	}
	err = decodeJSON(resp, &st)
	return st, err
}

func (c *apiClient) get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w (%w)", errServerDown, err)
	}
	return resp, nil
}

// decodeJSON reads a success body into v, or turns an error reply into an
// *apiError. The server wraps errors as {"error":{"message","type"}}; any
// other body is reported as-is.
func decodeJSON(resp *http.Response, v any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 400 {
		return json.NewDecoder(resp.Body).Decode(v)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return fmt.Errorf("server returned %d (failed to read body: %w)", resp.StatusCode, err)
	}
	apiErr := &apiError{Status: resp.StatusCode}
	var envelope struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if json.Unmarshal(body, &envelope) == nil && envelope.Error.Message != "" {
		apiErr.Message = envelope.Error.Message
		apiErr.Type = envelope.Error.Type
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	return apiErr
}
