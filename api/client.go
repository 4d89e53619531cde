// Package api is the client for the climate-data REST API.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-authgate/climate-cli/apierr"
)

const defaultTimeout = 10 * time.Second

// Endpoint paths relative to the API base URL.
const (
	PathLogin        = "/dj-rest-auth/login/"
	PathLogout       = "/dj-rest-auth/logout/"
	PathRegistration = "/dj-rest-auth/registration/"
	PathRefresh      = "/dj-rest-auth/token/refresh/"
	PathUser         = "/dj-rest-auth/user/"
	PathTemperature  = "/temperature/"
	PathCO2          = "/co2-data/"
	PathPing         = "/health/ping/"
)

// requester performs JSON calls against the base URL and classifies failures.
type requester struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

func newRequester(baseURL string, hc *http.Client, timeout time.Duration) requester {
	if hc == nil {
		hc = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return requester{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    hc,
		timeout: timeout,
	}
}

// do sends in as JSON (when non-nil) and decodes a 2xx body into out (when
// non-nil). Non-2xx responses become *apierr.Error with a user-facing message.
func (r requester) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return transportError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return apierr.Network(fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return apierr.FromResponse(resp.StatusCode, data)
	}

	if out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to parse %s response: %w", path, err)
		}
	}
	return nil
}

// transportError keeps errors the pipeline already classified (a failed
// refresh) and treats everything else as a connectivity failure.
func transportError(err error) error {
	var apiErr *apierr.Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return apierr.Network(err)
}

// Client calls the climate API through the request pipeline.
type Client struct {
	r requester
}

// NewClient returns a Client for baseURL. hc should carry the API pipeline and
// the cookie jar.
func NewClient(baseURL string, hc *http.Client, timeout time.Duration) *Client {
	return &Client{r: newRequester(baseURL, hc, timeout)}
}

// BaseURL returns the API base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.r.baseURL
}

// Ping checks that the API is up. It does not require a session.
func (c *Client) Ping(ctx context.Context) (string, error) {
	var resp struct {
		Message string `json:"message"`
	}
	if err := c.r.do(ctx, http.MethodGet, PathPing, nil, &resp); err != nil {
		return "", err
	}
	return resp.Message, nil
}
