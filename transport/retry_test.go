package transport

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewRetrying_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt, err := NewRetrying(DefaultBaseTransport(), 1, time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodGet, srv.URL+"/health/ping/", nil)
	require.NoError(t, err)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(2), calls.Load())
}

func TestNewRetrying_DoesNotRetryUnauthorized(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	rt, err := NewRetrying(DefaultBaseTransport(), 3, time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/temperature/", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewPipeline_ExhaustedRetriesReturnLastResponse(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{name: "service unavailable", status: http.StatusServiceUnavailable, body: `{"detail":"maintenance until 10:00"}`},
		{name: "too many requests", status: http.StatusTooManyRequests, body: `{"detail":"slow down"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			rt, err := NewPipeline("api", Options{
				MaxRetries:      2,
				RetryDelay:      time.Millisecond,
				BreakerFailures: 5,
				BreakerTimeout:  time.Minute,
			}, nil)
			require.NoError(t, err)

			req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health/ping/", nil)
			resp, err := rt.RoundTrip(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.status, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)
			assert.JSONEq(t, tt.body, string(body))
			assert.Equal(t, int32(3), calls.Load())
		})
	}
}

func TestNewRetrying_PostNotRetriedOnServerError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	rt, err := NewRetrying(DefaultBaseTransport(), 3, time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/dj-rest-auth/registration/", strings.NewReader(`{"username":"alice"}`))
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, int32(1), calls.Load())
}

func TestNewRetrying_PostRetriedOnTooManyRequestsWithBody(t *testing.T) {
	var (
		calls  atomic.Int32
		mu     sync.Mutex
		bodies []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		bodies = append(bodies, string(b))
		mu.Unlock()
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rt, err := NewRetrying(DefaultBaseTransport(), 2, time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/dj-rest-auth/login/", strings.NewReader(`{"username":"alice"}`))
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{`{"username":"alice"}`, `{"username":"alice"}`}, bodies)
}

func TestNewRetrying_NetworkErrorAfterRetries(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rt, err := NewRetrying(DefaultBaseTransport(), 1, time.Millisecond, zap.NewNop())
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, url+"/health/ping/", nil)
	resp, err := rt.RoundTrip(req)
	assert.Error(t, err)
	assert.Nil(t, resp)
}

func TestNewRetrying_LogsThroughZap(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	core, logs := observer.New(zapcore.DebugLevel)
	rt, err := NewRetrying(DefaultBaseTransport(), 1, time.Millisecond, zap.New(core))
	require.NoError(t, err)

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/health/ping/", nil)
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.NotZero(t, logs.FilterMessage("request failed, will retry").Len())
	assert.NotZero(t, logs.FilterMessage("retries exhausted").Len())
}

func TestRetryable(t *testing.T) {
	get, _ := http.NewRequest(http.MethodGet, "http://example.com/", nil)
	post, _ := http.NewRequest(http.MethodPost, "http://example.com/", nil)

	tests := []struct {
		name string
		err  error
		resp *http.Response
		want bool
	}{
		{name: "network error", err: errors.New("connection refused"), want: true},
		{name: "no response", want: false},
		{name: "get 503", resp: &http.Response{StatusCode: 503, Request: get}, want: true},
		{name: "get 404", resp: &http.Response{StatusCode: 404, Request: get}, want: false},
		{name: "post 502", resp: &http.Response{StatusCode: 502, Request: post}, want: false},
		{name: "post 429", resp: &http.Response{StatusCode: 429, Request: post}, want: true},
		{name: "get 200", resp: &http.Response{StatusCode: 200, Request: get}, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err, tt.resp))
		})
	}
}
