package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-authgate/climate-cli/store"
)

// scripted answers each round trip with the next status in statuses.
type scripted struct {
	mu       sync.Mutex
	statuses []int
	requests []*http.Request
	bodies   []string
}

func (s *scripted) RoundTrip(req *http.Request) (*http.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	body := ""
	if req.Body != nil {
		data, _ := io.ReadAll(req.Body)
		body = string(data)
	}
	s.requests = append(s.requests, req)
	s.bodies = append(s.bodies, body)

	status := http.StatusOK
	if n := len(s.requests) - 1; n < len(s.statuses) {
		status = s.statuses[n]
	}
	return statusResponse(req, status), nil
}

func TestAuthRetry_RefreshesAndReplaysOnce(t *testing.T) {
	var refreshes atomic.Int32
	var events []string
	marker := store.NewMemoryStore()
	marker.Save("alice")

	auth := NewAuthRetry(
		RefresherFunc(func(context.Context) error {
			refreshes.Add(1)
			return nil
		}),
		marker, nil,
		Hooks{
			OnRejected:  func(*http.Request) { events = append(events, "rejected") },
			OnRefreshed: func(*http.Request) { events = append(events, "refreshed") },
		},
		nil,
	)
	next := &scripted{statuses: []int{http.StatusUnauthorized, http.StatusOK}}
	rt := Chain(next, auth.Wrap)

	req := httptest.NewRequest(http.MethodPost, "http://api.example.com/temperature/", strings.NewReader(`{"k":"v"}`))
	resp, err := rt.RoundTrip(req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, int32(1), refreshes.Load())
	require.Len(t, next.requests, 2)
	assert.False(t, IsRetried(next.requests[0].Context()))
	assert.True(t, IsRetried(next.requests[1].Context()))
	assert.Equal(t, []string{`{"k":"v"}`, `{"k":"v"}`}, next.bodies, "replay resends the body")
	assert.Equal(t, []string{"rejected", "refreshed"}, events)

	username, ok := marker.Read()
	assert.True(t, ok)
	assert.Equal(t, "alice", username)
}

func TestAuthRetry_SecondRejectionReturned(t *testing.T) {
	var refreshes atomic.Int32
	auth := NewAuthRetry(RefresherFunc(func(context.Context) error {
		refreshes.Add(1)
		return nil
	}), store.NewMemoryStore(), nil, Hooks{}, nil)

	next := &scripted{statuses: []int{http.StatusUnauthorized, http.StatusUnauthorized}}
	resp, err := Chain(next, auth.Wrap).RoundTrip(httptest.NewRequest(http.MethodGet, "http://api.example.com/co2-data/", nil))
	require.NoError(t, err)

	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Len(t, next.requests, 2)
	assert.Equal(t, int32(1), refreshes.Load())
}

func TestAuthRetry_RefreshFailureClearsMarker(t *testing.T) {
	refreshErr := errors.New("refresh rejected")
	marker := store.NewMemoryStore()
	marker.Save("alice")

	var failed error
	auth := NewAuthRetry(
		RefresherFunc(func(context.Context) error { return refreshErr }),
		marker, nil,
		Hooks{OnRefreshFailed: func(_ *http.Request, err error) { failed = err }},
		nil,
	)
	next := &scripted{statuses: []int{http.StatusUnauthorized}}

	resp, err := Chain(next, auth.Wrap).RoundTrip(httptest.NewRequest(http.MethodGet, "http://api.example.com/temperature/", nil))
	assert.Nil(t, resp)
	assert.ErrorIs(t, err, refreshErr)
	assert.ErrorIs(t, failed, refreshErr)
	assert.Len(t, next.requests, 1, "no replay after a failed refresh")

	_, ok := marker.Read()
	assert.False(t, ok)
}

func TestAuthRetry_PassThrough(t *testing.T) {
	var refreshes atomic.Int32
	auth := NewAuthRetry(RefresherFunc(func(context.Context) error {
		refreshes.Add(1)
		return nil
	}), store.NewMemoryStore(), nil, Hooks{}, nil)

	tests := []struct {
		name   string
		status int
		ctx    context.Context
	}{
		{name: "success", status: http.StatusOK, ctx: context.Background()},
		{name: "forbidden is not unauthorized", status: http.StatusForbidden, ctx: context.Background()},
		{name: "server error", status: http.StatusInternalServerError, ctx: context.Background()},
		{name: "opted out", status: http.StatusUnauthorized, ctx: WithoutAuthRetry(context.Background())},
		{name: "already a replay", status: http.StatusUnauthorized, ctx: withRetried(context.Background())},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := &scripted{statuses: []int{tt.status}}
			req := httptest.NewRequest(http.MethodGet, "http://api.example.com/", nil).WithContext(tt.ctx)

			resp, err := Chain(next, auth.Wrap).RoundTrip(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Len(t, next.requests, 1)
		})
	}
	assert.Zero(t, refreshes.Load())
}

func TestAuthRetry_ReplayUsesRenewedCookies(t *testing.T) {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	u, _ := url.Parse("http://api.example.com/")
	jar.SetCookies(u, []*http.Cookie{{Name: "access", Value: "old", Path: "/"}})

	auth := NewAuthRetry(RefresherFunc(func(context.Context) error {
		jar.SetCookies(u, []*http.Cookie{{Name: "access", Value: "new", Path: "/"}})
		return nil
	}), store.NewMemoryStore(), jar, Hooks{}, nil)

	next := &scripted{statuses: []int{http.StatusUnauthorized, http.StatusOK}}
	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/temperature/", nil)
	req.AddCookie(&http.Cookie{Name: "access", Value: "old"})

	_, err = Chain(next, auth.Wrap).RoundTrip(req)
	require.NoError(t, err)

	require.Len(t, next.requests, 2)
	c, err := next.requests[1].Cookie("access")
	require.NoError(t, err)
	assert.Equal(t, "new", c.Value)
	assert.Len(t, next.requests[1].Cookies(), 1)
}

func TestAuthRetry_ConcurrentRejectionsShareRefresh(t *testing.T) {
	var refreshes atomic.Int32
	auth := NewAuthRetry(RefresherFunc(func(context.Context) error {
		refreshes.Add(1)
		time.Sleep(100 * time.Millisecond)
		return nil
	}), store.NewMemoryStore(), nil, Hooks{}, nil)

	const callers = 5
	var arrived atomic.Int32
	release := make(chan struct{})
	next := RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if IsRetried(req.Context()) {
			return okResponse(req), nil
		}
		if arrived.Add(1) == callers {
			close(release)
		}
		<-release
		return statusResponse(req, http.StatusUnauthorized), nil
	})
	rt := Chain(next, auth.Wrap)

	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := rt.RoundTrip(httptest.NewRequest(http.MethodGet, "http://api.example.com/", nil))
			if assert.NoError(t, err) {
				assert.Equal(t, http.StatusOK, resp.StatusCode)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), refreshes.Load())
}

func TestAuthRetry_CallerCancelDoesNotAbortSharedRefresh(t *testing.T) {
	started := make(chan struct{})
	finish := make(chan struct{})
	var refreshCtxErr atomic.Value

	auth := NewAuthRetry(RefresherFunc(func(ctx context.Context) error {
		close(started)
		<-finish
		refreshCtxErr.Store(ctx.Err() == nil)
		return nil
	}), store.NewMemoryStore(), nil, Hooks{}, nil)

	next := &scripted{statuses: []int{http.StatusUnauthorized}}
	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "http://api.example.com/", nil).WithContext(ctx)

	errCh := make(chan error, 1)
	go func() {
		_, err := Chain(next, auth.Wrap).RoundTrip(req)
		errCh <- err
	}()

	<-started
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	close(finish)
	assert.Eventually(t, func() bool {
		v, ok := refreshCtxErr.Load().(bool)
		return ok && v
	}, time.Second, 10*time.Millisecond, "refresh keeps running for other callers")
}
