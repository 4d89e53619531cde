package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/go-authgate/climate-cli/store"
)

// Refresher mints a new access credential from the refresh cookie.
type Refresher interface {
	RefreshAccessToken(ctx context.Context) error
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context) error

func (f RefresherFunc) RefreshAccessToken(ctx context.Context) error {
	return f(ctx)
}

// Hooks observe the refresh-and-replay cycle. Any field may be nil.
type Hooks struct {
	OnRejected      func(req *http.Request)
	OnRefreshed     func(req *http.Request)
	OnRefreshFailed func(req *http.Request, err error)
}

// AuthRetry replays a request once after a 401, refreshing the session first.
// Concurrent 401s share a single in-flight refresh.
type AuthRetry struct {
	refresher Refresher
	marker    store.Store
	jar       http.CookieJar
	hooks     Hooks
	logger    *zap.Logger

	group singleflight.Group
}

// NewAuthRetry returns the interceptor. marker is cleared when a refresh
// fails; jar supplies renewed cookies for the replay and may be nil.
func NewAuthRetry(refresher Refresher, marker store.Store, jar http.CookieJar, hooks Hooks, logger *zap.Logger) *AuthRetry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuthRetry{
		refresher: refresher,
		marker:    marker,
		jar:       jar,
		hooks:     hooks,
		logger:    logger.With(zap.String("component", "auth-retry")),
	}
}

// Wrap is the Middleware form of a.
func (a *AuthRetry) Wrap(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		return a.roundTrip(next, req)
	})
}

func (a *AuthRetry) roundTrip(next http.RoundTripper, req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if authRetryDisabled(ctx) || IsRetried(ctx) {
		return next.RoundTrip(req)
	}

	req, err := replayable(req)
	if err != nil {
		return nil, err
	}

	resp, err := next.RoundTrip(req)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}

	drain(resp)
	a.logger.Debug("request rejected, refreshing session",
		zap.String("method", req.Method), zap.String("path", req.URL.Path))
	if a.hooks.OnRejected != nil {
		a.hooks.OnRejected(req)
	}

	if err := a.refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		a.marker.Clear()
		a.logger.Info("session refresh failed", zap.Error(err))
		if a.hooks.OnRefreshFailed != nil {
			a.hooks.OnRefreshFailed(req, err)
		}
		return nil, err
	}
	if a.hooks.OnRefreshed != nil {
		a.hooks.OnRefreshed(req)
	}

	retry, err := a.replay(req)
	if err != nil {
		return nil, err
	}
	return next.RoundTrip(retry)
}

// refresh joins the in-flight refresh or starts one. The refresh itself is
// detached from ctx so one caller giving up does not fail the others.
func (a *AuthRetry) refresh(ctx context.Context) error {
	ch := a.group.DoChan("refresh", func() (any, error) {
		return nil, a.refresher.RefreshAccessToken(context.WithoutCancel(ctx))
	})

	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-ch:
		return res.Err
	}
}

func (a *AuthRetry) replay(req *http.Request) (*http.Request, error) {
	retry := req.Clone(withRetried(req.Context()))
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, fmt.Errorf("failed to rewind request body: %w", err)
		}
		retry.Body = body
	}

	if a.jar != nil {
		retry.Header.Del("Cookie")
		for _, c := range a.jar.Cookies(retry.URL) {
			retry.AddCookie(c)
		}
	}
	return retry, nil
}

// replayable makes sure req's body can be read a second time.
func replayable(req *http.Request) (*http.Request, error) {
	if req.Body == nil || req.Body == http.NoBody || req.GetBody != nil {
		return req, nil
	}

	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("failed to buffer request body: %w", err)
	}

	out := req.Clone(req.Context())
	out.Body = io.NopCloser(bytes.NewReader(data))
	out.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return out, nil
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
