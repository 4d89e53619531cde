// Package transport builds the HTTP request pipeline shared by every API call.
//
// A pipeline is an http.RoundTripper assembled from middlewares once at
// startup. The API pipeline repairs expired sessions (see AuthRetry); the
// refresh pipeline is the same chain without that stage so a refresh can
// never trigger another refresh.
package transport

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Middleware wraps a RoundTripper.
type Middleware func(next http.RoundTripper) http.RoundTripper

// RoundTripperFunc adapts a function to http.RoundTripper.
type RoundTripperFunc func(*http.Request) (*http.Response, error)

func (f RoundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// Chain wraps base with mws. The first middleware is the outermost.
func Chain(base http.RoundTripper, mws ...Middleware) http.RoundTripper {
	rt := base
	for i := len(mws) - 1; i >= 0; i-- {
		rt = mws[i](rt)
	}
	return rt
}

type ctxKey int

const (
	retriedKey ctxKey = iota
	noAuthRetryKey
	requestIDKey
)

// WithoutAuthRetry marks requests made with ctx as exempt from the
// refresh-and-replay cycle. A 401 is returned to the caller unchanged.
func WithoutAuthRetry(ctx context.Context) context.Context {
	return context.WithValue(ctx, noAuthRetryKey, true)
}

func authRetryDisabled(ctx context.Context) bool {
	v, _ := ctx.Value(noAuthRetryKey).(bool)
	return v
}

func withRetried(ctx context.Context) context.Context {
	return context.WithValue(ctx, retriedKey, true)
}

// IsRetried reports whether the request carrying ctx is a replay.
func IsRetried(ctx context.Context) bool {
	v, _ := ctx.Value(retriedKey).(bool)
	return v
}

// Options configures NewPipeline.
type Options struct {
	// Base is the innermost transport. Defaults to a tuned *http.Transport.
	Base http.RoundTripper
	// Jar is consulted for the CSRF token and for cookies on replay.
	Jar    http.CookieJar
	Logger *zap.Logger

	// MaxRetries for transient failures (network, 5xx, 429). Zero disables.
	MaxRetries int
	RetryDelay time.Duration

	// BreakerFailures consecutive failures open the circuit. Zero disables.
	BreakerFailures uint32
	BreakerTimeout  time.Duration
}

// NewPipeline assembles the request pipeline. auth may be nil, which yields
// the refresh pipeline.
func NewPipeline(name string, opts Options, auth *AuthRetry) (http.RoundTripper, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("pipeline", name))

	base := opts.Base
	if base == nil {
		base = DefaultBaseTransport()
	}
	if opts.MaxRetries > 0 {
		var err error
		base, err = NewRetrying(base, opts.MaxRetries, opts.RetryDelay, logger)
		if err != nil {
			return nil, err
		}
	}

	var mws []Middleware
	mws = append(mws, RequestID())
	if auth != nil {
		mws = append(mws, auth.Wrap)
	}
	mws = append(mws, CSRF(opts.Jar), Logging(logger))
	if opts.BreakerFailures > 0 {
		mws = append(mws, Breaker(name, opts.BreakerFailures, opts.BreakerTimeout, logger))
	}

	return Chain(base, mws...), nil
}
