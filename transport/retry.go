package transport

import (
	"crypto/tls"
	"errors"
	"net/http"
	"time"

	retry "github.com/appleboy/go-httpretry"
	"go.uber.org/zap"
)

// DefaultBaseTransport returns the tuned transport used when none is given.
func DefaultBaseTransport() http.RoundTripper {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		TLSClientConfig: &tls.Config{
			MinVersion: tls.VersionTLS12,
		},
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableKeepAlives:   false,
	}
}

// NewRetrying wraps base with go-httpretry so transient failures (network
// errors, 5xx, 429) are retried with backoff before anything above sees them.
// Once retries run out on a status, that last response is returned as a
// normal response so it is classified like any other.
func NewRetrying(base http.RoundTripper, maxRetries int, delay time.Duration, logger *zap.Logger) (http.RoundTripper, error) {
	inner := &http.Client{
		Transport: rewindBody(base),
		// redirects are followed by the outer client so its jar sees them
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	opts := []retry.Option{
		retry.WithHTTPClient(inner),
		retry.WithMaxRetries(maxRetries),
		retry.WithRetryableChecker(Retryable),
		retry.WithLogger(zapRetryLogger{logger.Sugar()}),
	}
	if delay > 0 {
		opts = append(opts, retry.WithInitialRetryDelay(delay))
	}

	client, err := retry.NewClient(opts...)
	if err != nil {
		return nil, err
	}

	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		resp, err := client.DoWithContext(req.Context(), req)
		if err == nil {
			return resp, nil
		}

		var exhausted *retry.RetryError
		if resp != nil && errors.As(err, &exhausted) && exhausted.LastStatus != 0 {
			logger.Debug("retries exhausted",
				zap.String("path", req.URL.Path),
				zap.Int("status", exhausted.LastStatus),
				zap.Int("attempts", exhausted.Attempts))
			return resp, nil
		}

		if resp != nil && resp.Body != nil {
			_ = resp.Body.Close()
		}
		logger.Debug("request failed after retries", zap.String("path", req.URL.Path), zap.Error(err))
		return nil, err
	}), nil
}

// rewindBody gives every attempt a fresh copy of the request body, since
// go-httpretry clones the request without re-reading it.
func rewindBody(next http.RoundTripper) http.RoundTripper {
	return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
		if req.GetBody == nil || req.Body == nil || req.Body == http.NoBody {
			return next.RoundTrip(req)
		}
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		attempt := req.Clone(req.Context())
		attempt.Body = body
		return next.RoundTrip(attempt)
	})
}

// Retryable reports whether an attempt should be repeated. Network errors,
// 5xx and 429 are retried for idempotent methods. Other methods are retried
// on network errors and 429 only, since a 5xx may come after the server
// already applied the request.
func Retryable(err error, resp *http.Response) bool {
	if err != nil {
		return true
	}
	if resp == nil {
		return false
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return true
	}
	if resp.Request != nil && !idempotent(resp.Request.Method) {
		return false
	}
	return resp.StatusCode >= 500
}

func idempotent(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodPut, http.MethodDelete:
		return true
	}
	return false
}

// zapRetryLogger routes go-httpretry's key/value log calls into zap, one
// level lower than requested.
type zapRetryLogger struct {
	l *zap.SugaredLogger
}

func (z zapRetryLogger) Debug(msg string, args ...any) { z.l.Debugw(msg, args...) }
func (z zapRetryLogger) Info(msg string, args ...any)  { z.l.Debugw(msg, args...) }
func (z zapRetryLogger) Warn(msg string, args ...any)  { z.l.Infow(msg, args...) }
func (z zapRetryLogger) Error(msg string, args ...any) { z.l.Warnw(msg, args...) }
