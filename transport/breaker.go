package transport

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// errServerStatus marks a 5xx response as a breaker failure.
var errServerStatus = errors.New("server status")

// ErrCircuitOpen is returned while the breaker rejects requests.
var ErrCircuitOpen = errors.New("circuit breaker open")

// Breaker stops sending requests after failures consecutive network errors or
// 5xx responses, and probes again after timeout.
func Breaker(name string, failures uint32, timeout time.Duration, logger *zap.Logger) Middleware {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    name,
		Timeout: timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			out, err := cb.Execute(func() (interface{}, error) {
				resp, err := next.RoundTrip(req)
				if err != nil {
					if resp != nil && resp.Body != nil {
						_ = resp.Body.Close()
					}
					return nil, err
				}
				if resp.StatusCode >= 500 {
					return resp, errServerStatus
				}
				return resp, nil
			})

			switch {
			case err == nil:
				return out.(*http.Response), nil
			case errors.Is(err, errServerStatus):
				return out.(*http.Response), nil
			case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
				return nil, fmt.Errorf("%w: %s: %v", ErrCircuitOpen, name, err)
			default:
				return nil, err
			}
		})
	}
}
