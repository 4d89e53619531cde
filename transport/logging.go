package transport

import (
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Logging writes one debug line per round trip.
func Logging(logger *zap.Logger) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			start := time.Now()
			resp, err := next.RoundTrip(req)

			fields := []zap.Field{
				zap.String("method", req.Method),
				zap.String("path", req.URL.Path),
				zap.String("request_id", RequestIDFrom(req.Context())),
				zap.Bool("replay", IsRetried(req.Context())),
				zap.Duration("duration", time.Since(start)),
			}
			if err != nil {
				logger.Debug("round trip failed", append(fields, zap.Error(err))...)
				return nil, err
			}
			logger.Debug("round trip", append(fields, zap.Int("status", resp.StatusCode))...)
			return resp, nil
		})
	}
}
