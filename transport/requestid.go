package transport

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestID stamps every logical request with an ID. Replays keep the ID of
// the request they repeat.
func RequestID() Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			id := req.Header.Get(RequestIDHeader)
			if id == "" {
				id = uuid.NewString()
			}
			out := req.Clone(context.WithValue(req.Context(), requestIDKey, id))
			out.Header.Set(RequestIDHeader, id)
			return next.RoundTrip(out)
		})
	}
}

// RequestIDFrom returns the ID stamped by RequestID, if any.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}
