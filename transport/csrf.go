package transport

import (
	"net/http"
)

const (
	CSRFCookieName = "csrftoken"
	CSRFHeaderName = "X-CSRFToken"
)

// CSRF echoes the server's csrftoken cookie on state-changing requests and
// sets Origin so the server can verify it on HTTPS without a Referer.
func CSRF(jar http.CookieJar) Middleware {
	return func(next http.RoundTripper) http.RoundTripper {
		return RoundTripperFunc(func(req *http.Request) (*http.Response, error) {
			if jar == nil || isSafeMethod(req.Method) {
				return next.RoundTrip(req)
			}

			token := ""
			for _, c := range jar.Cookies(req.URL) {
				if c.Name == CSRFCookieName {
					token = c.Value
				}
			}

			out := req.Clone(req.Context())
			if token != "" {
				out.Header.Set(CSRFHeaderName, token)
			}
			if out.Header.Get("Origin") == "" {
				out.Header.Set("Origin", req.URL.Scheme+"://"+req.URL.Host)
			}
			return next.RoundTrip(out)
		})
	}
}

func isSafeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
