// Package apierr classifies failures of the climate API and turns them into
// user-facing messages.
package apierr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/buger/jsonparser"
)

// Kind is the class of a failure.
type Kind int

const (
	KindValidation Kind = iota + 1 // rejected locally, no request sent
	KindAuth                       // 401/403, or a rejected refresh
	KindClient                     // other 4xx (bad credentials, duplicate username)
	KindNetwork                    // no response from the server
	KindServer                     // 5xx
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindClient:
		return "client"
	case KindNetwork:
		return "network"
	case KindServer:
		return "server"
	default:
		return "unknown"
	}
}

// Sentinels matched by errors.Is against an *Error of the same kind.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrClient       = errors.New("request rejected")
	ErrNetwork      = errors.New("server unreachable")
	ErrServer       = errors.New("server error")
)

const (
	MsgNetwork = "could not reach the server"
	MsgServer  = "the server had a problem, please try again later"
	MsgDefault = "an error occurred"
)

// Error is a classified API failure. Message is safe to show to the user.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrServer) and friends match by kind.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrValidation:
		return e.Kind == KindValidation
	case ErrUnauthorized:
		return e.Kind == KindAuth
	case ErrClient:
		return e.Kind == KindClient
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrServer:
		return e.Kind == KindServer
	}
	return false
}

// Validation returns a KindValidation error with the given message.
func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

// Network wraps a transport failure.
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Message: MsgNetwork, Err: err}
}

// FromResponse classifies a non-2xx response whose body has already been read.
func FromResponse(status int, body []byte) *Error {
	e := &Error{
		Kind:    kindForStatus(status),
		Status:  status,
		Message: extractMessage(status, body),
	}
	e.Err = fmt.Errorf("status %d", status)
	return e
}

func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status >= 500:
		return KindServer
	default:
		return KindClient
	}
}

// extractMessage picks the most specific message a DRF-style error body offers:
// detail, then non_field_errors[0], then the first remaining field in document order.
func extractMessage(status int, body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" {
		if status >= 500 {
			return MsgServer
		}
		return statusText(status)
	}

	if trimmed[0] == '{' {
		if msg := fromObject([]byte(trimmed)); msg != "" {
			return msg
		}
		return statusText(status)
	}

	if status >= 500 {
		return MsgServer
	}
	switch {
	case len(trimmed) >= 2 && trimmed[0] == '"':
		if s, err := jsonparser.ParseString([]byte(trimmed[1 : len(trimmed)-1])); err == nil && s != "" {
			return s
		}
		return statusText(status)
	case trimmed[0] == '[' || trimmed[0] == '<':
		return statusText(status)
	default:
		return trimmed
	}
}

func fromObject(data []byte) string {
	if s, err := jsonparser.GetString(data, "detail"); err == nil && s != "" {
		return s
	}
	if s := firstString(data, "non_field_errors"); s != "" {
		return s
	}

	var found string
	_ = jsonparser.ObjectEach(data, func(key, value []byte, dataType jsonparser.ValueType, _ int) error {
		if found != "" {
			return nil
		}
		switch dataType {
		case jsonparser.String:
			if s, err := jsonparser.ParseString(value); err == nil && s != "" {
				found = s
			}
		case jsonparser.Array:
			found = firstString(value)
		}
		return nil
	})
	return found
}

// firstString returns the first element of the array at keys if it is a string.
func firstString(data []byte, keys ...string) string {
	var out string
	done := false
	_, _ = jsonparser.ArrayEach(data, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
		if done {
			return
		}
		done = true
		if dataType == jsonparser.String {
			if s, err := jsonparser.ParseString(value); err == nil {
				out = s
			}
		}
	}, keys...)
	return out
}

func statusText(status int) string {
	if t := http.StatusText(status); t != "" {
		return t
	}
	return MsgDefault
}

// Message returns the text to show for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return MsgDefault
}

// KindOf returns the kind of err, or 0 when err is not classified.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return 0
}

// IsGlobal reports whether err belongs on the global error banner rather than
// next to the form that caused it: connectivity failures and 5xx responses.
func IsGlobal(err error) bool {
	k := KindOf(err)
	return k == KindNetwork || k == KindServer
}
