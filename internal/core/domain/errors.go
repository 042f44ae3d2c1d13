package domain

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrUnauthenticated    = errors.New("not authenticated")
	ErrForbidden          = errors.New("access forbidden")
	ErrEmptyReason        = errors.New("rejection reason is required")
	ErrMutationInFlight   = errors.New("request is already being processed")
	ErrInvalidRequestKind = errors.New("invalid request kind")
	ErrSessionNotStored   = errors.New("session not stored")
	ErrInvalidRole        = errors.New("invalid role")
	ErrInvalidRequestRef  = errors.New("invalid request reference")
	ErrSessionExpired     = errors.New("session expired")
)

// GatewayError is a failed upstream call. Message holds the text the server
// sent in its "error", "message" or "detail" field, if any.
type GatewayError struct {
	Op      string
	Status  int
	Message string
	Err     error
}

func (e *GatewayError) Error() string {
	switch {
	case e.Message != "":
		return fmt.Sprintf("%s: %d %s", e.Op, e.Status, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: status %d", e.Op, e.Status)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

// UserMessage picks the text shown to the operator for a failure: the
// server-supplied message when there is one, fallback otherwise.
func UserMessage(err error, fallback string) string {
	var ge *GatewayError
	if errors.As(err, &ge) && ge.Message != "" {
		return ge.Message
	}
	return fallback
}

// SessionLost reports whether err shows that the upstream no longer
// recognizes the caller: any 401, or a 403 whose message says the
// credentials or the CSRF token are missing. Other 403s are permission
// failures and leave the session alone.
func SessionLost(err error) bool {
	var ge *GatewayError
	if !errors.As(err, &ge) {
		return false
	}
	switch ge.Status {
	case http.StatusUnauthorized:
		return true
	case http.StatusForbidden:
		msg := strings.ToLower(ge.Message)
		return strings.Contains(msg, "credentials were not provided") ||
			strings.Contains(msg, "not authenticated") ||
			strings.Contains(msg, "csrf")
	default:
		return false
	}
}
