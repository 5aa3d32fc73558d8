package pasugo

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gobwas/ws"
)

var (
	// ErrClosed is returned by operations on a chat that was closed by the
	// user or disposed.
	ErrClosed = errors.New("pasugo: chat closed")

	// ErrComposerDisabled is returned by Send once the chat is read-only:
	// the task ended, the connection was lost for good, or access was
	// rejected.
	ErrComposerDisabled = errors.New("pasugo: composer disabled")

	// ErrNotConnected is returned by operations that need a conversation
	// before Connect succeeded.
	ErrNotConnected = errors.New("pasugo: no active conversation")

	// ErrUnauthorized means the access token was rejected.
	ErrUnauthorized = errors.New("pasugo: unauthorized")

	// ErrForbidden means the task is not visible to the current identity.
	ErrForbidden = errors.New("pasugo: forbidden")

	// ErrConnectionLost means reconnect attempts were exhausted.
	ErrConnectionLost = errors.New("pasugo: connection lost")
)

// APIError is a non-2xx REST response.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("pasugo api %s %s: %d %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Is maps auth statuses onto the sentinel errors.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden || e.StatusCode == http.StatusNotFound
	}
	return false
}

// CloseError describes why the socket went away.
type CloseError struct {
	Code   ws.StatusCode
	Reason string
}

func (e *CloseError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("pasugo: socket closed (%d)", e.Code)
	}
	return fmt.Sprintf("pasugo: socket closed (%d): %s", e.Code, e.Reason)
}

// Is maps the reserved application close codes onto the sentinel errors.
func (e *CloseError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Code == CloseUnauthorized
	case ErrForbidden:
		return e.Code == CloseForbidden
	}
	return false
}

func authRejected(err error) bool {
	return errors.Is(err, ErrUnauthorized) || errors.Is(err, ErrForbidden)
}
