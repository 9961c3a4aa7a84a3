package session

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotRunning is returned by Stop when no session is active.
var ErrNotRunning = errors.New("no session is running")

// CredentialError reports configure requests with missing credential fields.
type CredentialError struct {
	Missing []string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("missing required fields: %s", strings.Join(e.Missing, ", "))
}

// StartError wraps an upstream connection or authentication failure during
// configure. The manager stays idle; there is no automatic retry.
type StartError struct {
	Err error
}

func (e *StartError) Error() string {
	return fmt.Sprintf("start session: %v", e.Err)
}

func (e *StartError) Unwrap() error {
	return e.Err
}

// MalformedEventError reports an upstream payload missing a field required
// by its kind, or carrying one of the wrong shape. The event is dropped; the
// session keeps running.
type MalformedEventError struct {
	Kind  string
	Field string
	Err   error
}

func (e *MalformedEventError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("malformed %s event: field %s", e.Kind, e.Field)
	}
	return fmt.Sprintf("malformed %s event: %v", e.Kind, e.Err)
}

func (e *MalformedEventError) Unwrap() error {
	return e.Err
}
