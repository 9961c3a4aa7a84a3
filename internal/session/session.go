// Package session owns the lifecycle of the upstream live session and the
// normalization of its raw events into the shared message model.
package session

import (
	"context"

	json "github.com/goccy/go-json"
)

// Credentials identify an open-live application and room. All four fields
// are required.
type Credentials struct {
	AccessKeyID       string
	AccessKeySecret   string
	AppID             int64
	RoomOwnerAuthCode string
}

// Validate reports missing credential fields as a *CredentialError.
func (c Credentials) Validate() error {
	var missing []string
	if c.AccessKeyID == "" {
		missing = append(missing, "ACCESS_KEY_ID")
	}
	if c.AccessKeySecret == "" {
		missing = append(missing, "ACCESS_KEY_SECRET")
	}
	if c.AppID == 0 {
		missing = append(missing, "APP_ID")
	}
	if c.RoomOwnerAuthCode == "" {
		missing = append(missing, "ROOM_OWNER_AUTH_CODE")
	}
	if len(missing) > 0 {
		return &CredentialError{Missing: missing}
	}
	return nil
}

// RawEvent is a single upstream message before normalization. Kind is one of
// the event.Type* constants; Payload is the upstream-defined JSON body.
type RawEvent struct {
	Kind    string
	Payload json.RawMessage
}

// Session is a live upstream connection. The events channel closes when the
// session ends, whether by Close or by a connection-fatal error; Err then
// reports the terminal error, if any.
type Session interface {
	// Events returns the channel of raw upstream events. Heartbeats are
	// handled inside the session and never appear here.
	Events() <-chan RawEvent

	// Err returns the terminal error after Events has closed. Nil for a
	// clean shutdown.
	Err() error

	// Close tears the connection down, bounded by ctx. Safe to call more
	// than once.
	Close(ctx context.Context) error
}

// Dialer opens upstream sessions from credentials.
type Dialer interface {
	Dial(ctx context.Context, creds Credentials) (Session, error)
}
