// Package event provides the shared normalized message model for the relay.
// This package is used by the buffer, session, forward, and api packages.
package event

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Message type constants. The values are the wire names used by the
// upstream open-live platform and expected by downstream consumers.
const (
	TypeDanmaku   = "danmaku"
	TypeGift      = "gift"
	TypeGuard     = "guard"
	TypeSuperChat = "superchat"
	TypeLike      = "like"
)

// Types lists every known message type.
var Types = []string{TypeDanmaku, TypeGift, TypeGuard, TypeSuperChat, TypeLike}

// KnownType reports whether t is one of the five message types.
func KnownType(t string) bool {
	switch t {
	case TypeDanmaku, TypeGift, TypeGuard, TypeSuperChat, TypeLike:
		return true
	}
	return false
}

// Message is the canonical record produced from any of the five raw upstream
// message kinds. Exactly one variant's fields are populated, selected by Type;
// the remaining variant fields stay at their zero value and are omitted from
// JSON output.
type Message struct {
	Type      string `json:"type"`
	UName     string `json:"uname"`
	UID       UserID `json:"uid"`
	RoomID    int64  `json:"room_id"`
	Timestamp int64  `json:"timestamp"`

	// danmaku
	Msg string `json:"msg,omitempty"`

	// gift
	GiftName string   `json:"gift_name,omitempty"`
	GiftNum  int      `json:"gift_num,omitempty"`
	Paid     *bool    `json:"paid,omitempty"`
	Price    *float64 `json:"price,omitempty"` // shared with guard; pointer so a free gift's 0 survives

	// guard
	GuardLevel int    `json:"guard_level,omitempty"`
	GuardName  string `json:"guard_name,omitempty"`

	// superchat
	Message string   `json:"message,omitempty"`
	RMB     *float64 `json:"rmb,omitempty"`
}

// Text returns the natural text carried by the message, or "" when the
// message type has none (gift, guard, like).
func (m Message) Text() string {
	switch m.Type {
	case TypeDanmaku:
		return m.Msg
	case TypeSuperChat:
		return m.Message
	}
	return ""
}

// UserID is an upstream-defined user identifier. The platform delivers it as
// a JSON number for legacy uids and as a string for open-platform open_ids;
// it is treated as opaque and passed through byte-for-byte.
type UserID struct {
	raw json.RawMessage
}

// UserIDFromString returns a UserID holding the given string value.
func UserIDFromString(s string) UserID {
	b, _ := json.Marshal(s)
	return UserID{raw: b}
}

// UserIDFromInt returns a UserID holding the given numeric value.
func UserIDFromInt(n int64) UserID {
	b, _ := json.Marshal(n)
	return UserID{raw: b}
}

// IsZero reports whether the identifier is unset.
func (u UserID) IsZero() bool {
	return len(u.raw) == 0 || string(u.raw) == "null"
}

// String returns the identifier without JSON quoting, for logging.
func (u UserID) String() string {
	if u.IsZero() {
		return ""
	}
	if u.raw[0] == '"' {
		var s string
		if err := json.Unmarshal(u.raw, &s); err == nil {
			return s
		}
	}
	return string(u.raw)
}

// MarshalJSON implements json.Marshaler, emitting the identifier exactly as
// it arrived upstream.
func (u UserID) MarshalJSON() ([]byte, error) {
	if len(u.raw) == 0 {
		return []byte("null"), nil
	}
	return u.raw, nil
}

// UnmarshalJSON implements json.Unmarshaler. Only JSON strings, numbers and
// null are accepted.
func (u *UserID) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		u.raw = nil
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	case 'n':
		if string(b) != "null" {
			return fmt.Errorf("user id: invalid token %q", b)
		}
		u.raw = nil
		return nil
	case '{', '[', 't', 'f':
		return fmt.Errorf("user id: expected string or number, got %q", b)
	default:
		var n json.Number
		if err := json.Unmarshal(b, &n); err != nil {
			return err
		}
	}
	u.raw = append(json.RawMessage(nil), b...)
	return nil
}
