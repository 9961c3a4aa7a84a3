package session

import (
	json "github.com/goccy/go-json"

	"github.com/sakurairo/danmaku-relay/internal/event"
)

// Normalize maps a raw upstream payload of the given kind to the canonical
// message model. It is pure: no I/O, no retries. A payload missing a field
// required by its kind, or carrying one of the wrong shape, yields a
// *MalformedEventError and the zero Message; the caller decides whether to
// drop or log.
func Normalize(kind string, payload json.RawMessage) (event.Message, error) {
	switch kind {
	case event.TypeDanmaku:
		return normalizeDanmaku(payload)
	case event.TypeGift:
		return normalizeGift(payload)
	case event.TypeGuard:
		return normalizeGuard(payload)
	case event.TypeSuperChat:
		return normalizeSuperChat(payload)
	case event.TypeLike:
		return normalizeLike(payload)
	}
	return event.Message{}, &MalformedEventError{Kind: kind, Field: "type"}
}

// actor is the common identity block carried by every upstream kind. The
// open platform sends open_id (string) for new apps and uid (number) for
// legacy ones; either satisfies the identity requirement.
type actor struct {
	UName     *string      `json:"uname"`
	OpenID    event.UserID `json:"open_id"`
	UID       event.UserID `json:"uid"`
	RoomID    *int64       `json:"room_id"`
	Timestamp *int64       `json:"timestamp"`
}

func (a actor) userID() event.UserID {
	if !a.OpenID.IsZero() {
		return a.OpenID
	}
	return a.UID
}

// missing returns the name of the first absent common field, or "".
func (a actor) missing() string {
	switch {
	case a.UName == nil:
		return "uname"
	case a.OpenID.IsZero() && a.UID.IsZero():
		return "uid"
	case a.RoomID == nil:
		return "room_id"
	case a.Timestamp == nil:
		return "timestamp"
	}
	return ""
}

func decode(kind string, payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return &MalformedEventError{Kind: kind, Err: err}
	}
	return nil
}

func normalizeDanmaku(payload json.RawMessage) (event.Message, error) {
	var raw struct {
		actor
		Msg *string `json:"msg"`
	}
	if err := decode(event.TypeDanmaku, payload, &raw); err != nil {
		return event.Message{}, err
	}
	if f := raw.missing(); f != "" {
		return event.Message{}, &MalformedEventError{Kind: event.TypeDanmaku, Field: f}
	}
	if raw.Msg == nil {
		return event.Message{}, &MalformedEventError{Kind: event.TypeDanmaku, Field: "msg"}
	}
	return event.Message{
		Type:      event.TypeDanmaku,
		UName:     *raw.UName,
		UID:       raw.userID(),
		RoomID:    *raw.RoomID,
		Timestamp: *raw.Timestamp,
		Msg:       *raw.Msg,
	}, nil
}

func normalizeGift(payload json.RawMessage) (event.Message, error) {
	var raw struct {
		actor
		GiftName *string  `json:"gift_name"`
		GiftNum  *int     `json:"gift_num"`
		Price    *float64 `json:"price"`
		Paid     *bool    `json:"paid"`
	}
	if err := decode(event.TypeGift, payload, &raw); err != nil {
		return event.Message{}, err
	}
	if f := raw.missing(); f != "" {
		return event.Message{}, &MalformedEventError{Kind: event.TypeGift, Field: f}
	}
	switch {
	case raw.GiftName == nil:
		return event.Message{}, &MalformedEventError{Kind: event.TypeGift, Field: "gift_name"}
	case raw.GiftNum == nil:
		return event.Message{}, &MalformedEventError{Kind: event.TypeGift, Field: "gift_num"}
	case *raw.GiftNum < 1:
		return event.Message{}, &MalformedEventError{Kind: event.TypeGift, Field: "gift_num"}
	case raw.Price == nil:
		return event.Message{}, &MalformedEventError{Kind: event.TypeGift, Field: "price"}
	case raw.Paid == nil:
		return event.Message{}, &MalformedEventError{Kind: event.TypeGift, Field: "paid"}
	}
	return event.Message{
		Type:      event.TypeGift,
		UName:     *raw.UName,
		UID:       raw.userID(),
		RoomID:    *raw.RoomID,
		Timestamp: *raw.Timestamp,
		GiftName:  *raw.GiftName,
		GiftNum:   *raw.GiftNum,
		Price:     raw.Price,
		Paid:      raw.Paid,
	}, nil
}

func normalizeGuard(payload json.RawMessage) (event.Message, error) {
	var raw struct {
		actor
		UserInfo *struct {
			UName  *string      `json:"uname"`
			OpenID event.UserID `json:"open_id"`
			UID    event.UserID `json:"uid"`
		} `json:"user_info"`
		GuardLevel *int     `json:"guard_level"`
		GuardName  *string  `json:"guard_name"`
		Price      *float64 `json:"price"`
	}
	if err := decode(event.TypeGuard, payload, &raw); err != nil {
		return event.Message{}, err
	}

	// Guard purchases nest the buyer identity under user_info; lift it into
	// the common block before the shared checks.
	if raw.UserInfo != nil {
		if raw.UName == nil {
			raw.UName = raw.UserInfo.UName
		}
		if raw.OpenID.IsZero() {
			raw.OpenID = raw.UserInfo.OpenID
		}
		if raw.UID.IsZero() {
			raw.UID = raw.UserInfo.UID
		}
	}
	if f := raw.missing(); f != "" {
		return event.Message{}, &MalformedEventError{Kind: event.TypeGuard, Field: f}
	}
	switch {
	case raw.GuardLevel == nil:
		return event.Message{}, &MalformedEventError{Kind: event.TypeGuard, Field: "guard_level"}
	case raw.GuardName == nil:
		return event.Message{}, &MalformedEventError{Kind: event.TypeGuard, Field: "guard_name"}
	case raw.Price == nil:
		return event.Message{}, &MalformedEventError{Kind: event.TypeGuard, Field: "price"}
	}
	return event.Message{
		Type:       event.TypeGuard,
		UName:      *raw.UName,
		UID:        raw.userID(),
		RoomID:     *raw.RoomID,
		Timestamp:  *raw.Timestamp,
		GuardLevel: *raw.GuardLevel,
		GuardName:  *raw.GuardName,
		Price:      raw.Price,
	}, nil
}

func normalizeSuperChat(payload json.RawMessage) (event.Message, error) {
	var raw struct {
		actor
		Message *string  `json:"message"`
		RMB     *float64 `json:"rmb"`
	}
	if err := decode(event.TypeSuperChat, payload, &raw); err != nil {
		return event.Message{}, err
	}
	if f := raw.missing(); f != "" {
		return event.Message{}, &MalformedEventError{Kind: event.TypeSuperChat, Field: f}
	}
	switch {
	case raw.Message == nil:
		return event.Message{}, &MalformedEventError{Kind: event.TypeSuperChat, Field: "message"}
	case raw.RMB == nil:
		return event.Message{}, &MalformedEventError{Kind: event.TypeSuperChat, Field: "rmb"}
	}
	return event.Message{
		Type:      event.TypeSuperChat,
		UName:     *raw.UName,
		UID:       raw.userID(),
		RoomID:    *raw.RoomID,
		Timestamp: *raw.Timestamp,
		Message:   *raw.Message,
		RMB:       raw.RMB,
	}, nil
}

func normalizeLike(payload json.RawMessage) (event.Message, error) {
	var raw struct {
		actor
	}
	if err := decode(event.TypeLike, payload, &raw); err != nil {
		return event.Message{}, err
	}
	if f := raw.missing(); f != "" {
		return event.Message{}, &MalformedEventError{Kind: event.TypeLike, Field: f}
	}
	return event.Message{
		Type:      event.TypeLike,
		UName:     *raw.UName,
		UID:       raw.userID(),
		RoomID:    *raw.RoomID,
		Timestamp: *raw.Timestamp,
	}, nil
}
