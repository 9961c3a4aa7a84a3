package session

import (
	"errors"
	"testing"

	json "github.com/goccy/go-json"

	"github.com/sakurairo/danmaku-relay/internal/event"
)

func TestNormalizeDanmaku(t *testing.T) {
	payload := json.RawMessage(`{
		"uname": "A",
		"open_id": "open-1",
		"room_id": 10,
		"timestamp": 1000,
		"msg": "hi"
	}`)

	msg, err := Normalize(event.TypeDanmaku, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.Type != event.TypeDanmaku || msg.UName != "A" || msg.Msg != "hi" {
		t.Errorf("unexpected message: %+v", msg)
	}
	if msg.RoomID != 10 || msg.Timestamp != 1000 {
		t.Errorf("room/timestamp not passed through: %+v", msg)
	}
	if msg.UID.String() != "open-1" {
		t.Errorf("UID = %q, want open_id preferred", msg.UID.String())
	}
}

func TestNormalizeDanmakuLegacyUID(t *testing.T) {
	payload := json.RawMessage(`{"uname":"A","uid":42,"room_id":1,"timestamp":5,"msg":"x"}`)

	msg, err := Normalize(event.TypeDanmaku, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	out, _ := json.Marshal(msg.UID)
	if string(out) != "42" {
		t.Errorf("uid = %s, want numeric passthrough 42", out)
	}
}

func TestNormalizeGift(t *testing.T) {
	payload := json.RawMessage(`{
		"uname": "B",
		"uid": 7,
		"room_id": 10,
		"timestamp": 2000,
		"gift_name": "rose",
		"gift_num": 3,
		"price": 100,
		"paid": true
	}`)

	msg, err := Normalize(event.TypeGift, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.GiftName != "rose" || msg.GiftNum != 3 {
		t.Errorf("unexpected gift fields: %+v", msg)
	}
	if msg.Price == nil || *msg.Price != 100 {
		t.Errorf("price not carried: %+v", msg.Price)
	}
	if msg.Paid == nil || !*msg.Paid {
		t.Errorf("paid not carried: %+v", msg.Paid)
	}
}

func TestNormalizeGiftKeepsZeroPrice(t *testing.T) {
	payload := json.RawMessage(`{"uname":"B","uid":7,"room_id":10,"timestamp":2,"gift_name":"heart","gift_num":1,"price":0,"paid":false}`)

	msg, err := Normalize(event.TypeGift, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.Price == nil || *msg.Price != 0 {
		t.Fatalf("Price = %v, want explicit 0 for a free gift", msg.Price)
	}

	out, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(out, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := decoded["price"]; !ok || v != float64(0) {
		t.Errorf("price = %v (present %v), want 0 in the output", v, ok)
	}
	if v, ok := decoded["paid"]; !ok || v != false {
		t.Errorf("paid = %v (present %v), want false in the output", v, ok)
	}
}

func TestNormalizeGuardNestedUserInfo(t *testing.T) {
	payload := json.RawMessage(`{
		"user_info": {"uname": "C", "uid": 9},
		"room_id": 10,
		"timestamp": 3000,
		"guard_level": 3,
		"guard_name": "舰长",
		"price": 198000
	}`)

	msg, err := Normalize(event.TypeGuard, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.UName != "C" || msg.GuardLevel != 3 || msg.GuardName != "舰长" {
		t.Errorf("unexpected guard fields: %+v", msg)
	}
}

func TestNormalizeSuperChat(t *testing.T) {
	payload := json.RawMessage(`{
		"uname": "D",
		"open_id": "open-4",
		"room_id": 10,
		"timestamp": 4000,
		"message": "hello streamer",
		"rmb": 30
	}`)

	msg, err := Normalize(event.TypeSuperChat, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.Message != "hello streamer" || msg.RMB == nil || *msg.RMB != 30 {
		t.Errorf("unexpected superchat fields: %+v", msg)
	}
	if msg.Text() != "hello streamer" {
		t.Errorf("Text() = %q", msg.Text())
	}
}

func TestNormalizeLike(t *testing.T) {
	payload := json.RawMessage(`{"uname":"E","uid":5,"room_id":10,"timestamp":5000}`)

	msg, err := Normalize(event.TypeLike, payload)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if msg.Type != event.TypeLike || msg.Msg != "" || msg.Message != "" {
		t.Errorf("like must carry no extra payload: %+v", msg)
	}
}

func TestNormalizeMissingFields(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		payload string
		field   string
	}{
		{"gift without gift_name", event.TypeGift,
			`{"uname":"B","uid":7,"room_id":10,"timestamp":1,"gift_num":1,"price":1,"paid":false}`, "gift_name"},
		{"gift without paid", event.TypeGift,
			`{"uname":"B","uid":7,"room_id":10,"timestamp":1,"gift_name":"rose","gift_num":1,"price":1}`, "paid"},
		{"gift with zero count", event.TypeGift,
			`{"uname":"B","uid":7,"room_id":10,"timestamp":1,"gift_name":"rose","gift_num":0,"price":1,"paid":false}`, "gift_num"},
		{"danmaku without msg", event.TypeDanmaku,
			`{"uname":"A","uid":1,"room_id":10,"timestamp":1}`, "msg"},
		{"danmaku without uname", event.TypeDanmaku,
			`{"uid":1,"room_id":10,"timestamp":1,"msg":"hi"}`, "uname"},
		{"danmaku without identity", event.TypeDanmaku,
			`{"uname":"A","room_id":10,"timestamp":1,"msg":"hi"}`, "uid"},
		{"superchat without rmb", event.TypeSuperChat,
			`{"uname":"D","uid":4,"room_id":10,"timestamp":1,"message":"x"}`, "rmb"},
		{"guard without guard_name", event.TypeGuard,
			`{"uname":"C","uid":9,"room_id":10,"timestamp":1,"guard_level":3,"price":1}`, "guard_name"},
		{"like without timestamp", event.TypeLike,
			`{"uname":"E","uid":5,"room_id":10}`, "timestamp"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Normalize(tt.kind, json.RawMessage(tt.payload))
			var malformed *MalformedEventError
			if !errors.As(err, &malformed) {
				t.Fatalf("err = %v, want *MalformedEventError", err)
			}
			if malformed.Field != tt.field {
				t.Errorf("Field = %q, want %q", malformed.Field, tt.field)
			}
		})
	}
}

func TestNormalizeWrongShape(t *testing.T) {
	// gift_num as a string is a shape error, not a missing field.
	payload := json.RawMessage(`{"uname":"B","uid":7,"room_id":10,"timestamp":1,"gift_name":"rose","gift_num":"three","price":1,"paid":true}`)

	_, err := Normalize(event.TypeGift, payload)
	var malformed *MalformedEventError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want *MalformedEventError", err)
	}
	if malformed.Err == nil {
		t.Errorf("shape error should carry the decode error")
	}
}

func TestNormalizeUnknownKind(t *testing.T) {
	_, err := Normalize("follow", json.RawMessage(`{}`))
	var malformed *MalformedEventError
	if !errors.As(err, &malformed) {
		t.Fatalf("err = %v, want *MalformedEventError", err)
	}
}
