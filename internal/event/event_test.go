package event

import (
	"testing"

	json "github.com/goccy/go-json"
)

func TestUserIDPassthrough(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"number", `12345`, `12345`},
		{"string", `"abc-open-id"`, `"abc-open-id"`},
		{"null", `null`, `null`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var u UserID
			if err := json.Unmarshal([]byte(tt.in), &u); err != nil {
				t.Fatalf("unmarshal %q: %v", tt.in, err)
			}
			out, err := json.Marshal(u)
			if err != nil {
				t.Fatalf("marshal: %v", err)
			}
			if string(out) != tt.want {
				t.Errorf("round trip = %s, want %s", out, tt.want)
			}
		})
	}
}

func TestUserIDRejectsNonScalar(t *testing.T) {
	for _, in := range []string{`{}`, `[1]`, `true`} {
		var u UserID
		if err := json.Unmarshal([]byte(in), &u); err == nil {
			t.Errorf("unmarshal %q: expected error", in)
		}
	}
}

func TestMessageText(t *testing.T) {
	if got := (Message{Type: TypeDanmaku, Msg: "hi"}).Text(); got != "hi" {
		t.Errorf("danmaku text = %q, want %q", got, "hi")
	}
	if got := (Message{Type: TypeSuperChat, Message: "thanks"}).Text(); got != "thanks" {
		t.Errorf("superchat text = %q, want %q", got, "thanks")
	}
	if got := (Message{Type: TypeGift, GiftName: "rose"}).Text(); got != "" {
		t.Errorf("gift text = %q, want empty", got)
	}
}

func TestMessageJSONOmitsOtherVariants(t *testing.T) {
	m := Message{
		Type:      TypeDanmaku,
		UName:     "A",
		UID:       UserIDFromInt(1),
		RoomID:    10,
		Timestamp: 1000,
		Msg:       "hi",
	}
	b, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"gift_name", "gift_num", "paid", "price", "guard_level", "guard_name", "message", "rmb"} {
		if _, ok := decoded[key]; ok {
			t.Errorf("danmaku message unexpectedly carries %q", key)
		}
	}
	if decoded["msg"] != "hi" || decoded["type"] != TypeDanmaku {
		t.Errorf("unexpected payload: %s", b)
	}
}

func TestMessageJSONKeepsZeroAmounts(t *testing.T) {
	paid := false
	free := 0.0
	b, err := json.Marshal(Message{
		Type:      TypeGift,
		UName:     "B",
		UID:       UserIDFromInt(7),
		RoomID:    10,
		Timestamp: 1,
		GiftName:  "heart",
		GiftNum:   1,
		Paid:      &paid,
		Price:     &free,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if v, ok := decoded["price"]; !ok || v != float64(0) {
		t.Errorf("price = %v (present %v), want explicit 0", v, ok)
	}
	if v, ok := decoded["paid"]; !ok || v != false {
		t.Errorf("paid = %v (present %v), want explicit false", v, ok)
	}
}
