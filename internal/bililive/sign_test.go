package bililive

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestSigningStringLayout(t *testing.T) {
	h := signHeaders("key-id", "key-secret", []byte(`{"app_id":1}`), "nonce-1", 1700000000)

	want := map[string]string{
		headerAccessKeyID:      "key-id",
		headerSignatureMethod:  "HMAC-SHA256",
		headerSignatureNonce:   "nonce-1",
		headerSignatureVersion: "1.0",
		headerTimestamp:        "1700000000",
	}
	for name, value := range want {
		if got := h.Get(name); got != value {
			t.Errorf("%s = %q, want %q", name, got, value)
		}
	}
	if h.Get(headerContentMD5) == "" {
		t.Error("content md5 header missing")
	}
	if h.Get("Content-Type") != "application/json" {
		t.Errorf("Content-Type = %q", h.Get("Content-Type"))
	}
}

func TestAuthorizationIsHMACOverSortedHeaders(t *testing.T) {
	body := []byte(`{"code":"xyz","app_id":123}`)
	h := signHeaders("key-id", "key-secret", body, "nonce-1", 1700000000)

	canonical := headerAccessKeyID + ":key-id\n" +
		headerContentMD5 + ":" + h.Get(headerContentMD5) + "\n" +
		headerSignatureMethod + ":HMAC-SHA256\n" +
		headerSignatureNonce + ":nonce-1\n" +
		headerSignatureVersion + ":1.0\n" +
		headerTimestamp + ":1700000000"

	mac := hmac.New(sha256.New, []byte("key-secret"))
	mac.Write([]byte(canonical))
	want := hex.EncodeToString(mac.Sum(nil))

	if got := h.Get("Authorization"); got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
}

func TestSignatureDeterministicAndKeyed(t *testing.T) {
	body := []byte(`{}`)

	a := signHeaders("id", "secret", body, "n", 1).Get("Authorization")
	b := signHeaders("id", "secret", body, "n", 1).Get("Authorization")
	if a != b {
		t.Error("same inputs produced different signatures")
	}

	c := signHeaders("id", "other-secret", body, "n", 1).Get("Authorization")
	if a == c {
		t.Error("different secrets produced the same signature")
	}

	d := signHeaders("id", "secret", body, "other-nonce", 1).Get("Authorization")
	if a == d {
		t.Error("different nonces produced the same signature")
	}
}
