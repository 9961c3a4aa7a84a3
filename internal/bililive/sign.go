package bililive

import (
	"crypto/hmac"
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"strings"
)

// The open platform authenticates REST calls with an HMAC-SHA256 signature
// over the x-bili-* headers, sorted by name and joined as "name:value" lines.
const (
	headerAccessKeyID      = "x-bili-accesskeyid"
	headerContentMD5       = "x-bili-content-md5"
	headerSignatureMethod  = "x-bili-signature-method"
	headerSignatureNonce   = "x-bili-signature-nonce"
	headerSignatureVersion = "x-bili-signature-version"
	headerTimestamp        = "x-bili-timestamp"

	signatureMethod  = "HMAC-SHA256"
	signatureVersion = "1.0"
)

// signHeaders builds the signed header set for one request body. nonce and
// ts are injected by the caller so tests stay deterministic.
func signHeaders(keyID, keySecret string, body []byte, nonce string, ts int64) http.Header {
	fields := [][2]string{
		{headerAccessKeyID, keyID},
		{headerContentMD5, contentMD5(body)},
		{headerSignatureMethod, signatureMethod},
		{headerSignatureNonce, nonce},
		{headerSignatureVersion, signatureVersion},
		{headerTimestamp, fmt.Sprintf("%d", ts)},
	}

	h := http.Header{}
	for _, f := range fields {
		h.Set(f[0], f[1])
	}
	h.Set("Authorization", signature(keySecret, fields))
	h.Set("Content-Type", "application/json")
	h.Set("Accept", "application/json")
	return h
}

// signingString joins the signed fields as "name:value" lines. The fields
// slice is already in lexicographic header-name order.
func signingString(fields [][2]string) string {
	lines := make([]string, len(fields))
	for i, f := range fields {
		lines[i] = f[0] + ":" + f[1]
	}
	return strings.Join(lines, "\n")
}

func signature(keySecret string, fields [][2]string) string {
	mac := hmac.New(sha256.New, []byte(keySecret))
	mac.Write([]byte(signingString(fields)))
	return hex.EncodeToString(mac.Sum(nil))
}

func contentMD5(body []byte) string {
	sum := md5.Sum(body)
	return hex.EncodeToString(sum[:])
}
