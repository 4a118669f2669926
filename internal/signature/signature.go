// Package signature verifies sender authenticity of inbound webhooks.
//
// The signature covers the exact raw request bytes. Callers must capture
// the body before any JSON decoding; re-serialization is not guaranteed
// to be byte-identical to what the sender signed.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Prefix is the literal scheme prefix carried in the signature header.
const Prefix = "sha256="

// Compute returns the hex-encoded HMAC-SHA256 of body under secret.
func Compute(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature header of the form "sha256=<hex>" against body.
// It returns false when the header is absent, the secret is unset, the
// prefix is wrong, or the digest does not match. Comparison is constant-time.
func Verify(body []byte, header, secret string) bool {
	if secret == "" || header == "" {
		return false
	}
	if !strings.HasPrefix(header, Prefix) {
		return false
	}
	expected := Compute(secret, body)
	return hmac.Equal([]byte(expected), []byte(header[len(Prefix):]))
}
