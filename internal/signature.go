package internal

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

const signaturePrefix = "sha256="

// SignBody returns the X-Hub-Signature-256 value for body: "sha256=" followed
// by the lowercase hex HMAC-SHA256 digest.
func SignBody(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	_, _ = mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether header is the signature of the raw body
// under secret. The comparison is constant time over the whole header value.
func VerifySignature(secret, body []byte, header string) bool {
	if header == "" {
		return false
	}
	expected := SignBody(secret, body)
	return hmac.Equal([]byte(expected), []byte(header))
}
