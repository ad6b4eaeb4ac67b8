package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	// SignatureHeader carries the provider's HMAC of the raw request body.
	SignatureHeader = "X-Hub-Signature-256"
	signaturePrefix = "sha256="
)

// VerifySignature reports whether header is the sha256 HMAC of rawBody under
// secret. A missing header, wrong scheme or undecodable hex is simply false.
func VerifySignature(rawBody []byte, header, secret string) bool {
	if header == "" || !strings.HasPrefix(header, signaturePrefix) {
		return false
	}
	presented, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(rawBody)
	return hmac.Equal(presented, mac.Sum(nil))
}

// SignPayload returns the header value the provider would send for body.
func SignPayload(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}
