package transport

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"strings"
)

const (
	HeaderSignature   = "X-Hub-Signature-256"
	HeaderDeliveryID  = "X-Hook-Delivery"
	HeaderEventType   = "X-Hook-Event"
	SignaturePrefix   = "sha256="
	contentTypeJSON   = "application/json"
	headerContentType = "Content-Type"
	headerUserAgent   = "User-Agent"
)

// Sign returns the X-Hub-Signature-256 value for body.
func Sign(secret string, body []byte) string {
	return SignaturePrefix + hex.EncodeToString(computeHMAC(secret, body))
}

// Verify checks a signature header against body. The sha256= prefix is
// optional and the digest may be hex or base64 encoded.
func Verify(secret string, body []byte, header string) bool {
	if secret == "" {
		return false
	}
	signature := strings.TrimSpace(header)
	if signature == "" {
		return false
	}
	if strings.HasPrefix(strings.ToLower(signature), SignaturePrefix) {
		signature = signature[len(SignaturePrefix):]
	}
	provided, ok := decodeSignature(signature)
	if !ok {
		return false
	}
	expected := computeHMAC(secret, body)
	return subtle.ConstantTimeCompare(provided, expected) == 1
}

func computeHMAC(secret string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return mac.Sum(nil)
}

func decodeSignature(value string) ([]byte, bool) {
	if decoded, err := hex.DecodeString(value); err == nil {
		return decoded, true
	}
	if decoded, err := base64.StdEncoding.DecodeString(value); err == nil {
		return decoded, true
	}
	return nil, false
}
