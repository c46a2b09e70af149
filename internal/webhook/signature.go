package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrInvalidSignature is returned when a delivery's signature does not match
// the HMAC-SHA256 digest of its raw body.
var ErrInvalidSignature = errors.New("webhook: signature verification failed")

// VerifySignature checks the provided signature header against an
// HMAC-SHA256 hex digest of the raw body, using a constant-time comparison.
// A "sha256=" prefix on the header is tolerated.
func VerifySignature(secret string, body []byte, provided string) error {
	provided = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(provided), "sha256="))
	if provided == "" {
		return ErrInvalidSignature
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(provided))) {
		return ErrInvalidSignature
	}
	return nil
}
