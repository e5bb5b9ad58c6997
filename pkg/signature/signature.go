package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
	ErrMissingSignature = errors.New("missing signature")
	ErrInvalidFormat    = errors.New("invalid signature format")
)

const prefix = "sha256="

// Validate checks a GitHub webhook HMAC-SHA256 signature, as delivered in
// the X-Hub-Signature-256 header ("sha256=<hex>"), against the raw request
// body and the configured webhook secret.
func Validate(sig string, payload []byte, secret string) error {
	if sig == "" {
		return ErrMissingSignature
	}
	if !strings.HasPrefix(sig, prefix) {
		return ErrInvalidFormat
	}

	expected, err := hex.DecodeString(strings.TrimPrefix(sig, prefix))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)

	// Constant-time comparison.
	if !hmac.Equal(expected, mac.Sum(nil)) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the header value for a payload, used by tests and local
// webhook replay tooling.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return prefix + hex.EncodeToString(mac.Sum(nil))
}
