package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrInvalidSignature is returned when a webhook signature does not match
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMissingSecret is returned when no signing secret is configured
	ErrMissingSecret = errors.New("webhook secret not configured")
)

// retellTolerance bounds the age of a timestamped Retell signature
const retellTolerance = 5 * time.Minute

// Sign returns the hex HMAC-SHA256 of body under secret
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex HMAC-SHA256 signature over the raw body
func VerifySignature(body []byte, signature, secret string) error {
	if secret == "" {
		return ErrMissingSecret
	}
	provided := strings.ToLower(strings.TrimSpace(signature))
	if provided == "" {
		return ErrInvalidSignature
	}
	expected := Sign(body, secret)
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return ErrInvalidSignature
	}
	return nil
}

// VerifyRetellSignature accepts either a plain hex digest of the body or the
// timestamped "v=<unix ms>,d=<hex>" form, where the digest covers the body
// followed by the timestamp and the timestamp must be recent.
func VerifyRetellSignature(body []byte, signature, secret string, now time.Time) error {
	if secret == "" {
		return ErrMissingSecret
	}
	signature = strings.TrimSpace(signature)
	if !strings.HasPrefix(signature, "v=") {
		return VerifySignature(body, signature, secret)
	}

	var ts, digest string
	for _, part := range strings.Split(signature, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return ErrInvalidSignature
		}
		switch k {
		case "v":
			ts = v
		case "d":
			digest = v
		}
	}
	if ts == "" || digest == "" {
		return ErrInvalidSignature
	}

	ms, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := now.Sub(time.UnixMilli(ms))
	if age > retellTolerance || age < -retellTolerance {
		return ErrInvalidSignature
	}

	signed := make([]byte, 0, len(body)+len(ts))
	signed = append(signed, body...)
	signed = append(signed, ts...)
	return VerifySignature(signed, digest, secret)
}
