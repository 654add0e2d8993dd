package webhook

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const telnyxTolerance = 5 * time.Minute

// verifyPaystack checks x-paystack-signature, the hex HMAC-SHA512 of the raw
// body keyed with the secret key.
func verifyPaystack(secret string, body []byte, signature string) error {
	if secret == "" {
		return fmt.Errorf("paystack secret not configured")
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(got) == 0 {
		return fmt.Errorf("malformed paystack signature")
	}
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return fmt.Errorf("paystack signature mismatch")
	}
	return nil
}

// ParseTelnyxKey decodes the base64 ed25519 public key shown in the Telnyx
// portal. An empty key disables verification.
func ParseTelnyxKey(encoded string) (ed25519.PublicKey, error) {
	encoded = strings.TrimSpace(encoded)
	if encoded == "" {
		return nil, nil
	}
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode telnyx public key: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("telnyx public key has %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// verifyTelnyx checks telnyx-signature-ed25519 over "timestamp|body" and
// rejects timestamps outside the tolerance window.
func verifyTelnyx(key ed25519.PublicKey, body []byte, signature, timestamp string, now time.Time) error {
	if key == nil {
		return nil
	}
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("malformed telnyx signature")
	}
	ts, err := strconv.ParseInt(strings.TrimSpace(timestamp), 10, 64)
	if err != nil {
		return fmt.Errorf("malformed telnyx timestamp")
	}
	if d := now.Sub(time.Unix(ts, 0)); d > telnyxTolerance || d < -telnyxTolerance {
		return fmt.Errorf("telnyx timestamp outside tolerance")
	}

	msg := make([]byte, 0, len(timestamp)+1+len(body))
	msg = append(msg, strings.TrimSpace(timestamp)...)
	msg = append(msg, '|')
	msg = append(msg, body...)
	if !ed25519.Verify(key, msg, sig) {
		return fmt.Errorf("telnyx signature mismatch")
	}
	return nil
}
