package job

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// SignatureHeader carries the HMAC digest of a callback or webhook body.
const SignatureHeader = "X-Webhook-Signature"

const signaturePrefix = "sha256="

var (
	// ErrMissingSignature is returned when a secret is configured but no signature was sent.
	ErrMissingSignature = errors.New("missing webhook signature")
	// ErrInvalidSignature is returned when the digest does not match the body.
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Sign returns the header value "sha256=<hex>" for body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifyResult describes how a signature check was satisfied.
type VerifyResult int

const (
	// VerifiedSignature means the digest matched.
	VerifiedSignature VerifyResult = iota
	// VerifiedNoSecret means no secret is configured and the body was accepted unchecked.
	VerifiedNoSecret
)

// Verify checks header against the exact received body. With no secret configured
// every body is accepted and VerifiedNoSecret is returned so callers can warn.
func Verify(body []byte, header, secret string) (VerifyResult, error) {
	if secret == "" {
		return VerifiedNoSecret, nil
	}
	header = strings.TrimSpace(header)
	if header == "" {
		return VerifiedSignature, ErrMissingSignature
	}
	got, err := hex.DecodeString(strings.TrimPrefix(header, signaturePrefix))
	if err != nil {
		return VerifiedSignature, ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(got, mac.Sum(nil)) {
		return VerifiedSignature, ErrInvalidSignature
	}
	return VerifiedSignature, nil
}
