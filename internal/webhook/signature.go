package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"calllog-dashboard/internal/apperrors"
)

var (
	errMissingSignature = apperrors.Unauthorized("Missing signature")
	errInvalidSignature = apperrors.Unauthorized("Invalid signature")
)

// SignatureHeader carries the platform's HMAC of the raw request body.
const SignatureHeader = "X-Elevenlabs-Signature"

const signaturePrefix = "sha256="

// Sign returns the header value for body under secret.
func Sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature reports whether claimed is the HMAC-SHA256 of body under secret.
// claimed may carry a "sha256=" prefix. Malformed hex is rejected.
func VerifySignature(body []byte, claimed, secret string) bool {
	claimed = strings.TrimSpace(claimed)
	claimed = strings.TrimPrefix(claimed, signaturePrefix)
	if claimed == "" || secret == "" {
		return false
	}
	want, err := hex.DecodeString(claimed)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), want)
}

// SignaturePolicy decides what to do with a request's signature header.
type SignaturePolicy struct {
	Secret string
	// Require rejects requests without a signature header.
	Require bool
}

// Check returns nil when the request should be accepted.
//
// Unsigned requests are accepted unless Require is set.
func (p SignaturePolicy) Check(body []byte, header string) error {
	if strings.TrimSpace(header) == "" {
		if p.Require {
			return errMissingSignature
		}
		return nil
	}
	if !VerifySignature(body, header, p.Secret) {
		return errInvalidSignature
	}
	return nil
}
