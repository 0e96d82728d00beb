// Package signing computes and checks HMAC-SHA256 signatures over request bodies.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Scheme is the Authorization scheme carrying a body signature.
const Scheme = "HMAC-SHA256"

type BodySigner struct {
	secretKey []byte
}

func NewBodySigner(secretKey string) *BodySigner {
	return &BodySigner{
		secretKey: []byte(secretKey),
	}
}

// Sign returns the hex-encoded HMAC-SHA256 of body.
func (s *BodySigner) Sign(body []byte) string {
	h := hmac.New(sha256.New, s.secretKey)
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// AuthorizationHeader returns the Authorization header value for body.
func (s *BodySigner) AuthorizationHeader(body []byte) string {
	return Scheme + " " + s.Sign(body)
}

// Verify reports whether signature matches body. The signature may be bare hex,
// "sha256=<hex>" or "HMAC-SHA256 <hex>"; hex case is ignored.
func (s *BodySigner) Verify(body []byte, signature string) bool {
	sig := strings.TrimSpace(signature)
	if rest, ok := cutPrefixFold(sig, Scheme+" "); ok {
		sig = strings.TrimSpace(rest)
	} else if rest, ok := cutPrefixFold(sig, "sha256="); ok {
		sig = rest
	}
	got, err := hex.DecodeString(sig)
	if err != nil || len(got) != sha256.Size {
		return false
	}
	h := hmac.New(sha256.New, s.secretKey)
	h.Write(body)
	return hmac.Equal(h.Sum(nil), got)
}

func cutPrefixFold(s, prefix string) (string, bool) {
	if len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix) {
		return s[len(prefix):], true
	}
	return s, false
}
