// Package webhook authenticates inbound provider deliveries before any payload is parsed.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingHeaders = errors.New("missing webhook headers")
	ErrStaleTimestamp = errors.New("webhook timestamp outside tolerance")
	ErrBadSignature   = errors.New("webhook signature mismatch")
)

// Verifier authenticates one delivery and returns its delivery id, which is empty
// when the provider sends none.
type Verifier interface {
	Verify(header http.Header, body []byte) (deliveryID string, err error)
}

// HeaderSet names the id, timestamp and signature headers of a Standard Webhooks sender.
type HeaderSet struct {
	ID        string
	Timestamp string
	Signature string
}

var (
	// StandardHeaders are sent by Polar and Dodo Payments.
	StandardHeaders = HeaderSet{ID: "webhook-id", Timestamp: "webhook-timestamp", Signature: "webhook-signature"}
	// SvixHeaders are sent by Clerk.
	SvixHeaders = HeaderSet{ID: "svix-id", Timestamp: "svix-timestamp", Signature: "svix-signature"}
)

const secretPrefix = "whsec_"

// StandardVerifier checks HMAC-SHA256 signatures over "{id}.{timestamp}.{body}".
type StandardVerifier struct {
	key       []byte
	headers   HeaderSet
	tolerance time.Duration
	now       func() time.Time
}

var _ Verifier = (*StandardVerifier)(nil)

// NewStandardVerifier accepts a "whsec_"-prefixed base64 secret or a raw string secret.
func NewStandardVerifier(secret string, headers HeaderSet, tolerance time.Duration) (*StandardVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("webhook secret is empty")
	}
	key := []byte(secret)
	if strings.HasPrefix(secret, secretPrefix) {
		decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(secret, secretPrefix))
		if err != nil {
			return nil, fmt.Errorf("decode webhook secret: %w", err)
		}
		key = decoded
	}
	if tolerance <= 0 {
		tolerance = 5 * time.Minute
	}
	return &StandardVerifier{
		key:       key,
		headers:   headers,
		tolerance: tolerance,
		now:       time.Now,
	}, nil
}

func (v *StandardVerifier) Verify(header http.Header, body []byte) (string, error) {
	id := strings.TrimSpace(header.Get(v.headers.ID))
	tsRaw := strings.TrimSpace(header.Get(v.headers.Timestamp))
	sigs := strings.TrimSpace(header.Get(v.headers.Signature))
	if id == "" || tsRaw == "" || sigs == "" {
		return "", ErrMissingHeaders
	}

	sec, err := strconv.ParseInt(tsRaw, 10, 64)
	if err != nil {
		return "", fmt.Errorf("%w: bad timestamp %q", ErrMissingHeaders, tsRaw)
	}
	ts := time.Unix(sec, 0)
	if skew := v.now().Sub(ts); skew > v.tolerance || skew < -v.tolerance {
		return "", ErrStaleTimestamp
	}

	expected := []byte(v.sign(id, tsRaw, body))
	for _, entry := range strings.Fields(sigs) {
		sig := entry
		if version, rest, ok := strings.Cut(entry, ","); ok {
			if version != "v1" {
				continue
			}
			sig = rest
		}
		if subtle.ConstantTimeCompare([]byte(sig), expected) == 1 {
			return id, nil
		}
	}
	return "", ErrBadSignature
}

// Sign returns the header value a sender would attach for this delivery.
func (v *StandardVerifier) Sign(id string, ts time.Time, body []byte) string {
	return "v1," + v.sign(id, strconv.FormatInt(ts.Unix(), 10), body)
}

func (v *StandardVerifier) sign(id, ts string, body []byte) string {
	mac := hmac.New(sha256.New, v.key)
	mac.Write([]byte(id))
	mac.Write([]byte{'.'})
	mac.Write([]byte(ts))
	mac.Write([]byte{'.'})
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

// SharedSecretVerifier compares a static secret sent as "Authorization: Bearer <secret>"
// or in the X-Webhook-Secret header.
type SharedSecretVerifier struct {
	secret []byte
}

var _ Verifier = (*SharedSecretVerifier)(nil)

func NewSharedSecretVerifier(secret string) (*SharedSecretVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("webhook secret is empty")
	}
	return &SharedSecretVerifier{secret: []byte(secret)}, nil
}

func (v *SharedSecretVerifier) Verify(header http.Header, _ []byte) (string, error) {
	got := strings.TrimSpace(header.Get("X-Webhook-Secret"))
	if got == "" {
		if auth := header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
			got = strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
		}
	}
	if got == "" {
		return "", ErrMissingHeaders
	}
	if subtle.ConstantTimeCompare([]byte(got), v.secret) != 1 {
		return "", ErrBadSignature
	}
	return strings.TrimSpace(header.Get(StandardHeaders.ID)), nil
}
