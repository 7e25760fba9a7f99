package session

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/mr-tron/base58"
)

// ErrMalformedToken is returned when a token has no decodable payload or the
// payload carries no expiry claim.
var ErrMalformedToken = errors.New("malformed token")

// Claims is the subset of the bearer token payload the client cares about.
// The signature is never checked here; that is the data service's job.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role,omitempty"`
}

// DecodeExpiry extracts the exp claim from a bearer token without verifying it.
func DecodeExpiry(token string) (time.Time, error) {
	if token == "" {
		return time.Time{}, fmt.Errorf("%w: empty token", ErrMalformedToken)
	}

	parser := jwt.NewParser()
	parsed, _, err := parser.ParseUnverified(token, &Claims{})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("%w: missing exp claim", ErrMalformedToken)
	}

	return exp.Time, nil
}

// Fingerprint returns a short, log-safe identifier for a token
// (Base58-encoded SHA256, truncated).
func Fingerprint(token string) string {
	if token == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(token))
	fp := base58.Encode(hash[:])
	return fp[:12]
}
