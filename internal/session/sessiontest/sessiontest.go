// Package sessiontest provides helpers for tests that need bearer tokens.
package sessiontest

import (
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testKey = []byte("edugate-test-signing-key-0123456789")

// Token signs an HS256 token expiring at exp. The signature is irrelevant to
// the client but keeps the token shaped like the real thing.
func Token(t testing.TB, subject string, exp time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		Issuer:    "edugate-test",
		IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(exp),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	require.NoError(t, err)

	return token
}

// TokenWithoutExpiry signs a token that has no exp claim.
func TokenWithoutExpiry(t testing.TB, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{Subject: subject}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testKey)
	require.NoError(t, err)

	return token
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock creates a clock frozen at now, truncated to whole seconds so it
// lines up with JWT NumericDate precision.
func NewClock(now time.Time) *Clock {
	return &Clock{now: now.Truncate(time.Second)}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set moves the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}
