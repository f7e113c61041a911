// Package challenge models single-use ceremony challenges.
package challenge

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"
)

// NonceSize is the number of random bytes behind each challenge nonce.
const NonceSize = 32

// Purpose binds a challenge to one ceremony kind.
type Purpose string

const (
	PurposeRegistration   Purpose = "registration"
	PurposeAuthentication Purpose = "authentication"
)

// Valid reports whether the purpose is a known ceremony kind.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeRegistration, PurposeAuthentication:
		return true
	}
	return false
}

// Challenge is a single-use nonce issued for one ceremony attempt. The nonce
// is base64url without padding, ready for the client to echo back.
type Challenge struct {
	ID          string
	Purpose     Purpose
	SubjectHint string
	Nonce       string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConsumedAt  *time.Time
}

// Usable reports whether the challenge can still be consumed at the given
// instant.
func (c Challenge) Usable(now time.Time) bool {
	if c.ConsumedAt != nil {
		return false
	}
	return !now.After(c.ExpiresAt)
}

// New issues a challenge with a fresh nonce and id. The ttl is relative to
// now; callers inject both the clock value and the id generator.
func New(purpose Purpose, subjectHint string, ttl time.Duration, now time.Time, idGenerator func() (string, error)) (Challenge, error) {
	if !purpose.Valid() {
		return Challenge{}, fmt.Errorf("unknown challenge purpose %q", purpose)
	}
	if ttl <= 0 {
		return Challenge{}, fmt.Errorf("challenge ttl must be positive")
	}
	if idGenerator == nil {
		return Challenge{}, fmt.Errorf("id generator is required")
	}

	challengeID, err := idGenerator()
	if err != nil {
		return Challenge{}, fmt.Errorf("generate challenge id: %w", err)
	}
	nonce, err := NewNonce()
	if err != nil {
		return Challenge{}, err
	}

	issuedAt := now.UTC()
	return Challenge{
		ID:          challengeID,
		Purpose:     purpose,
		SubjectHint: subjectHint,
		Nonce:       nonce,
		CreatedAt:   issuedAt,
		ExpiresAt:   issuedAt.Add(ttl),
	}, nil
}

// NewNonce returns a fresh base64url nonce from the system entropy source.
func NewNonce() (string, error) {
	raw := make([]byte, NonceSize)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate challenge nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}
