// Package storage defines persistence contracts for the biometric subsystem.
package storage

import (
	"context"
	"time"

	"github.com/shiftline/biometric/internal/biometric/challenge"
	"github.com/shiftline/biometric/internal/biometric/credential"
	"github.com/shiftline/biometric/internal/biometric/policy"
	"github.com/shiftline/biometric/internal/platform/errors"
)

// ErrNotFound indicates a requested record is missing.
var ErrNotFound = errors.New(errors.CodeNotFound, "record not found")

// ErrCredentialNotFound indicates the credential id is not enrolled.
var ErrCredentialNotFound = errors.New(errors.CodeCredentialNotFound, "credential not found")

// ErrChallengeNotFound indicates no challenge exists for the given id.
var ErrChallengeNotFound = errors.New(errors.CodeChallengeNotFound, "challenge not found")

// ErrChallengeExpired indicates the challenge outlived its ttl before consumption.
var ErrChallengeExpired = errors.New(errors.CodeChallengeExpired, "challenge expired")

// ErrChallengeAlreadyConsumed indicates a second consumption attempt.
var ErrChallengeAlreadyConsumed = errors.New(errors.CodeChallengeAlreadyConsumed, "challenge already consumed")

// ErrDuplicateCredential indicates the credential id is already enrolled.
var ErrDuplicateCredential = errors.New(errors.CodeDuplicateCredential, "credential id already enrolled")

// ErrCounterRegression indicates a reported signature counter did not advance.
var ErrCounterRegression = errors.New(errors.CodeCounterRegression, "signature counter regressed")

// ErrNotOwner indicates the caller does not own the credential.
var ErrNotOwner = errors.New(errors.CodeNotOwner, "credential belongs to another user")

// ChallengeStore persists single-use ceremony challenges.
type ChallengeStore interface {
	PutChallenge(ctx context.Context, c challenge.Challenge) error
	GetChallenge(ctx context.Context, challengeID string) (challenge.Challenge, error)

	// ConsumeChallenge claims the challenge for exactly one ceremony attempt.
	// The claim is a conditional write: of any number of concurrent callers at
	// most one receives the challenge, the rest fail with
	// ErrChallengeAlreadyConsumed. A challenge found expired is burned too and
	// reported as ErrChallengeExpired.
	ConsumeChallenge(ctx context.Context, challengeID string, now time.Time) (challenge.Challenge, error)

	DeleteExpiredChallenges(ctx context.Context, now time.Time) error
}

// CredentialStore persists enrolled authenticator credentials.
type CredentialStore interface {
	// AddCredential enrolls a credential. Credential ids are globally unique
	// across all users; a colliding id fails with ErrDuplicateCredential.
	AddCredential(ctx context.Context, c credential.Credential) error

	// GetCredential fetches a credential by id, failing with
	// ErrCredentialNotFound when the id is not enrolled.
	GetCredential(ctx context.Context, credentialID string) (credential.Credential, error)

	// ListCredentialsByUser returns the user's credentials ordered by
	// CreatedAt ascending.
	ListCredentialsByUser(ctx context.Context, userID string) ([]credential.Credential, error)

	// UpdateCredentialCounter advances the signature counter and stamps
	// LastUsedAt. The write is a compare-and-set: a reported counter that does
	// not advance a nonzero stored counter fails with ErrCounterRegression.
	// Two zero counters are accepted, because some authenticators never
	// increment.
	UpdateCredentialCounter(ctx context.Context, credentialID string, newCounter uint32, usedAt time.Time) error

	// RenameCredential updates the owner-chosen device label.
	RenameCredential(ctx context.Context, userID, credentialID, deviceName string) error

	// RemoveCredential deletes the credential. Fails with ErrNotOwner when the
	// credential exists but belongs to another user, and with
	// ErrCredentialNotFound when it does not exist at all.
	RemoveCredential(ctx context.Context, userID, credentialID string) error
}

// PolicyStore reads company biometric policies. Writes are owned by the
// company-settings service; Put exists for that collaborator and for seeding.
type PolicyStore interface {
	PutCompanyPolicy(ctx context.Context, p policy.CompanyBiometricPolicy) error
	GetCompanyPolicy(ctx context.Context, companyID string) (policy.CompanyBiometricPolicy, error)
}
