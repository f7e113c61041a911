// Package ceremony orchestrates biometric registration and authentication.
//
// A ceremony is driven by single-use challenges: begin issues one, complete
// consumes it and runs the remaining checks in a fixed order. Every complete
// attempt burns its challenge, so a failed verification cannot be retried
// against the same nonce.
package ceremony

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/shiftline/biometric/internal/biometric/grant"
	"github.com/shiftline/biometric/internal/biometric/identity"
	"github.com/shiftline/biometric/internal/biometric/storage"
	"github.com/shiftline/biometric/internal/platform/errors"
	"github.com/shiftline/biometric/internal/platform/id"
)

// Dependencies wires the collaborators a Service needs. Grants and Resolver
// are optional; without a resolver email subject hints are rejected, and
// without a grant issuer authentication results carry no grant token.
type Dependencies struct {
	Challenges  storage.ChallengeStore
	Credentials storage.CredentialStore
	Policies    storage.PolicyStore
	Resolver    identity.Resolver
	Grants      *grant.Issuer

	Clock       func() time.Time
	IDGenerator func() (string, error)
}

// Service runs registration and authentication ceremonies.
type Service struct {
	config      Config
	challenges  storage.ChallengeStore
	credentials storage.CredentialStore
	policies    storage.PolicyStore
	resolver    identity.Resolver
	grants      *grant.Issuer
	clock       func() time.Time
	idGenerator func() (string, error)
	tracer      trace.Tracer
}

// New builds a ceremony service.
func New(config Config, deps Dependencies) (*Service, error) {
	if deps.Challenges == nil {
		return nil, errors.New(errors.CodeUnknown, "challenge store is required")
	}
	if deps.Credentials == nil {
		return nil, errors.New(errors.CodeUnknown, "credential store is required")
	}
	if deps.Policies == nil {
		return nil, errors.New(errors.CodeUnknown, "policy store is required")
	}
	if len(config.RPOrigins) == 0 {
		return nil, errors.New(errors.CodeUnknown, "at least one application origin is required")
	}
	config.ChallengeTTL = clampChallengeTTL(config.ChallengeTTL)

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGenerator := deps.IDGenerator
	if idGenerator == nil {
		idGenerator = id.NewID
	}

	return &Service{
		config:      config,
		challenges:  deps.Challenges,
		credentials: deps.Credentials,
		policies:    deps.Policies,
		resolver:    deps.Resolver,
		grants:      deps.Grants,
		clock:       clock,
		idGenerator: idGenerator,
		tracer:      otel.Tracer("biometric/ceremony"),
	}, nil
}

// IssuedChallenge is the client-facing view of a freshly issued challenge.
type IssuedChallenge struct {
	ID        string
	Nonce     string
	ExpiresAt time.Time
}
