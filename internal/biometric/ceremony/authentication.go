package ceremony

import (
	"context"
	"strings"

	"github.com/shiftline/biometric/internal/biometric/challenge"
	"github.com/shiftline/biometric/internal/platform/errors"
)

// AuthenticationStart is the outcome of BeginAuthentication.
type AuthenticationStart struct {
	Challenge            IssuedChallenge
	AllowedCredentialIDs []string
}

// BeginAuthentication issues an authentication challenge. The subject hint is
// a user id, or an email resolved through the identity resolver. A user with
// zero enrolled credentials gets NoCredentialsEnrolled instead of a pointless
// challenge.
func (s *Service) BeginAuthentication(ctx context.Context, subjectHint string) (AuthenticationStart, error) {
	ctx, span := s.tracer.Start(ctx, "ceremony.begin_authentication")
	defer span.End()

	subject := strings.TrimSpace(subjectHint)
	if subject == "" {
		return AuthenticationStart{}, errors.New(errors.CodeUnknown, "subject hint is required")
	}
	if strings.Contains(subject, "@") {
		if s.resolver == nil {
			return AuthenticationStart{}, errors.New(errors.CodeUnknown, "email subjects require an identity resolver")
		}
		userID, err := s.resolver.ResolveEmail(ctx, subject)
		if err != nil {
			return AuthenticationStart{}, err
		}
		subject = userID
	}

	enrolled, err := s.credentials.ListCredentialsByUser(ctx, subject)
	if err != nil {
		return AuthenticationStart{}, err
	}
	if len(enrolled) == 0 {
		return AuthenticationStart{}, errors.New(errors.CodeNoCredentialsEnrolled, "no biometric credentials enrolled")
	}
	allowedIDs := make([]string, 0, len(enrolled))
	for _, c := range enrolled {
		allowedIDs = append(allowedIDs, c.ID)
	}

	issued, err := challenge.New(challenge.PurposeAuthentication, subject, s.config.ChallengeTTL, s.clock(), s.idGenerator)
	if err != nil {
		return AuthenticationStart{}, err
	}
	if err := s.challenges.PutChallenge(ctx, issued); err != nil {
		return AuthenticationStart{}, err
	}

	return AuthenticationStart{
		Challenge: IssuedChallenge{
			ID:        issued.ID,
			Nonce:     issued.Nonce,
			ExpiresAt: issued.ExpiresAt,
		},
		AllowedCredentialIDs: allowedIDs,
	}, nil
}

// AuthenticationInput carries the parsed assertion for
// CompleteAuthentication. Verify runs the external signature check against
// the stored public key; it is called only after the challenge, subject, and
// ownership checks pass.
type AuthenticationInput struct {
	ChallengeID     string
	Origin          string
	Nonce           string
	CredentialID    string
	ReportedCounter uint32
	Verify          func(publicKey []byte) error
	CompanyID       string
}

// AuthenticationResult reports a verified user. Grant is set when the service
// has a grant issuer; the external session service exchanges it for an
// application session.
type AuthenticationResult struct {
	UserID       string
	CredentialID string
	Grant        string
}

// CompleteAuthentication consumes the challenge and verifies the assertion.
//
// Checks run in a fixed order: consume, challenge binding, origin, credential
// lookup, subject match, signature, counter compare-and-set. The counter
// never moves before the signature check passes, and a regression surfaces to
// the caller without revoking the credential.
func (s *Service) CompleteAuthentication(ctx context.Context, input AuthenticationInput) (AuthenticationResult, error) {
	ctx, span := s.tracer.Start(ctx, "ceremony.complete_authentication")
	defer span.End()

	now := s.clock().UTC()
	consumed, err := s.challenges.ConsumeChallenge(ctx, input.ChallengeID, now)
	if err != nil {
		return AuthenticationResult{}, err
	}
	if consumed.Purpose != challenge.PurposeAuthentication {
		return AuthenticationResult{}, errors.New(errors.CodeChallengeMismatch, "challenge was not issued for authentication")
	}
	if input.Nonce == "" || input.Nonce != consumed.Nonce {
		return AuthenticationResult{}, errors.New(errors.CodeChallengeMismatch, "response does not echo the issued challenge")
	}
	if !s.config.originAllowed(input.Origin) {
		return AuthenticationResult{}, errors.WithMetadata(errors.CodeOriginMismatch, "response origin is not an application origin", map[string]string{
			"origin": input.Origin,
		})
	}

	used, err := s.credentials.GetCredential(ctx, input.CredentialID)
	if err != nil {
		return AuthenticationResult{}, err
	}
	if used.UserID != consumed.SubjectHint {
		return AuthenticationResult{}, errors.New(errors.CodeCredentialSubjectMismatch, "credential belongs to a different subject")
	}

	if input.Verify == nil {
		return AuthenticationResult{}, errors.New(errors.CodeSignatureInvalid, "no signature verification result")
	}
	if err := input.Verify(used.PublicKey); err != nil {
		if errors.CodeOf(err) == errors.CodeSignatureInvalid {
			return AuthenticationResult{}, err
		}
		return AuthenticationResult{}, errors.Wrap(errors.CodeSignatureInvalid, "assertion signature rejected", err)
	}

	if err := s.credentials.UpdateCredentialCounter(ctx, used.ID, input.ReportedCounter, now); err != nil {
		return AuthenticationResult{}, err
	}

	result := AuthenticationResult{UserID: used.UserID, CredentialID: used.ID}
	if s.grants != nil {
		token, _, err := s.grants.Issue(used.UserID, input.CompanyID, used.ID)
		if err != nil {
			return AuthenticationResult{}, err
		}
		result.Grant = token
	}
	return result, nil
}
