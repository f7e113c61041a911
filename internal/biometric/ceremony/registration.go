package ceremony

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/shiftline/biometric/internal/biometric/challenge"
	"github.com/shiftline/biometric/internal/biometric/credential"
	"github.com/shiftline/biometric/internal/biometric/policy"
	"github.com/shiftline/biometric/internal/biometric/storage"
	"github.com/shiftline/biometric/internal/platform/errors"
)

// RegistrationStart is the outcome of BeginRegistration. The existing
// credential ids let the client steer the authenticator away from
// re-registering the same device; that exclusion is informational, not a
// security boundary.
type RegistrationStart struct {
	Challenge             IssuedChallenge
	ExistingCredentialIDs []string
}

// BeginRegistration issues a registration challenge for the user.
func (s *Service) BeginRegistration(ctx context.Context, userID string) (RegistrationStart, error) {
	ctx, span := s.tracer.Start(ctx, "ceremony.begin_registration")
	defer span.End()

	if strings.TrimSpace(userID) == "" {
		return RegistrationStart{}, errors.New(errors.CodeUnknown, "user id is required")
	}

	existing, err := s.credentials.ListCredentialsByUser(ctx, userID)
	if err != nil {
		return RegistrationStart{}, err
	}
	existingIDs := make([]string, 0, len(existing))
	for _, c := range existing {
		existingIDs = append(existingIDs, c.ID)
	}

	issued, err := challenge.New(challenge.PurposeRegistration, userID, s.config.ChallengeTTL, s.clock(), s.idGenerator)
	if err != nil {
		return RegistrationStart{}, err
	}
	if err := s.challenges.PutChallenge(ctx, issued); err != nil {
		return RegistrationStart{}, err
	}

	return RegistrationStart{
		Challenge: IssuedChallenge{
			ID:        issued.ID,
			Nonce:     issued.Nonce,
			ExpiresAt: issued.ExpiresAt,
		},
		ExistingCredentialIDs: existingIDs,
	}, nil
}

// RegistrationInput carries the parsed authenticator response for
// CompleteRegistration. Nonce and Origin are the values the authenticator
// echoed back inside the signed client data.
type RegistrationInput struct {
	ChallengeID  string
	Origin       string
	Nonce        string
	CredentialID string
	PublicKey    []byte
	DeviceName   string
	DeviceType   credential.DeviceType
	Transports   []string
	CompanyID    string
}

// CompleteRegistration consumes the challenge and enrolls the credential.
//
// Checks run in a fixed order: consume, challenge binding, origin, company
// device-type policy, registry insert. The challenge is burned on every
// attempt regardless of outcome.
func (s *Service) CompleteRegistration(ctx context.Context, input RegistrationInput) (credential.Credential, error) {
	ctx, span := s.tracer.Start(ctx, "ceremony.complete_registration")
	defer span.End()

	now := s.clock().UTC()
	consumed, err := s.challenges.ConsumeChallenge(ctx, input.ChallengeID, now)
	if err != nil {
		return credential.Credential{}, err
	}
	if consumed.Purpose != challenge.PurposeRegistration {
		return credential.Credential{}, errors.New(errors.CodeChallengeMismatch, "challenge was not issued for registration")
	}
	if input.Nonce == "" || input.Nonce != consumed.Nonce {
		return credential.Credential{}, errors.New(errors.CodeChallengeMismatch, "response does not echo the issued challenge")
	}
	if !s.config.originAllowed(input.Origin) {
		return credential.Credential{}, errors.WithMetadata(errors.CodeOriginMismatch, "response origin is not an application origin", map[string]string{
			"origin": input.Origin,
		})
	}
	if !input.DeviceType.Valid() {
		return credential.Credential{}, errors.WithMetadata(errors.CodeDeviceTypeNotSupported, "unknown device type", map[string]string{
			"device_type": string(input.DeviceType),
		})
	}
	companyPolicy, err := s.companyPolicy(ctx, input.CompanyID)
	if err != nil {
		return credential.Credential{}, err
	}
	if !companyPolicy.AllowsDeviceType(input.DeviceType) {
		return credential.Credential{}, errors.WithMetadata(errors.CodeDeviceTypeNotSupported, "company policy does not allow this device type", map[string]string{
			"device_type": string(input.DeviceType),
			"company_id":  input.CompanyID,
		})
	}

	enrolled := credential.Credential{
		ID:               input.CredentialID,
		UserID:           consumed.SubjectHint,
		PublicKey:        input.PublicKey,
		SignatureCounter: 0,
		DeviceName:       input.DeviceName,
		DeviceType:       input.DeviceType,
		Transports:       input.Transports,
		CreatedAt:        now,
	}
	if err := s.credentials.AddCredential(ctx, enrolled); err != nil {
		return credential.Credential{}, err
	}
	return enrolled, nil
}

// companyPolicy loads the company policy, falling back to the default for
// companies that never saved one.
func (s *Service) companyPolicy(ctx context.Context, companyID string) (policy.CompanyBiometricPolicy, error) {
	found, err := s.policies.GetCompanyPolicy(ctx, companyID)
	if err != nil {
		if stderrors.Is(err, storage.ErrNotFound) {
			return policy.Default(companyID), nil
		}
		return policy.CompanyBiometricPolicy{}, err
	}
	return found, nil
}
