// Package verify parses authenticator responses and checks assertion
// signatures. It knows nothing about challenges, policies, or storage; the
// ceremony layer sequences those checks around it.
package verify

import (
	"crypto/sha256"
	"fmt"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/shiftline/biometric/internal/biometric/credential"
	"github.com/shiftline/biometric/internal/platform/errors"
)

// ErrSignatureInvalid reports an assertion whose signature does not verify
// against the enrolled public key.
var ErrSignatureInvalid = errors.New(errors.CodeSignatureInvalid, "assertion signature is invalid")

// Attestation is the device-agnostic view of a registration response.
type Attestation struct {
	CredentialID     string
	PublicKey        []byte
	SignatureCounter uint32
	Transports       []string
	Challenge        string
	Origin           string
	UserVerified     bool
}

// ParseAttestation decodes a credential creation response. The challenge and
// origin come back verbatim for the caller to match against the issued
// challenge; no trust decisions happen here.
func ParseAttestation(responseJSON []byte) (Attestation, error) {
	parsed, err := protocol.ParseCredentialCreationResponseBytes(responseJSON)
	if err != nil {
		return Attestation{}, fmt.Errorf("parse credential creation response: %w", err)
	}
	clientData := parsed.Response.CollectedClientData
	if clientData.Type != protocol.CreateCeremony {
		return Attestation{}, fmt.Errorf("unexpected client data type %q", clientData.Type)
	}

	authData := parsed.Response.AttestationObject.AuthData
	if len(authData.AttData.CredentialPublicKey) == 0 {
		return Attestation{}, fmt.Errorf("attestation has no credential public key")
	}
	if _, err := webauthncose.ParsePublicKey(authData.AttData.CredentialPublicKey); err != nil {
		return Attestation{}, fmt.Errorf("parse credential public key: %w", err)
	}

	transports := make([]string, 0, len(parsed.Response.Transports))
	for _, transport := range parsed.Response.Transports {
		transports = append(transports, string(transport))
	}

	return Attestation{
		CredentialID:     credential.EncodeID(parsed.RawID),
		PublicKey:        authData.AttData.CredentialPublicKey,
		SignatureCounter: authData.Counter,
		Transports:       transports,
		Challenge:        clientData.Challenge,
		Origin:           clientData.Origin,
		UserVerified:     authData.Flags.HasUserVerified(),
	}, nil
}

// Assertion is a parsed authentication response. VerifySignature is a
// separate step so callers can finish their challenge and ownership checks
// before touching the key.
type Assertion struct {
	CredentialID string
	Challenge    string
	Origin       string
	Counter      uint32
	UserHandle   string
	UserVerified bool

	rawAuthData    []byte
	clientDataJSON []byte
	signature      []byte
}

// ParseAssertion decodes a credential request response.
func ParseAssertion(responseJSON []byte) (Assertion, error) {
	parsed, err := protocol.ParseCredentialRequestResponseBytes(responseJSON)
	if err != nil {
		return Assertion{}, fmt.Errorf("parse credential request response: %w", err)
	}
	clientData := parsed.Response.CollectedClientData
	if clientData.Type != protocol.AssertCeremony {
		return Assertion{}, fmt.Errorf("unexpected client data type %q", clientData.Type)
	}

	return Assertion{
		CredentialID: credential.EncodeID(parsed.RawID),
		Challenge:    clientData.Challenge,
		Origin:       clientData.Origin,
		Counter:      parsed.Response.AuthenticatorData.Counter,
		UserHandle:   string(parsed.Response.UserHandle),
		UserVerified: parsed.Response.AuthenticatorData.Flags.HasUserVerified(),

		rawAuthData:    parsed.Raw.AssertionResponse.AuthenticatorData,
		clientDataJSON: parsed.Raw.AssertionResponse.ClientDataJSON,
		signature:      parsed.Response.Signature,
	}, nil
}

// VerifySignature checks the assertion signature against an enrolled COSE
// public key. The signed payload is the raw authenticator data followed by
// the SHA-256 hash of the client data JSON.
func (a Assertion) VerifySignature(publicKey []byte) error {
	key, err := webauthncose.ParsePublicKey(publicKey)
	if err != nil {
		return fmt.Errorf("parse enrolled public key: %w", err)
	}

	clientDataHash := sha256.Sum256(a.clientDataJSON)
	signed := make([]byte, 0, len(a.rawAuthData)+len(clientDataHash))
	signed = append(signed, a.rawAuthData...)
	signed = append(signed, clientDataHash[:]...)

	valid, err := webauthncose.VerifySignature(key, signed, a.signature)
	if err != nil {
		return errors.Wrap(errors.CodeSignatureInvalid, "verify assertion signature", err)
	}
	if !valid {
		return ErrSignatureInvalid
	}
	return nil
}

