// Package grant mints short-lived verification grants.
//
// A grant is the handoff between a successful ceremony and the external
// session service: it attests that a user finished biometric verification
// moments ago. It is not a session token; the session service exchanges it
// immediately and applies its own lifetime rules.
package grant

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/golang-jwt/jwt/v5"

	"github.com/shiftline/biometric/internal/platform/id"
)

// DefaultTTL bounds how long the session service has to redeem a grant.
const DefaultTTL = time.Minute

// grantEnv holds raw env values before post-parse validation.
type grantEnv struct {
	Issuer     string        `env:"SHIFTLINE_VERIFICATION_GRANT_ISSUER"`
	Audience   string        `env:"SHIFTLINE_VERIFICATION_GRANT_AUDIENCE"`
	PrivateKey string        `env:"SHIFTLINE_VERIFICATION_GRANT_PRIVATE_KEY"`
	TTL        time.Duration `env:"SHIFTLINE_VERIFICATION_GRANT_TTL" envDefault:"1m"`
}

// Config defines how verification grants are signed.
type Config struct {
	Issuer   string
	Audience string
	Key      ed25519.PrivateKey
	TTL      time.Duration
	Now      func() time.Time
}

// Claims captures what a minted grant asserts.
type Claims struct {
	UserID       string
	CompanyID    string
	CredentialID string
	ExpiresAt    time.Time
	IssuedAt     time.Time
	JWTID        string
}

// grantClaims is the internal claims type used for JWT signing.
type grantClaims struct {
	jwt.RegisteredClaims
	UserID       string `json:"user_id"`
	CompanyID    string `json:"company_id"`
	CredentialID string `json:"credential_id"`
}

// LoadConfigFromEnv reads grant signing configuration.
func LoadConfigFromEnv(now func() time.Time) (Config, error) {
	var raw grantEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse verification grant env: %w", err)
	}
	issuer := strings.TrimSpace(raw.Issuer)
	audience := strings.TrimSpace(raw.Audience)
	privateKey := strings.TrimSpace(raw.PrivateKey)
	if issuer == "" {
		return Config{}, fmt.Errorf("SHIFTLINE_VERIFICATION_GRANT_ISSUER is required")
	}
	if audience == "" {
		return Config{}, fmt.Errorf("SHIFTLINE_VERIFICATION_GRANT_AUDIENCE is required")
	}
	if privateKey == "" {
		return Config{}, fmt.Errorf("SHIFTLINE_VERIFICATION_GRANT_PRIVATE_KEY is required")
	}
	keyBytes, err := base64.StdEncoding.DecodeString(privateKey)
	if err != nil {
		return Config{}, fmt.Errorf("decode verification grant private key: %w", err)
	}
	if len(keyBytes) != ed25519.PrivateKeySize {
		return Config{}, fmt.Errorf("verification grant private key must be %d bytes", ed25519.PrivateKeySize)
	}
	ttl := raw.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return Config{
		Issuer:   issuer,
		Audience: audience,
		Key:      ed25519.PrivateKey(keyBytes),
		TTL:      ttl,
		Now:      now,
	}, nil
}

// Issuer mints verification grants after successful ceremonies.
type Issuer struct {
	config      Config
	idGenerator func() (string, error)
}

// NewIssuer builds a grant issuer from validated configuration.
func NewIssuer(config Config) (*Issuer, error) {
	if config.Issuer == "" || config.Audience == "" {
		return nil, fmt.Errorf("grant issuer and audience are required")
	}
	if len(config.Key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("grant signing key must be %d bytes", ed25519.PrivateKeySize)
	}
	if config.TTL <= 0 {
		config.TTL = DefaultTTL
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Issuer{config: config, idGenerator: id.NewID}, nil
}

// Issue signs a grant for the verified user.
func (i *Issuer) Issue(userID, companyID, credentialID string) (string, Claims, error) {
	if strings.TrimSpace(userID) == "" {
		return "", Claims{}, fmt.Errorf("user id is required")
	}

	jwtID, err := i.idGenerator()
	if err != nil {
		return "", Claims{}, fmt.Errorf("generate grant id: %w", err)
	}

	now := i.config.Now().UTC()
	expiresAt := now.Add(i.config.TTL)
	claims := grantClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    i.config.Issuer,
			Audience:  jwt.ClaimStrings{i.config.Audience},
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        jwtID,
		},
		UserID:       userID,
		CompanyID:    companyID,
		CredentialID: credentialID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	signed, err := token.SignedString(i.config.Key)
	if err != nil {
		return "", Claims{}, fmt.Errorf("sign verification grant: %w", err)
	}
	return signed, Claims{
		UserID:       userID,
		CompanyID:    companyID,
		CredentialID: credentialID,
		ExpiresAt:    expiresAt,
		IssuedAt:     now,
		JWTID:        jwtID,
	}, nil
}

// Verify validates a grant against the issuer's public key. The session
// service runs the same check on its side; this entry point keeps the token
// shape honest in tests.
func Verify(token string, publicKey ed25519.PublicKey, issuer, audience string, now func() time.Time) (Claims, error) {
	if now == nil {
		now = time.Now
	}

	var parsed grantClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(token *jwt.Token) (any, error) {
		return publicKey, nil
	},
		jwt.WithValidMethods([]string{"EdDSA"}),
		jwt.WithIssuer(issuer),
		jwt.WithAudience(audience),
		jwt.WithTimeFunc(func() time.Time { return now() }),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("parse verification grant: %w", err)
	}

	claims := Claims{
		UserID:       parsed.UserID,
		CompanyID:    parsed.CompanyID,
		CredentialID: parsed.CredentialID,
		JWTID:        parsed.ID,
	}
	if parsed.ExpiresAt != nil {
		claims.ExpiresAt = parsed.ExpiresAt.Time
	}
	if parsed.IssuedAt != nil {
		claims.IssuedAt = parsed.IssuedAt.Time
	}
	return claims, nil
}
