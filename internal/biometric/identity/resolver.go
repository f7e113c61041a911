// Package identity resolves login identifiers to user ids via the platform's
// user hub. The biometric core never owns user records; it only needs a user
// id to scope a ceremony before the caller is logged in.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shiftline/biometric/internal/platform/errors"
)

// ErrUserNotFound indicates no user exists for the given email.
var ErrUserNotFound = errors.New(errors.CodeNotFound, "user not found")

// Resolver maps an email address onto a user id.
type Resolver interface {
	ResolveEmail(ctx context.Context, email string) (string, error)
}

// Config points the resolver at the user hub service.
type Config struct {
	BaseURL string        `env:"SHIFTLINE_USERHUB_URL"     envDefault:"http://localhost:8091"`
	Timeout time.Duration `env:"SHIFTLINE_USERHUB_TIMEOUT" envDefault:"5s"`
}

// LoadConfigFromEnv returns resolver configuration with defaults.
func LoadConfigFromEnv() Config {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{BaseURL: "http://localhost:8091", Timeout: 5 * time.Second}
	}
	return cfg
}

// HTTPResolver resolves emails against the user hub's lookup endpoint.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

// NewHTTPResolver builds a resolver bound to the configured user hub.
func NewHTTPResolver(cfg Config) *HTTPResolver {
	client := &http.Client{Timeout: cfg.Timeout}
	return &HTTPResolver{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  client,
	}
}

type lookupResponse struct {
	UserID string `json:"user_id"`
}

// ResolveEmail returns the user id registered for the email address.
func (r *HTTPResolver) ResolveEmail(ctx context.Context, email string) (string, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return "", fmt.Errorf("email is required")
	}

	endpoint := r.baseURL + "/internal/users/lookup?email=" + url.QueryEscape(email)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build lookup request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("lookup user by email: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return "", ErrUserNotFound
	default:
		return "", fmt.Errorf("lookup user by email: unexpected status %d", resp.StatusCode)
	}

	var payload lookupResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode lookup response: %w", err)
	}
	if strings.TrimSpace(payload.UserID) == "" {
		return "", ErrUserNotFound
	}
	return payload.UserID, nil
}

var _ Resolver = (*HTTPResolver)(nil)
