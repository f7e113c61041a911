// Package httpapi exposes the biometric subsystem over HTTP JSON endpoints.
//
// Caller identity arrives in headers set by the platform's session layer
// after transport authentication; this service trusts them. Authentication
// option and verify endpoints are reachable without a user header because
// they run before a session exists.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/shiftline/biometric/internal/biometric/ceremony"
	"github.com/shiftline/biometric/internal/biometric/storage"
)

// Headers carrying caller identity from the platform session layer.
const (
	headerUserID    = "X-Shiftline-User-Id"
	headerCompanyID = "X-Shiftline-Company-Id"
	headerRole      = "X-Shiftline-Role"
)

// Server hosts the biometric HTTP endpoints.
type Server struct {
	ceremonies  *ceremony.Service
	challenges  storage.ChallengeStore
	credentials storage.CredentialStore
	policies    storage.PolicyStore
	clock       func() time.Time
	tracer      trace.Tracer
}

// NewServer builds a biometric API server bound to the ceremony service and
// backing stores.
func NewServer(ceremonies *ceremony.Service, challenges storage.ChallengeStore, credentials storage.CredentialStore, policies storage.PolicyStore) *Server {
	return &Server{
		ceremonies:  ceremonies,
		challenges:  challenges,
		credentials: credentials,
		policies:    policies,
		clock:       time.Now,
		tracer:      otel.Tracer("biometric/httpapi"),
	}
}

// RegisterRoutes registers biometric HTTP endpoints on the provided mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) error {
	if mux == nil {
		return nil
	}

	mux.HandleFunc("/biometric/registration/options", s.traced("registration_options", s.handleRegistrationOptions))
	mux.HandleFunc("/biometric/registration/verify", s.traced("registration_verify", s.handleRegistrationVerify))
	mux.HandleFunc("/biometric/authentication/options", s.traced("authentication_options", s.handleAuthenticationOptions))
	mux.HandleFunc("/biometric/authentication/verify", s.traced("authentication_verify", s.handleAuthenticationVerify))
	mux.HandleFunc("/biometric/credentials", s.traced("credentials", s.handleCredentials))
	mux.HandleFunc("/biometric/credentials/", s.traced("credential", s.handleCredentialByID))
	mux.HandleFunc("/biometric/policy", s.traced("policy", s.handlePolicy))
	mux.HandleFunc("/biometric/device-support", s.traced("device_support", s.handleDeviceSupport))
	mux.HandleFunc("/up", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	return nil
}

// StartCleanup starts periodic expiry cleanup for unconsumed challenges.
//
// Consumed challenges are claimed in place and expired ones are swept here,
// so short-lived ceremony state never needs a separate maintenance process.
func (s *Server) StartCleanup(ctx context.Context, interval time.Duration) {
	if s == nil || s.challenges == nil || interval <= 0 {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				_ = s.challenges.DeleteExpiredChallenges(ctx, s.clock().UTC())
			}
		}
	}()
}

func (s *Server) traced(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := s.tracer.Start(r.Context(), "biometric.http."+name)
		defer span.End()
		handler(w, r.WithContext(ctx))
	}
}
