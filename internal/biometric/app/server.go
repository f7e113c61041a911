// Package app assembles the biometric service: storage, ceremonies, and the
// HTTP API, with lifecycle management for serving and shutdown.
package app

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shiftline/biometric/internal/biometric/api/httpapi"
	"github.com/shiftline/biometric/internal/biometric/ceremony"
	"github.com/shiftline/biometric/internal/biometric/grant"
	"github.com/shiftline/biometric/internal/biometric/identity"
	"github.com/shiftline/biometric/internal/biometric/storage/sqlite"
	"github.com/shiftline/biometric/internal/platform/otel"
)

const challengeCleanupInterval = time.Minute

// Server hosts the biometric HTTP service.
type Server struct {
	listener   net.Listener
	httpServer *http.Server
	store      *sqlite.Store
	api        *httpapi.Server
}

// New creates a configured biometric server listening on the provided
// address.
func New(httpAddr string) (*Server, error) {
	listener, err := net.Listen("tcp", httpAddr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", httpAddr, err)
	}
	store, err := openStore()
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	deps := ceremony.Dependencies{
		Challenges:  store,
		Credentials: store,
		Policies:    store,
	}
	if resolver := buildResolver(); resolver != nil {
		deps.Resolver = resolver
	}
	issuer, err := buildGrantIssuer()
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, err
	}
	deps.Grants = issuer

	ceremonies, err := ceremony.New(ceremony.LoadConfigFromEnv(), deps)
	if err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("build ceremony service: %w", err)
	}

	mux := http.NewServeMux()
	api := httpapi.NewServer(ceremonies, store, store, store)
	if err := api.RegisterRoutes(mux); err != nil {
		_ = listener.Close()
		_ = store.Close()
		return nil, fmt.Errorf("register routes: %w", err)
	}

	return &Server{
		listener:   listener,
		httpServer: &http.Server{Handler: mux},
		store:      store,
		api:        api,
	}, nil
}

// Addr returns the listener address for the biometric server.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Run creates and serves a biometric server until the context ends.
func Run(ctx context.Context, httpAddr string) error {
	server, err := New(httpAddr)
	if err != nil {
		return err
	}
	return server.Serve(ctx)
}

// Serve starts the biometric server and blocks until it stops or the context
// ends.
func (s *Server) Serve(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	serverCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer s.closeStore()

	otelShutdown, err := otel.Setup(serverCtx, "biometric")
	if err != nil {
		log.Printf("telemetry setup failed: %v", err)
	} else if otelShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	s.api.StartCleanup(serverCtx, challengeCleanupInterval)

	log.Printf("biometric server listening at %v", s.listener.Addr())
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- s.httpServer.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.httpServer.Shutdown(shutdownCtx)
		err := <-serveErr
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	case err := <-serveErr:
		if err == nil || err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("serve HTTP: %w", err)
	}
}

func (s *Server) closeStore() {
	if s == nil || s.store == nil {
		return
	}
	if err := s.store.Close(); err != nil {
		log.Printf("close biometric store: %v", err)
	}
}

func openStore() (*sqlite.Store, error) {
	path := strings.TrimSpace(os.Getenv("SHIFTLINE_BIOMETRIC_DB_PATH"))
	if path == "" {
		path = filepath.Join("data", "biometric.db")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}

	store, err := sqlite.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open biometric sqlite store: %w", err)
	}
	return store, nil
}

// buildResolver wires the user hub lookup when configured. Without it, only
// user-id subject hints work; email hints fail.
func buildResolver() identity.Resolver {
	cfg := identity.LoadConfigFromEnv()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil
	}
	return identity.NewHTTPResolver(cfg)
}

// buildGrantIssuer wires verification grant minting when a signing key is
// configured. Without it, authentication results carry no grant and the
// session service falls back to its own exchange flow.
func buildGrantIssuer() (*grant.Issuer, error) {
	if strings.TrimSpace(os.Getenv("SHIFTLINE_VERIFICATION_GRANT_PRIVATE_KEY")) == "" {
		return nil, nil
	}
	cfg, err := grant.LoadConfigFromEnv(nil)
	if err != nil {
		return nil, fmt.Errorf("load verification grant config: %w", err)
	}
	issuer, err := grant.NewIssuer(cfg)
	if err != nil {
		return nil, fmt.Errorf("build verification grant issuer: %w", err)
	}
	return issuer, nil
}
