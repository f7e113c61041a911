package identity

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestResolveEmail(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/internal/users/lookup" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		switch r.URL.Query().Get("email") {
		case "alpha@example.com":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"user_id":"user-1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	resolver := NewHTTPResolver(Config{BaseURL: server.URL, Timeout: 0})

	userID, err := resolver.ResolveEmail(context.Background(), "Alpha@Example.com")
	if err != nil {
		t.Fatalf("resolve email: %v", err)
	}
	if userID != "user-1" {
		t.Fatalf("expected user-1, got %q", userID)
	}

	_, err = resolver.ResolveEmail(context.Background(), "nobody@example.com")
	if !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}

func TestResolveEmailRejectsEmpty(t *testing.T) {
	resolver := NewHTTPResolver(Config{BaseURL: "http://localhost:0"})
	if _, err := resolver.ResolveEmail(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty email")
	}
}

func TestResolveEmailSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	resolver := NewHTTPResolver(Config{BaseURL: server.URL})
	_, err := resolver.ResolveEmail(context.Background(), "alpha@example.com")
	if err == nil || errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected transport error, got %v", err)
	}
}
