package session

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/conduit-ucpi/webapp-sub000/pkg/clients"
)

const address = "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045"

func fastExecutor() *clients.HTTPExecutorConfig {
	cfg := clients.DefaultHTTPExecutorConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return &cfg
}

func newClient(url string) *Client {
	return NewClient(Config{BaseURL: url, Executor: fastExecutor()})
}

func TestLoginSetsTokenAndCookie(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/auth/login":
			if r.Method != http.MethodPost {
				t.Errorf("expected POST, got %s", r.Method)
			}
			if got := r.Header.Get("Authorization"); got != "Bearer sig-token" {
				t.Errorf("unexpected auth header %q", got)
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["address"] != address {
				t.Errorf("unexpected login body %v", body)
			}
			http.SetCookie(w, &http.Cookie{Name: "AUTH-TOKEN", Value: "cookie-session", Path: "/"})
			_ = json.NewEncoder(w).Encode(Identity{UserID: "u-1", WalletAddress: address, UserType: "user"})
		case "/api/auth/identity":
			if _, err := r.Cookie("AUTH-TOKEN"); err != nil {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(Identity{UserID: "u-1", WalletAddress: address})
		}
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	identity, err := c.Login(context.Background(), "sig-token", address)
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if identity.UserID != "u-1" || c.Token() != "sig-token" {
		t.Fatalf("unexpected identity %+v token %q", identity, c.Token())
	}

	// drop the bearer token; the cookie alone should carry the session
	c.SetToken("")
	if _, err := c.Identity(context.Background()); err != nil {
		t.Fatalf("cookie fallback failed: %v", err)
	}
}

func TestLoginFailureMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"json error", http.StatusForbidden, `{"error":"Signature expired"}`, "Signature expired"},
		{"no error field", http.StatusBadRequest, `{"detail":"x"}`, "Login failed"},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "Login failed"},
		{"unauthorized", http.StatusUnauthorized, `{"error":"Invalid signature"}`, "Invalid signature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer srv.Close()

			c := newClient(srv.URL)
			c.SetToken("previous")
			_, err := c.Login(context.Background(), "new-token", address)
			var be *BackendError
			if !errors.As(err, &be) || be.Error() != tt.want || be.Status != tt.status {
				t.Fatalf("expected BackendError %q, got %v", tt.want, err)
			}
			if c.Token() != "previous" {
				t.Fatal("failed login must not replace the token")
			}
		})
	}
}

func TestLastLoginWins(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(Identity{UserID: "u", WalletAddress: address})
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	_, _ = c.Login(context.Background(), "first", address)
	_, _ = c.Login(context.Background(), "second", address)
	if c.Token() != "second" {
		t.Fatalf("expected last login to win, got %q", c.Token())
	}
}

func TestLogoutClearsTokenEvenOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	c.SetToken("tok")
	if err := c.Logout(context.Background()); err == nil {
		t.Fatal("expected backend error")
	}
	if c.Token() != "" {
		t.Fatal("logout must clear the token unconditionally")
	}

	unreachable := newClient("http://127.0.0.1:1")
	unreachable.SetToken("tok")
	_ = unreachable.Logout(context.Background())
	if unreachable.Token() != "" {
		t.Fatal("logout must clear the token when the backend is down")
	}
}

func TestIdentityUnauthenticated(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newClient(srv.URL).Identity(context.Background())
	if !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected ErrUnauthenticated, got %v", err)
	}
}

func TestUpdateEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/auth/update-email" {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer tok" {
			t.Errorf("missing bearer token")
		}
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		_ = json.NewEncoder(w).Encode(Identity{UserID: "u", WalletAddress: address, Email: body["email"]})
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	c.SetToken("tok")
	identity, err := c.UpdateEmail(context.Background(), "buyer@example.com")
	if err != nil || identity.Email != "buyer@example.com" {
		t.Fatalf("update email: %+v %v", identity, err)
	}
}

func TestDoRetriesIdempotentRequestsOnly(t *testing.T) {
	var gets, posts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			if atomic.AddInt32(&gets, 1) < 3 {
				w.WriteHeader(http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			return
		}
		atomic.AddInt32(&posts, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := newClient(srv.URL)
	resp, err := c.Do(context.Background(), http.MethodGet, "/api/contracts", nil, nil)
	if err != nil || resp.StatusCode != http.StatusOK {
		t.Fatalf("expected GET to succeed after retries: %v", err)
	}
	resp.Body.Close()

	resp, err = c.Do(context.Background(), http.MethodPost, "/api/chain/create-contract", []byte(`{}`), nil)
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	resp.Body.Close()
	if atomic.LoadInt32(&posts) != 1 {
		t.Fatalf("POST must not be retried, got %d attempts", posts)
	}
}

func TestDoReturns401AsResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	resp, err := newClient(srv.URL).Do(context.Background(), http.MethodGet, "/api/contracts", nil, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if !IsUnauthenticated(resp) {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
}

func TestResolveURL(t *testing.T) {
	c := newClient("https://escrow.example.com/")
	if got := c.ResolveURL("api/x"); got != "https://escrow.example.com/api/x" {
		t.Fatalf("unexpected %s", got)
	}
	if got := c.ResolveURL("https://other/y"); got != "https://other/y" {
		t.Fatalf("absolute URLs pass through, got %s", got)
	}
}
