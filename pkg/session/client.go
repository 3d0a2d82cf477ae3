// Package session is the HTTP client for the backend's auth session: login,
// logout, identity and authenticated requests.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/conduit-ucpi/webapp-sub000/pkg/clients"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
)

// Identity is the user record the backend returns on login and status checks.
type Identity struct {
	UserID          string `json:"userId"`
	Email           string `json:"email,omitempty"`
	WalletAddress   string `json:"walletAddress"`
	UserType        string `json:"userType,omitempty"`
	Username        string `json:"username,omitempty"`
	DisplayName     string `json:"displayName,omitempty"`
	ProfileImageURL string `json:"profileImageUrl,omitempty"`
}

// Config represents the configuration for the backend session client
type Config struct {
	BaseURL  string `env:"ESCROW_API_URL"`
	Timeout  time.Duration
	Logger   logging.Logger
	Executor *clients.HTTPExecutorConfig
	// HTTPClient overrides the cookie-jar client built by NewClient.
	HTTPClient *http.Client
}

// Client holds the single bearer-token slot for this process. The last
// successful Login wins; Logout always clears it.
type Client struct {
	baseURL    string
	httpClient *http.Client
	executor   failsafe.Executor[*http.Response]
	logger     logging.Logger

	mu    sync.RWMutex
	token string
}

// NewClient creates a backend session client.
func NewClient(cfg Config) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	execCfg := clients.DefaultHTTPExecutorConfig()
	if cfg.Executor != nil {
		execCfg = *cfg.Executor
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = clients.NewCookieClient(cfg.Timeout)
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: httpClient,
		executor:   clients.NewHTTPExecutor(execCfg),
		logger:     logging.OrDiscard(cfg.Logger),
	}
}

// Token returns the current bearer token, or "".
func (c *Client) Token() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// SetToken installs token without contacting the backend, e.g. from cache.
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

// ResolveURL joins path onto the base URL unless it is already absolute.
func (c *Client) ResolveURL(path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return c.baseURL + path
}

// Login exchanges token (a signature token or SDK identity token) for a
// backend session. On success the token becomes the current bearer token.
func (c *Client) Login(ctx context.Context, token, address string) (*Identity, error) {
	body, err := json.Marshal(map[string]string{"address": address})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal login: %w", err)
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	resp, err := c.send(ctx, http.MethodPost, "/api/auth/login", body, header, false)
	if err != nil {
		return nil, fmt.Errorf("failed to call login: %w", err)
	}
	identity, err := decodeIdentity(resp, "login", "Login failed", false)
	if err != nil {
		return nil, err
	}

	c.SetToken(token)
	c.logger.WithFields(logging.Fields{
		"address": identity.WalletAddress,
		"user_id": identity.UserID,
	}).Info("Backend session established")
	return identity, nil
}

// Logout clears the token, then asks the backend to drop the cookie session.
func (c *Client) Logout(ctx context.Context) error {
	token := c.Token()
	c.SetToken("")

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.send(ctx, http.MethodPost, "/api/auth/logout", nil, header, false)
	if err != nil {
		return fmt.Errorf("failed to call logout: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusUnauthorized {
		body, _ := io.ReadAll(resp.Body)
		return backendError("logout", "Logout failed", resp.StatusCode, body)
	}
	return nil
}

// Identity asks whether a session exists for the current token or cookie.
// It returns an AuthenticationExpiredError when there is none.
func (c *Client) Identity(ctx context.Context) (*Identity, error) {
	resp, err := c.Do(ctx, http.MethodGet, "/api/auth/identity", nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to check identity: %w", err)
	}
	return decodeIdentity(resp, "identity", "Identity check failed", true)
}

// UpdateEmail sets the user's email and returns the updated record.
func (c *Client) UpdateEmail(ctx context.Context, email string) (*Identity, error) {
	body, err := json.Marshal(map[string]string{"email": email})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal email update: %w", err)
	}
	resp, err := c.Do(ctx, http.MethodPut, "/api/auth/update-email", body, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to update email: %w", err)
	}
	return decodeIdentity(resp, "update email", "Failed to update email", true)
}

// Do sends an authenticated request: the bearer token when one is held,
// plus whatever session cookie the jar carries. Idempotent methods go
// through the retrying executor. A 401 is returned as a response, not an
// error, so callers can decide whether to re-authenticate.
func (c *Client) Do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error) {
	h := header.Clone()
	if h == nil {
		h = http.Header{}
	}
	if token := c.Token(); token != "" {
		h.Set("Authorization", "Bearer "+token)
	}
	return c.send(ctx, method, path, body, h, clients.IsIdempotent(method))
}

func (c *Client) send(ctx context.Context, method, path string, body []byte, header http.Header, retry bool) (*http.Response, error) {
	url := c.ResolveURL(path)
	build := func() (*http.Request, error) {
		var r io.Reader
		if body != nil {
			r = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, r)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		for k, v := range header {
			req.Header[k] = v
		}
		if body != nil && req.Header.Get("Content-Type") == "" {
			req.Header.Set("Content-Type", "application/json")
		}
		return req, nil
	}

	if !retry {
		req, err := build()
		if err != nil {
			return nil, err
		}
		return c.httpClient.Do(req)
	}
	return clients.ExecuteHTTP(ctx, c.executor, func() (*http.Response, error) {
		req, err := build()
		if err != nil {
			return nil, err
		}
		return c.httpClient.Do(req)
	})
}

func decodeIdentity(resp *http.Response, op, fallback string, authenticated bool) (*Identity, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if authenticated && resp.StatusCode == http.StatusUnauthorized {
		return nil, &AuthenticationExpiredError{Method: resp.Request.Method, URL: resp.Request.URL.String(), Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, backendError(op, fallback, resp.StatusCode, body)
	}
	var identity Identity
	if err := json.Unmarshal(body, &identity); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &identity, nil
}
