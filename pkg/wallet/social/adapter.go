// Package social adapts a social-login wallet: the user signs in with an
// OAuth identity provider and the SDK derives a wallet for that identity.
package social

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/conduit-ucpi/webapp-sub000/pkg/auth"
	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/server"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
)

// DefaultConnectTimeout bounds the OAuth round trip, which may include a
// slow identity provider or a hop to another device.
const DefaultConnectTimeout = 5 * time.Minute

// CallbackPath is where the identity provider redirects back to.
const CallbackPath = "/auth/callback"

type Config struct {
	ClientID       string        `env:"ESCROW_SOCIAL_CLIENT_ID"`
	ChainID        int64         `env:"ESCROW_CHAIN_ID"`
	RPCURL         string        `env:"ESCROW_RPC_URL"`
	CallbackAddr   string        `env:"ESCROW_SOCIAL_CALLBACK_ADDR" envDefault:"127.0.0.1:0"`
	PollInterval   time.Duration `env:"ESCROW_SOCIAL_POLL_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"ESCROW_SOCIAL_CONNECT_TIMEOUT" envDefault:"5m"`
	// AuthOnly wallets prove identity but never send transactions.
	AuthOnly bool `env:"ESCROW_SOCIAL_AUTH_ONLY"`
}

func (c Config) validate() error {
	switch {
	case c.ClientID == "":
		return &wallet.ConfigurationError{Adapter: string(wallet.KindSocial), Key: "ESCROW_SOCIAL_CLIENT_ID"}
	case c.ChainID == 0:
		return &wallet.ConfigurationError{Adapter: string(wallet.KindSocial), Key: "ESCROW_CHAIN_ID"}
	case c.RPCURL == "":
		return &wallet.ConfigurationError{Adapter: string(wallet.KindSocial), Key: "ESCROW_RPC_URL"}
	}
	return nil
}

// Login is a completed social login.
type Login struct {
	Provider wallet.Provider
	IDToken  string
}

// SDK is the narrow surface of the social wallet SDK.
type SDK interface {
	Init(ctx context.Context, cfg Config) error
	// Restore returns the login for a session that is still live, or nil.
	Restore(ctx context.Context) (*Login, error)
	// AuthURL is the identity provider page that redirects to redirectURI.
	AuthURL(state, redirectURI string) string
	// Exchange completes the login with the code from the redirect.
	Exchange(ctx context.Context, code string) (*Login, error)
	// Poll reports a login for state finished out of band, or nil.
	Poll(ctx context.Context, state string) (*Login, error)
	Logout(ctx context.Context) error
}

// Adapter is the social-login wallet.
type Adapter struct {
	*wallet.Base
	cfg Config
	sdk SDK

	// OpenURL sends the user to the identity provider.
	OpenURL func(url string) error

	initMu      sync.Mutex
	initialized bool
	network     chain.Network

	tokenMu sync.RWMutex
	idToken string
}

var _ wallet.Adapter = (*Adapter)(nil)
var _ wallet.IdentityTokenSource = (*Adapter)(nil)

func New(cfg Config, sdk SDK, logger logging.Logger) *Adapter {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Adapter{
		Base: wallet.NewBase(wallet.KindSocial, "social", logger),
		cfg:  cfg,
		sdk:  sdk,
	}
}

func (a *Adapter) Capabilities() wallet.Capabilities {
	if a.cfg.AuthOnly {
		return wallet.Capabilities{CanSign: true, IsAuthOnly: true}
	}
	return wallet.Capabilities{CanSign: true, CanTransact: true}
}

func (a *Adapter) Initialize(ctx context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	if a.initialized {
		return nil
	}
	if err := a.cfg.validate(); err != nil {
		return err
	}
	if err := a.sdk.Init(ctx, a.cfg); err != nil {
		return &wallet.InitializationError{Adapter: a.Name(), Err: err}
	}
	a.network = chain.LookupNetwork(a.cfg.ChainID, a.cfg.RPCURL)
	a.initialized = true
	return nil
}

func (a *Adapter) Connect(ctx context.Context) wallet.ConnectResult {
	if err := a.Initialize(ctx); err != nil {
		return wallet.Failed(err)
	}
	if addr, err := a.Address(); err == nil {
		return wallet.ConnectResult{Success: true, Address: addr}
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.ConnectTimeout)
	defer cancel()

	if login, err := a.sdk.Restore(ctx); err != nil {
		a.Logger.WithError(err).Debug("No restorable social session")
	} else if login != nil && login.Provider != nil {
		s, err := wallet.OpenSession(ctx, login.Provider, a.network)
		switch {
		case err == nil:
			return a.attach(s, login)
		case !errors.Is(err, wallet.ErrNoAccounts):
			return wallet.Failed(wallet.Classify("connect", err))
		}
		a.Logger.Debug("Restored social session has no accounts, signing in again")
	}

	login, err := a.interactiveLogin(ctx)
	if err != nil {
		return wallet.Failed(err)
	}
	s, err := wallet.RequestSession(ctx, login.Provider, a.network)
	if err != nil {
		return wallet.Failed(wallet.Classify("connect", err))
	}
	return a.attach(s, login)
}

func (a *Adapter) attach(s *wallet.Session, login *Login) wallet.ConnectResult {
	a.tokenMu.Lock()
	a.idToken = login.IDToken
	a.tokenMu.Unlock()
	a.Attach(s)
	return wallet.ConnectResult{Success: true, Address: s.Address}
}

type callbackResult struct {
	code string
	err  error
}

// interactiveLogin sends the user to the identity provider and waits for
// whichever comes first: the loopback redirect, a poll reporting an
// out-of-band login, or ctx ending.
func (a *Adapter) interactiveLogin(ctx context.Context) (*Login, error) {
	state := uuid.NewString()
	results := make(chan callbackResult, 1)

	router := server.SetupRouter(a.Logger)
	router.GET(CallbackPath, func(c *gin.Context) {
		res := callbackResult{code: c.Query("code")}
		switch {
		case c.Query("state") != state:
			c.String(http.StatusBadRequest, "Login state mismatch.")
			return
		case c.Query("error") != "":
			res.err = providerError(c.Query("error"), c.Query("error_description"))
		case res.code == "":
			res.err = errors.New("identity provider returned no code")
		}
		select {
		case results <- res:
		default:
		}
		c.String(http.StatusOK, "Login complete. You can close this window.")
	})

	cfg := server.DefaultConfig()
	cfg.Addr = a.cfg.CallbackAddr
	loopback, err := server.StartLoopback(cfg, router, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("start login callback: %w", err)
	}
	defer loopback.Stop()

	authURL := a.sdk.AuthURL(state, loopback.URL(CallbackPath))
	if a.OpenURL != nil {
		if err := a.OpenURL(authURL); err != nil {
			a.Logger.WithError(err).Warn("Could not open browser")
		}
	} else {
		a.Logger.WithField("url", authURL).Info("Open this URL to sign in")
	}

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case res := <-results:
			if res.err != nil {
				return nil, res.err
			}
			login, err := a.sdk.Exchange(ctx, res.code)
			if err != nil {
				return nil, wallet.Classify("connect", err)
			}
			return login, nil
		case <-ticker.C:
			login, err := a.sdk.Poll(ctx, state)
			if err != nil {
				a.Logger.WithError(err).Debug("Social login poll failed")
				continue
			}
			if login != nil {
				return login, nil
			}
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, fmt.Errorf("social login timed out after %s: %w", a.cfg.ConnectTimeout, ctx.Err())
			}
			return nil, ctx.Err()
		}
	}
}

func providerError(code, description string) error {
	err := fmt.Errorf("%s: %s", code, description)
	if code == "access_denied" {
		return &wallet.UserRejectedError{Op: "connect", Err: err}
	}
	return err
}

func (a *Adapter) Disconnect(ctx context.Context) {
	a.Detach(ctx)
	a.tokenMu.Lock()
	a.idToken = ""
	a.tokenMu.Unlock()
	if err := a.sdk.Logout(ctx); err != nil {
		a.Logger.WithError(err).WithField("provider", a.Name()).Warn("Social wallet logout failed")
	}
}

// IdentityToken returns the SDK's ID token while it is unexpired, or "".
func (a *Adapter) IdentityToken(context.Context) (string, error) {
	if _, err := a.Session(); err != nil {
		return "", err
	}
	a.tokenMu.RLock()
	raw := a.idToken
	a.tokenMu.RUnlock()
	if raw == "" {
		return "", nil
	}
	if _, err := auth.ReadIdentityToken(raw, time.Now()); err != nil {
		a.Logger.WithError(err).Debug("Ignoring unusable identity token")
		return "", nil
	}
	return raw, nil
}

// Profile returns the claims carried by the identity token, if any.
func (a *Adapter) Profile() (*auth.IdentityClaims, bool) {
	a.tokenMu.RLock()
	raw := a.idToken
	a.tokenMu.RUnlock()
	if raw == "" {
		return nil, false
	}
	claims, err := auth.ReadIdentityToken(raw, time.Now())
	if err != nil {
		return nil, false
	}
	return claims, true
}

func (a *Adapter) SendTransaction(ctx context.Context, tx chain.TxRequest) (string, error) {
	if a.cfg.AuthOnly {
		return "", &wallet.SigningError{Op: "send transaction", Err: errors.New("auth-only wallet cannot transact")}
	}
	return a.Base.SendTransaction(ctx, tx)
}
