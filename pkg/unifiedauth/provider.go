// Package unifiedauth composes one wallet adapter and the backend session
// into a single connection state machine with lazy, signature-based
// re-authentication.
package unifiedauth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/conduit-ucpi/webapp-sub000/pkg/auth"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/session"
	"github.com/conduit-ucpi/webapp-sub000/pkg/tokencache"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
)

// Backend is the slice of session.Client the provider drives.
type Backend interface {
	Login(ctx context.Context, token, address string) (*session.Identity, error)
	Logout(ctx context.Context) error
	Identity(ctx context.Context) (*session.Identity, error)
	UpdateEmail(ctx context.Context, email string) (*session.Identity, error)
	Do(ctx context.Context, method, path string, body []byte, header http.Header) (*http.Response, error)
	SetToken(token string)
}

// TokenCache remembers signature tokens per address.
type TokenCache interface {
	Lookup(ctx context.Context, address string) (string, bool)
	Remember(ctx context.Context, address, token string) error
	Forget(ctx context.Context, address string) error
}

// Provider is the unified auth state machine. Construct one per application
// session with New; it owns no global state.
type Provider struct {
	adapters *wallet.Registry
	backend  Backend
	tokens   TokenCache
	bus      *Bus
	logger   logging.Logger
	now      func() time.Time
	auth     singleflight.Group

	mu         sync.Mutex
	state      AuthState
	active     wallet.Adapter
	pending    wallet.Adapter
	connecting bool
	generation uint64
	identity   *session.Identity // cookie session seen at startup
}

type Option func(*Provider)

func WithTokenCache(c TokenCache) Option {
	return func(p *Provider) { p.tokens = c }
}

func WithLogger(l logging.Logger) Option {
	return func(p *Provider) { p.logger = logging.OrDiscard(l) }
}

func WithClock(now func() time.Time) Option {
	return func(p *Provider) { p.now = now }
}

func New(adapters *wallet.Registry, backend Backend, opts ...Option) *Provider {
	p := &Provider{
		adapters: adapters,
		backend:  backend,
		logger:   logging.NewDiscardLogger(),
		now:      time.Now,
		state:    initialState(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.tokens == nil {
		p.tokens = tokencache.New(tokencache.NewMemoryStore(), tokencache.WithLogger(p.logger))
	}
	p.bus = NewBus(p.logger)
	return p
}

// Subscribe registers fn for one event type; call the returned func to stop.
func (p *Provider) Subscribe(t EventType, fn Listener) func() {
	return p.bus.Subscribe(t, fn)
}

// SubscribeAll registers fn for every event type.
func (p *Provider) SubscribeAll(fn Listener) func() {
	return p.bus.SubscribeAll(fn)
}

// State returns a snapshot of the current state.
func (p *Provider) State() AuthState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Token returns the last known bearer token, or "".
func (p *Provider) Token() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Token
}

// Adapter returns the active wallet adapter.
func (p *Provider) Adapter() (wallet.Adapter, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active == nil {
		return nil, &wallet.NotConnectedError{}
	}
	return p.active, nil
}

// Provider returns the active wallet's EIP-1193 provider.
func (p *Provider) Provider() (wallet.Provider, error) {
	a, err := p.Adapter()
	if err != nil {
		return nil, err
	}
	return a.Provider()
}

// Initialize prepares every registered adapter and checks for an existing
// backend session. Adapter failures do not fail startup: the provider still
// becomes ready and carries the first failure as a warning in State.Error.
func (p *Provider) Initialize(ctx context.Context) AuthState {
	p.mu.Lock()
	if p.state.Status != StatusUninitialized {
		s := p.state
		p.mu.Unlock()
		return s
	}
	p.state.Status = StatusInitializing
	p.state.IsLoading = true
	p.mu.Unlock()

	var warning string
	for _, a := range p.adapters.All() {
		if err := a.Initialize(ctx); err != nil {
			p.logger.WithError(err).WithField("provider", a.Name()).Warn("Wallet adapter failed to initialize")
			if warning == "" {
				warning = err.Error()
			}
		}
	}

	identity, err := p.backend.Identity(ctx)
	if err != nil {
		p.logger.WithError(err).Debug("No existing backend session")
		identity = nil
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.identity = identity
	p.state = readyState()
	p.state.Error = warning
	return p.state
}

// Connect opens a session with the adapter for kind. No signature is asked
// for here: a cached token for the address is installed if one is valid,
// otherwise authentication waits until the backend first demands it.
//
// Calling Connect for the already-active kind is a no-op. Overlapping calls
// fail with ErrConnectionInProgress.
func (p *Provider) Connect(ctx context.Context, kind wallet.Kind) (AuthState, error) {
	p.Initialize(ctx)

	p.mu.Lock()
	if p.connecting {
		s := p.state
		p.mu.Unlock()
		return s, ErrConnectionInProgress
	}
	if p.active != nil {
		s, active := p.state, p.active.Kind()
		p.mu.Unlock()
		if active == kind {
			return s, nil
		}
		return s, fmt.Errorf("%w: %s", ErrAlreadyConnected, active)
	}
	adapter, err := p.adapters.Get(kind)
	if err != nil {
		s := p.state
		p.mu.Unlock()
		return s, err
	}
	p.connecting = true
	p.pending = adapter
	p.generation++
	gen := p.generation
	p.state.Status = StatusConnecting
	p.state.IsLoading = true
	p.state.Error = ""
	p.state.ProviderName = adapter.Name()
	p.mu.Unlock()

	log := p.logger.WithField("provider", adapter.Name())
	if n, ok := adapter.(wallet.SessionEndNotifier); ok {
		n.OnSessionEnded(func(string) { p.sessionEnded(context.Background(), adapter, gen) })
	}
	p.emit(Event{Type: EventConnecting, Provider: adapter.Name()})

	res := adapter.Connect(ctx)

	var cached string
	if res.Success {
		cached, _ = p.tokens.Lookup(ctx, res.Address)
	}

	p.mu.Lock()
	if gen != p.generation {
		s := p.state
		p.mu.Unlock()
		log.Info("Wallet connection finished after disconnect; discarding")
		if res.Success {
			adapter.Disconnect(ctx)
		}
		return s, ErrConnectionAborted
	}
	p.connecting = false
	p.pending = nil

	if !res.Success {
		err := res.Err
		if err == nil {
			err = errors.New("wallet connection failed")
		}
		p.state.Status = StatusReady
		p.state.IsLoading = false
		p.state.IsConnected = false
		p.state.User = nil
		p.state.Error = err.Error()
		s := p.state
		p.mu.Unlock()

		log.WithError(err).Warn("Wallet connection failed")
		p.emit(Event{Type: EventError, Provider: adapter.Name(), Message: err.Error()})
		return s, err
	}

	user := newUser(res.Address, kind, p.identity)
	p.active = adapter
	p.state.Status = StatusConnected
	p.state.IsLoading = false
	p.state.IsConnected = true
	p.state.User = user
	if cached != "" {
		p.state.Token = cached
		p.backend.SetToken(cached)
	}
	s := p.state
	p.mu.Unlock()

	log.WithFields(logging.Fields{
		"address":      res.Address,
		"cached_token": cached != "",
	}).Info("Wallet connected")
	p.emit(Event{Type: EventConnected, Provider: adapter.Name(), User: user, Token: s.Token})
	return s, nil
}

// Disconnect returns the provider to ready from any state, including while a
// Connect is still waiting on the wallet. Cleanup failures are logged.
func (p *Provider) Disconnect(ctx context.Context) AuthState {
	p.mu.Lock()
	adapter := p.active
	if adapter == nil {
		adapter = p.pending
	}
	address, name := p.resetLocked()
	s := p.state
	p.mu.Unlock()

	if adapter != nil {
		adapter.Disconnect(ctx)
	}
	p.finishDisconnect(ctx, address, name)
	return s
}

// sessionEnded resets the provider when the wallet closes the session
// itself. Callbacks from an older connection are ignored.
func (p *Provider) sessionEnded(ctx context.Context, adapter wallet.Adapter, gen uint64) {
	p.mu.Lock()
	if p.active != adapter || p.generation != gen {
		p.mu.Unlock()
		return
	}
	address, name := p.resetLocked()
	p.mu.Unlock()
	p.finishDisconnect(ctx, address, name)
}

// resetLocked drops the connection and returns the address and provider
// name it had. p.mu must be held.
func (p *Provider) resetLocked() (address, name string) {
	if p.state.User != nil {
		address = p.state.User.WalletAddress
	}
	name = p.state.ProviderName
	p.generation++
	p.connecting = false
	p.active = nil
	p.pending = nil
	p.identity = nil
	p.state = readyState()
	return address, name
}

func (p *Provider) finishDisconnect(ctx context.Context, address, name string) {
	if address != "" {
		if err := p.tokens.Forget(ctx, address); err != nil {
			p.logger.WithError(err).Warn("Failed to clear cached auth token")
		}
	}
	if err := p.backend.Logout(ctx); err != nil {
		p.logger.WithError(err).Warn("Backend logout failed")
	}

	p.logger.WithField("provider", name).Info("Wallet disconnected")
	p.emit(Event{Type: EventDisconnected, Provider: name})
}

// Authenticate establishes a backend session for the connected wallet,
// reusing a cached token when one is still valid. It returns the token.
func (p *Provider) Authenticate(ctx context.Context) (string, error) {
	return p.authenticate(ctx, false)
}

type authResult struct {
	token string
}

func (p *Provider) authenticate(ctx context.Context, force bool) (string, error) {
	v, err, _ := p.auth.Do("auth", func() (interface{}, error) {
		token, err := p.login(ctx, force)
		return authResult{token: token}, err
	})
	if err != nil {
		return "", err
	}
	return v.(authResult).token, nil
}

func (p *Provider) login(ctx context.Context, force bool) (string, error) {
	p.mu.Lock()
	adapter := p.active
	var address string
	if p.state.User != nil {
		address = p.state.User.WalletAddress
	}
	p.mu.Unlock()
	if adapter == nil || address == "" {
		return "", &wallet.NotConnectedError{}
	}
	log := p.logger.WithFields(logging.Fields{"provider": adapter.Name(), "address": address})

	if !force {
		if token, ok := p.tokens.Lookup(ctx, address); ok {
			p.backend.SetToken(token)
			p.setToken(token, nil)
			return token, nil
		}
	}

	token, signed, err := p.credential(ctx, adapter, address)
	if err != nil {
		return "", err
	}

	identity, err := p.backend.Login(ctx, token, address)
	if err != nil {
		return "", err
	}
	if signed {
		if err := p.tokens.Remember(ctx, address, token); err != nil {
			log.WithError(err).Warn("Failed to cache auth token")
		}
	}

	user := p.setToken(token, identity)
	log.Info("Backend authentication complete")
	p.emit(Event{Type: EventTokenRefreshed, Provider: adapter.Name(), User: user, Token: token})
	return token, nil
}

// credential prefers the wallet SDK's own identity token and falls back to a
// freshly signed message. signed reports which one was used.
func (p *Provider) credential(ctx context.Context, adapter wallet.Adapter, address string) (token string, signed bool, err error) {
	if src, ok := adapter.(wallet.IdentityTokenSource); ok {
		idToken, err := src.IdentityToken(ctx)
		if err != nil {
			p.logger.WithError(err).Debug("Identity token unavailable, falling back to signature")
		} else if idToken != "" {
			return idToken, false, nil
		}
	}

	now := p.now()
	token, _, err = auth.BuildSignatureToken(address, string(adapter.Kind()), now, func(message string) (string, error) {
		return adapter.SignMessage(ctx, message)
	})
	if err != nil {
		return "", false, err
	}
	if _, err := auth.VerifySignatureToken(token, tokencache.MaxAge, now); err != nil {
		return "", false, &wallet.SigningError{Op: "verify signature", Err: err}
	}
	return token, true, nil
}

// setToken records token and, when identity is non-nil, replaces the user.
func (p *Provider) setToken(token string, identity *session.Identity) *AuthUser {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state.Token = token
	if identity != nil && p.state.User != nil {
		p.state.User = newUser(p.state.User.WalletAddress, p.state.User.AuthProvider, identity)
	}
	return p.state.User
}

// AuthenticatedFetch sends an authenticated backend request. On a 401 it
// re-authenticates once and retries once; if re-authentication fails the
// caller gets the original AuthenticationExpiredError.
func (p *Provider) AuthenticatedFetch(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error) {
	resp, err := p.backend.Do(ctx, method, url, body, header)
	if err != nil || !session.IsUnauthenticated(resp) {
		return resp, err
	}
	expired := expiredFrom(resp, method, url)
	drain(resp)

	if err := p.reauthenticate(ctx); err != nil {
		p.logger.WithError(err).WithField("url", url).Warn("Re-authentication failed")
		return nil, expired
	}
	return p.backend.Do(ctx, method, url, body, header)
}

// UpdateEmail sets the user's email and replaces the user record with the
// backend's response, re-authenticating once if the session has lapsed.
func (p *Provider) UpdateEmail(ctx context.Context, email string) (AuthState, error) {
	identity, err := p.backend.UpdateEmail(ctx, email)
	if errors.Is(err, session.ErrUnauthenticated) {
		if rerr := p.reauthenticate(ctx); rerr != nil {
			return p.State(), err
		}
		identity, err = p.backend.UpdateEmail(ctx, email)
	}
	if err != nil {
		return p.State(), err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.state.User != nil {
		p.state.User = newUser(p.state.User.WalletAddress, p.state.User.AuthProvider, identity)
	}
	return p.state, nil
}

func (p *Provider) reauthenticate(ctx context.Context) error {
	p.mu.Lock()
	if !p.state.IsConnected || p.state.User == nil {
		p.mu.Unlock()
		return &wallet.NotConnectedError{}
	}
	address := p.state.User.WalletAddress
	name := p.state.ProviderName
	p.state.Status = StatusReauthenticating
	p.state.Token = ""
	p.mu.Unlock()

	p.backend.SetToken("")
	if err := p.tokens.Forget(ctx, address); err != nil {
		p.logger.WithError(err).Warn("Failed to clear rejected auth token")
	}

	_, err := p.authenticate(ctx, true)

	p.mu.Lock()
	switch {
	case err == nil:
		p.state.Status = StatusConnected
		p.state.Error = ""
	case errors.Is(err, wallet.ErrNotConnected):
		p.state.Status = StatusError
		p.state.Error = err.Error()
	default:
		p.state.Status = StatusConnected
		p.state.Error = err.Error()
	}
	p.mu.Unlock()

	if err != nil {
		p.emit(Event{Type: EventError, Provider: name, Message: err.Error()})
	}
	return err
}

func (p *Provider) emit(ev Event) {
	ev.At = p.now()
	p.bus.Emit(ev)
}

func expiredFrom(resp *http.Response, method, url string) *session.AuthenticationExpiredError {
	e := &session.AuthenticationExpiredError{Method: method, URL: url, Status: resp.StatusCode}
	if resp.Request != nil && resp.Request.URL != nil {
		e.Method = resp.Request.Method
		e.URL = resp.Request.URL.String()
	}
	return e
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
