// Package embedded adapts an embedded-auth wallet SDK, one that logs the
// user in and holds the key on their behalf, to the wallet contract.
package embedded

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
)

// DefaultConnectTimeout bounds a login when the caller sets no deadline.
const DefaultConnectTimeout = 30 * time.Second

// Config is read from the environment with config.ParseEnv.
type Config struct {
	ClientID       string        `env:"ESCROW_EMBEDDED_CLIENT_ID"`
	ChainID        int64         `env:"ESCROW_CHAIN_ID"`
	RPCURL         string        `env:"ESCROW_RPC_URL"`
	KeystoreDir    string        `env:"ESCROW_KEYSTORE_DIR" envDefault:".escrow/keystore"`
	Account        string        `env:"ESCROW_WALLET_ACCOUNT"`
	ConnectTimeout time.Duration `env:"ESCROW_CONNECT_TIMEOUT" envDefault:"30s"`
}

func (c Config) validate() error {
	switch {
	case c.ClientID == "":
		return &wallet.ConfigurationError{Adapter: string(wallet.KindEmbedded), Key: "ESCROW_EMBEDDED_CLIENT_ID"}
	case c.ChainID == 0:
		return &wallet.ConfigurationError{Adapter: string(wallet.KindEmbedded), Key: "ESCROW_CHAIN_ID"}
	case c.RPCURL == "":
		return &wallet.ConfigurationError{Adapter: string(wallet.KindEmbedded), Key: "ESCROW_RPC_URL"}
	}
	return nil
}

// SDK is the narrow surface of the embedded wallet SDK.
type SDK interface {
	Init(ctx context.Context, cfg Config) error
	// Resume returns a provider for a login that is still live, or nil.
	Resume(ctx context.Context) (wallet.Provider, error)
	// Login runs the interactive login and returns the authorised provider.
	Login(ctx context.Context) (wallet.Provider, error)
	Logout(ctx context.Context) error
}

// identitySDK is implemented by SDKs that issue their own ID token.
type identitySDK interface {
	IdentityToken(ctx context.Context) (string, error)
}

// Adapter is the embedded-auth wallet.
type Adapter struct {
	*wallet.Base
	cfg Config
	sdk SDK

	initMu      sync.Mutex
	initialized bool
	network     chain.Network
}

var _ wallet.Adapter = (*Adapter)(nil)
var _ wallet.IdentityTokenSource = (*Adapter)(nil)

// New creates the adapter. Nothing touches the SDK until Initialize.
func New(cfg Config, sdk SDK, logger logging.Logger) *Adapter {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	return &Adapter{
		Base: wallet.NewBase(wallet.KindEmbedded, "embedded", logger),
		cfg:  cfg,
		sdk:  sdk,
	}
}

func (a *Adapter) Capabilities() wallet.Capabilities {
	return wallet.Capabilities{CanSign: true, CanTransact: true}
}

// Network is the chain the adapter was configured for.
func (a *Adapter) Network() chain.Network {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	return a.network
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
	a.Logger.WithFields(logging.Fields{
		"provider": a.Name(),
		"chain_id": a.cfg.ChainID,
	}).Info("Embedded wallet initialized")
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
	network := a.Network()

	if p, err := a.sdk.Resume(ctx); err != nil {
		a.Logger.WithError(err).Debug("No resumable embedded wallet session")
	} else if p != nil {
		s, err := wallet.OpenSession(ctx, p, network)
		switch {
		case err == nil:
			a.Attach(s)
			return wallet.ConnectResult{Success: true, Address: s.Address}
		case !errors.Is(err, wallet.ErrNoAccounts):
			return wallet.Failed(err)
		}
	}

	p, err := a.sdk.Login(ctx)
	if err != nil {
		return wallet.Failed(a.connectError(ctx, err))
	}
	s, err := wallet.RequestSession(ctx, p, network)
	if err != nil {
		return wallet.Failed(a.connectError(ctx, err))
	}
	a.Attach(s)
	return wallet.ConnectResult{Success: true, Address: s.Address}
}

func (a *Adapter) connectError(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("embedded wallet login timed out after %s: %w", a.cfg.ConnectTimeout, err)
	}
	return wallet.Classify("connect", err)
}

func (a *Adapter) Disconnect(ctx context.Context) {
	a.Detach(ctx)
	if err := a.sdk.Logout(ctx); err != nil {
		a.Logger.WithError(err).WithField("provider", a.Name()).Warn("Embedded wallet logout failed")
	}
}

// IdentityToken returns the SDK's ID token, or "" when it issues none.
func (a *Adapter) IdentityToken(ctx context.Context) (string, error) {
	if _, err := a.Session(); err != nil {
		return "", err
	}
	src, ok := a.sdk.(identitySDK)
	if !ok {
		return "", nil
	}
	return src.IdentityToken(ctx)
}
