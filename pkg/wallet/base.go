package wallet

import (
	"context"
	"sync"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
)

// Base carries the session bookkeeping shared by every adapter. Adapters
// embed it and add Initialize, Connect, Disconnect and Capabilities.
type Base struct {
	kind   Kind
	name   string
	Logger logging.Logger

	mu      sync.RWMutex
	session *Session
	tokens  TokenForgetter
	onEnded func(address string)
}

// NewBase prepares the shared state for an adapter.
func NewBase(kind Kind, name string, logger logging.Logger) *Base {
	return &Base{kind: kind, name: name, Logger: logging.OrDiscard(logger)}
}

func (b *Base) Kind() Kind   { return b.kind }
func (b *Base) Name() string { return b.name }

// SetTokenForgetter wires the cache cleared on disconnect.
func (b *Base) SetTokenForgetter(f TokenForgetter) {
	b.mu.Lock()
	b.tokens = f
	b.mu.Unlock()
}

// OnSessionEnded registers fn to run when the wallet closes the session
// from its side. Disconnect does not trigger it.
func (b *Base) OnSessionEnded(fn func(address string)) {
	b.mu.Lock()
	b.onEnded = fn
	b.mu.Unlock()
}

// Session returns the live session or a *NotConnectedError.
func (b *Base) Session() (*Session, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.session == nil {
		return nil, &NotConnectedError{Adapter: b.name}
	}
	return b.session, nil
}

// Connected reports whether a session is attached.
func (b *Base) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.session != nil
}

// Attach installs s as the live session.
func (b *Base) Attach(s *Session) {
	b.mu.Lock()
	b.session = s
	b.mu.Unlock()
	b.Logger.WithFields(logging.Fields{
		"provider": b.name,
		"address":  s.Address,
		"chain_id": s.ChainID,
	}).Info("Wallet session established")
}

// Detach drops the live session and forgets cached tokens for its address.
// It returns the dropped session, or nil.
func (b *Base) Detach(ctx context.Context) *Session {
	b.mu.Lock()
	s := b.session
	b.session = nil
	tokens := b.tokens
	b.mu.Unlock()

	if s == nil {
		return nil
	}
	if tokens != nil {
		if err := tokens.Forget(ctx, s.Address); err != nil {
			b.Logger.WithError(err).WithField("provider", b.name).Warn("Failed to clear cached token on disconnect")
		}
	}
	return s
}

// End is Detach for sessions closed by the wallet. It notifies the
// OnSessionEnded callback when a session was actually dropped.
func (b *Base) End(ctx context.Context) *Session {
	s := b.Detach(ctx)
	if s == nil {
		return nil
	}
	b.mu.RLock()
	fn := b.onEnded
	b.mu.RUnlock()
	b.Logger.WithFields(logging.Fields{"provider": b.name, "address": s.Address}).Info("Wallet ended the session")
	if fn != nil {
		fn(s.Address)
	}
	return s
}

func (b *Base) Address() (string, error) {
	s, err := b.Session()
	if err != nil {
		return "", err
	}
	return s.Address, nil
}

func (b *Base) Provider() (Provider, error) {
	s, err := b.Session()
	if err != nil {
		return nil, err
	}
	return s.Provider, nil
}

func (b *Base) ChainID(ctx context.Context) (int64, error) {
	s, err := b.Session()
	if err != nil {
		return 0, err
	}
	id, err := CurrentChainID(ctx, s.Provider)
	if err != nil {
		return s.ChainID, nil
	}
	return id, nil
}

func (b *Base) SignMessage(ctx context.Context, message string) (string, error) {
	s, err := b.Session()
	if err != nil {
		return "", err
	}
	return s.SignMessage(ctx, message)
}

func (b *Base) SendTransaction(ctx context.Context, tx chain.TxRequest) (string, error) {
	s, err := b.Session()
	if err != nil {
		return "", err
	}
	return s.SendTransaction(ctx, tx)
}

func (b *Base) SignTransaction(ctx context.Context, tx chain.TxRequest) (string, error) {
	s, err := b.Session()
	if err != nil {
		return "", err
	}
	return s.SignTransaction(ctx, tx)
}
