// Package wallet defines the capability surface every wallet family is
// adapted to, plus the EIP-1193 plumbing the adapters share.
package wallet

import (
	"context"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
)

// Kind tags one of the supported wallet families.
type Kind string

const (
	KindEmbedded Kind = "embedded"
	KindRelay    Kind = "relay"
	KindSocial   Kind = "social"
)

// Valid reports whether k is one of the known wallet families.
func (k Kind) Valid() bool {
	switch k {
	case KindEmbedded, KindRelay, KindSocial:
		return true
	}
	return false
}

// Capabilities are static per adapter. Callers decide on UI such as
// wallet switching from these flags, never from the concrete type.
type Capabilities struct {
	CanSign          bool `json:"canSign"`
	CanTransact      bool `json:"canTransact"`
	CanSwitchWallets bool `json:"canSwitchWallets"`
	IsAuthOnly       bool `json:"isAuthOnly"`
}

// ConnectResult is the outcome of Adapter.Connect.
type ConnectResult struct {
	Success bool
	Address string
	Err     error
}

// Failed builds an unsuccessful ConnectResult.
func Failed(err error) ConnectResult {
	return ConnectResult{Err: err}
}

// Adapter is implemented once per wallet family.
type Adapter interface {
	Kind() Kind
	Name() string
	Capabilities() Capabilities

	// Initialize is idempotent. It fails with a *ConfigurationError when
	// required settings are missing.
	Initialize(ctx context.Context) error
	// Connect reuses a live session when one exists before opening any
	// pairing or login UI, and refuses to finish on the wrong chain.
	Connect(ctx context.Context) ConnectResult
	// Disconnect tears the session down. Underlying failures are logged.
	Disconnect(ctx context.Context)

	Address() (string, error)
	ChainID(ctx context.Context) (int64, error)
	Provider() (Provider, error)
	SignMessage(ctx context.Context, message string) (string, error)
	SendTransaction(ctx context.Context, tx chain.TxRequest) (string, error)
	SignTransaction(ctx context.Context, tx chain.TxRequest) (string, error)
}

// IdentityTokenSource is implemented by adapters whose SDK issues its own
// identity token, which the backend accepts in place of a signature token.
type IdentityTokenSource interface {
	IdentityToken(ctx context.Context) (string, error)
}

// SessionEndNotifier is implemented by adapters whose wallet can close the
// session on its own. *Base implements it.
type SessionEndNotifier interface {
	OnSessionEnded(fn func(address string))
}

// TokenForgetter drops any cached backend token for an address.
type TokenForgetter interface {
	Forget(ctx context.Context, address string) error
}
