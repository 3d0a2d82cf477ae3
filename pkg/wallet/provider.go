package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
)

// EIP-1193 provider error codes.
const (
	CodeUserRejected      = 4001
	CodeUnauthorized      = 4100
	CodeUnsupportedMethod = 4200
	CodeDisconnected      = 4900
	CodeUnrecognizedChain = 4902
)

// Provider is the request surface every wallet SDK is adapted to.
type Provider interface {
	Request(ctx context.Context, method string, params ...any) (json.RawMessage, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, method string, params ...any) (json.RawMessage, error)

func (f ProviderFunc) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	return f(ctx, method, params...)
}

// RPCError is an EIP-1193 / JSON-RPC error object.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// Accounts calls eth_accounts, which never prompts the user.
func Accounts(ctx context.Context, p Provider) ([]string, error) {
	return accounts(ctx, p, "eth_accounts")
}

// RequestAccounts calls eth_requestAccounts, which may open wallet UI.
func RequestAccounts(ctx context.Context, p Provider) ([]string, error) {
	return accounts(ctx, p, "eth_requestAccounts")
}

func accounts(ctx context.Context, p Provider, method string) ([]string, error) {
	raw, err := p.Request(ctx, method)
	if err != nil {
		return nil, err
	}
	var out []string
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", method, err)
	}
	return out, nil
}

// CurrentChainID calls eth_chainId.
func CurrentChainID(ctx context.Context, p Provider) (int64, error) {
	raw, err := p.Request(ctx, "eth_chainId")
	if err != nil {
		return 0, err
	}
	var hexID string
	if err := json.Unmarshal(raw, &hexID); err != nil {
		// some SDKs answer with a bare number
		var n int64
		if numErr := json.Unmarshal(raw, &n); numErr != nil {
			return 0, fmt.Errorf("decode eth_chainId: %w", err)
		}
		return n, nil
	}
	return chain.ParseChainID(hexID)
}

// EnsureChain leaves the wallet on network or fails with a
// *NetworkMismatchError. It switches chains when needed, adds the chain when
// the wallet does not know it, then re-reads the chain id to confirm.
func EnsureChain(ctx context.Context, p Provider, network chain.Network) error {
	current, err := CurrentChainID(ctx, p)
	if err != nil {
		return &NetworkMismatchError{Expected: network.ChainID, Err: err}
	}
	if current == network.ChainID {
		return nil
	}

	_, err = p.Request(ctx, "wallet_switchEthereumChain", map[string]string{"chainId": network.ChainIDHex()})
	var rpcErr *RPCError
	if err != nil && errors.As(err, &rpcErr) && rpcErr.Code == CodeUnrecognizedChain {
		_, err = p.Request(ctx, "wallet_addEthereumChain", network.AddChainParams())
	}
	if err != nil {
		return &NetworkMismatchError{Expected: network.ChainID, Actual: current, Err: Classify("switch network", err)}
	}

	confirmed, err := CurrentChainID(ctx, p)
	if err != nil {
		return &NetworkMismatchError{Expected: network.ChainID, Actual: current, Err: err}
	}
	if confirmed != network.ChainID {
		return &NetworkMismatchError{Expected: network.ChainID, Actual: confirmed}
	}
	return nil
}
