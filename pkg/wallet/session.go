package wallet

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/conduit-ucpi/webapp-sub000/pkg/auth"
	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
)

// Session is one live wallet connection. It belongs to exactly one adapter.
type Session struct {
	Provider Provider
	Address  string
	ChainID  int64
}

// OpenSession builds a session from accounts the wallet already exposes,
// after making sure it sits on network. It returns ErrNoAccounts when the
// wallet has nothing authorised, which callers treat as "needs UI".
func OpenSession(ctx context.Context, p Provider, network chain.Network) (*Session, error) {
	accounts, err := Accounts(ctx, p)
	if err != nil {
		return nil, Classify("read accounts", err)
	}
	return sessionFromAccounts(ctx, p, accounts, network)
}

// RequestSession is OpenSession preceded by eth_requestAccounts, for
// providers that prompt on demand.
func RequestSession(ctx context.Context, p Provider, network chain.Network) (*Session, error) {
	accounts, err := RequestAccounts(ctx, p)
	if err != nil {
		return nil, Classify("request accounts", err)
	}
	return sessionFromAccounts(ctx, p, accounts, network)
}

func sessionFromAccounts(ctx context.Context, p Provider, accounts []string, network chain.Network) (*Session, error) {
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}
	address, err := auth.NormalizeEthAddress(accounts[0])
	if err != nil {
		return nil, fmt.Errorf("wallet returned invalid account: %w", err)
	}
	if err := EnsureChain(ctx, p, network); err != nil {
		return nil, err
	}
	return &Session{Provider: p, Address: address, ChainID: network.ChainID}, nil
}

// SignMessage requests personal_sign over message from the session address.
func (s *Session) SignMessage(ctx context.Context, message string) (string, error) {
	data := "0x" + hex.EncodeToString([]byte(message))
	raw, err := s.Provider.Request(ctx, "personal_sign", data, s.Address)
	if err != nil {
		return "", Classify("sign message", err)
	}
	return decodeString(raw, "personal_sign")
}

// SendTransaction submits tx with eth_sendTransaction and returns its hash.
func (s *Session) SendTransaction(ctx context.Context, tx chain.TxRequest) (string, error) {
	if tx.From == "" {
		tx.From = s.Address
	}
	raw, err := s.Provider.Request(ctx, "eth_sendTransaction", tx.Object())
	if err != nil {
		return "", Classify("send transaction", err)
	}
	return decodeString(raw, "eth_sendTransaction")
}

// SignTransaction returns the raw signed transaction without broadcasting.
func (s *Session) SignTransaction(ctx context.Context, tx chain.TxRequest) (string, error) {
	if tx.From == "" {
		tx.From = s.Address
	}
	raw, err := s.Provider.Request(ctx, "eth_signTransaction", tx.Object())
	if err != nil {
		return "", Classify("sign transaction", err)
	}
	return decodeString(raw, "eth_signTransaction")
}

func decodeString(raw json.RawMessage, method string) (string, error) {
	var out string
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("decode %s result: %w", method, err)
	}
	return out, nil
}
