package testutil

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
)

// TestPrivateKeyHex is a throwaway key used across wallet tests.
const TestPrivateKeyHex = "4c0883a69102937d6231471b5dbb6204fe51296170827922b7a56c91b8b56d09"

// FakeWallet is an in-memory EIP-1193 provider backed by a real key, so
// signatures it produces verify against its address.
type FakeWallet struct {
	mu  sync.Mutex
	key *ecdsa.PrivateKey

	Address     string
	ChainID     int64
	KnownChains map[int64]bool
	Authorized  bool

	// Error knobs; RejectX answers with EIP-1193 code 4001.
	RejectConnect bool
	RejectSign    bool
	RejectSwitch  bool
	SignErr       error
	SendErr       error
	AccountsErr   error

	calls    []string
	messages []string
	sent     []chain.TxObject
}

// NewFakeWallet builds a wallet for privateKeyHex sitting on chainID.
func NewFakeWallet(privateKeyHex string, chainID int64) (*FakeWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &FakeWallet{
		key:         key,
		Address:     crypto.PubkeyToAddress(key.PublicKey).Hex(),
		ChainID:     chainID,
		KnownChains: map[int64]bool{chainID: true},
	}, nil
}

// MustFakeWallet is NewFakeWallet for the shared test key.
func MustFakeWallet(chainID int64) *FakeWallet {
	w, err := NewFakeWallet(TestPrivateKeyHex, chainID)
	if err != nil {
		panic(err)
	}
	return w
}

// Calls returns the methods requested so far.
func (w *FakeWallet) Calls() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.calls...)
}

// CallCount counts requests for method.
func (w *FakeWallet) CallCount(method string) int {
	n := 0
	for _, c := range w.Calls() {
		if c == method {
			n++
		}
	}
	return n
}

// SignedMessages returns every message passed to personal_sign.
func (w *FakeWallet) SignedMessages() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.messages...)
}

// SentTransactions returns every eth_sendTransaction payload.
func (w *FakeWallet) SentTransactions() []chain.TxObject {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]chain.TxObject(nil), w.sent...)
}

// Sign produces a personal_sign signature for message.
func (w *FakeWallet) Sign(message []byte) (string, error) {
	sig, err := crypto.Sign(accounts.TextHash(message), w.key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func rejected(what string) error {
	return &wallet.RPCError{Code: wallet.CodeUserRejected, Message: "User rejected the " + what}
}

// Request implements wallet.Provider.
func (w *FakeWallet) Request(_ context.Context, method string, params ...any) (json.RawMessage, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.calls = append(w.calls, method)

	switch method {
	case "eth_accounts":
		if w.AccountsErr != nil {
			return nil, w.AccountsErr
		}
		if !w.Authorized {
			return json.Marshal([]string{})
		}
		return json.Marshal([]string{strings.ToLower(w.Address)})

	case "eth_requestAccounts":
		if w.RejectConnect {
			return nil, rejected("request")
		}
		w.Authorized = true
		return json.Marshal([]string{strings.ToLower(w.Address)})

	case "eth_chainId":
		return json.Marshal(hexutil.EncodeUint64(uint64(w.ChainID)))

	case "personal_sign":
		if w.RejectSign {
			return nil, rejected("signature request")
		}
		if w.SignErr != nil {
			return nil, w.SignErr
		}
		var data string
		if err := decodeParam(params, 0, &data); err != nil {
			return nil, err
		}
		msg, err := hexutil.Decode(data)
		if err != nil {
			msg = []byte(data)
		}
		w.messages = append(w.messages, string(msg))
		sig, err := w.Sign(msg)
		if err != nil {
			return nil, err
		}
		return json.Marshal(sig)

	case "wallet_switchEthereumChain":
		if w.RejectSwitch {
			return nil, rejected("network switch")
		}
		id, err := chainParam(params)
		if err != nil {
			return nil, err
		}
		if !w.KnownChains[id] {
			return nil, &wallet.RPCError{Code: wallet.CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
		}
		w.ChainID = id
		return json.RawMessage("null"), nil

	case "wallet_addEthereumChain":
		if w.RejectSwitch {
			return nil, rejected("add network")
		}
		id, err := chainParam(params)
		if err != nil {
			return nil, err
		}
		w.KnownChains[id] = true
		w.ChainID = id
		return json.RawMessage("null"), nil

	case "eth_sendTransaction", "eth_signTransaction":
		if w.SendErr != nil {
			return nil, w.SendErr
		}
		var tx chain.TxObject
		if err := decodeParam(params, 0, &tx); err != nil {
			return nil, err
		}
		if method == "eth_signTransaction" {
			return json.Marshal("0x02f8")
		}
		w.sent = append(w.sent, tx)
		return json.Marshal(fmt.Sprintf("0x%064x", len(w.sent)))
	}
	return nil, &wallet.RPCError{Code: wallet.CodeUnsupportedMethod, Message: "unsupported method " + method}
}

func decodeParam(params []any, i int, out any) error {
	if len(params) <= i {
		return &wallet.RPCError{Code: -32602, Message: "missing params"}
	}
	raw, err := json.Marshal(params[i])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func chainParam(params []any) (int64, error) {
	var p struct {
		ChainID string `json:"chainId"`
	}
	if err := decodeParam(params, 0, &p); err != nil {
		return 0, err
	}
	return chain.ParseChainID(p.ChainID)
}
