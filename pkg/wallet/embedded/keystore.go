package embedded

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
)

// ErrNoKeystoreAccount means the keystore is empty and creation is off.
var ErrNoKeystoreAccount = errors.New("keystore has no accounts")

// ChainBackend is the RPC surface needed to sign and broadcast.
// *ethclient.Client satisfies it.
type ChainBackend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
}

// PassphraseFunc supplies the keystore passphrase at login.
type PassphraseFunc func(ctx context.Context, account string) (string, error)

// KeystoreSDK is an SDK backed by a go-ethereum keystore directory.
type KeystoreSDK struct {
	Passphrase PassphraseFunc
	// CreateIfMissing makes Login create an account in an empty keystore.
	CreateIfMissing bool
	// Dial opens the chain backend; defaults to ethclient.DialContext.
	Dial func(ctx context.Context, rpcURL string) (ChainBackend, error)

	logger logging.Logger

	mu       sync.Mutex
	cfg      Config
	ks       *keystore.KeyStore
	backend  ChainBackend
	unlocked *KeyProvider
}

// NewKeystoreSDK creates an SDK that asks passphrase for the unlock secret.
func NewKeystoreSDK(passphrase PassphraseFunc, logger logging.Logger) *KeystoreSDK {
	return &KeystoreSDK{Passphrase: passphrase, logger: logging.OrDiscard(logger)}
}

func (k *KeystoreSDK) Init(ctx context.Context, cfg Config) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	dial := k.Dial
	if dial == nil {
		dial = func(ctx context.Context, rpcURL string) (ChainBackend, error) {
			client, err := ethclient.DialContext(ctx, rpcURL)
			if err != nil {
				return nil, err
			}
			return client, nil
		}
	}
	backend, err := dial(ctx, cfg.RPCURL)
	if err != nil {
		return fmt.Errorf("dial rpc: %w", err)
	}
	k.cfg = cfg
	k.backend = backend
	k.ks = keystore.NewKeyStore(cfg.KeystoreDir, keystore.StandardScryptN, keystore.StandardScryptP)
	return nil
}

// UseKeyStore replaces the keystore opened by Init, e.g. with light scrypt
// parameters.
func (k *KeystoreSDK) UseKeyStore(ks *keystore.KeyStore) {
	k.mu.Lock()
	k.ks = ks
	k.mu.Unlock()
}

func (k *KeystoreSDK) Resume(context.Context) (wallet.Provider, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.unlocked == nil {
		return nil, nil
	}
	return k.unlocked, nil
}

func (k *KeystoreSDK) Login(ctx context.Context) (wallet.Provider, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.ks == nil {
		return nil, errors.New("keystore not initialized")
	}
	if k.unlocked != nil {
		return k.unlocked, nil
	}

	account, err := k.selectAccount(ctx)
	if err != nil {
		return nil, err
	}
	if k.Passphrase == nil {
		return nil, errors.New("no passphrase source configured")
	}
	pass, err := k.Passphrase(ctx, account.Address.Hex())
	if err != nil {
		return nil, err
	}
	if err := k.ks.Unlock(account, pass); err != nil {
		return nil, fmt.Errorf("unlock %s: %w", account.Address.Hex(), err)
	}
	k.unlocked = &KeyProvider{
		ks:      k.ks,
		account: account,
		chainID: k.cfg.ChainID,
		backend: k.backend,
	}
	k.logger.WithField("address", account.Address.Hex()).Info("Keystore account unlocked")
	return k.unlocked, nil
}

func (k *KeystoreSDK) selectAccount(ctx context.Context) (accounts.Account, error) {
	if k.cfg.Account != "" {
		if !common.IsHexAddress(k.cfg.Account) {
			return accounts.Account{}, fmt.Errorf("invalid account %q", k.cfg.Account)
		}
		return k.ks.Find(accounts.Account{Address: common.HexToAddress(k.cfg.Account)})
	}
	if all := k.ks.Accounts(); len(all) > 0 {
		return all[0], nil
	}
	if !k.CreateIfMissing || k.Passphrase == nil {
		return accounts.Account{}, ErrNoKeystoreAccount
	}
	pass, err := k.Passphrase(ctx, "")
	if err != nil {
		return accounts.Account{}, err
	}
	account, err := k.ks.NewAccount(pass)
	if err != nil {
		return accounts.Account{}, fmt.Errorf("create account: %w", err)
	}
	k.logger.WithField("address", account.Address.Hex()).Info("Created keystore account")
	return account, nil
}

func (k *KeystoreSDK) Logout(context.Context) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.unlocked == nil {
		return nil
	}
	addr := k.unlocked.account.Address
	k.unlocked = nil
	return k.ks.Lock(addr)
}

// KeyProvider answers EIP-1193 requests with an unlocked keystore account.
type KeyProvider struct {
	ks      *keystore.KeyStore
	account accounts.Account
	chainID int64
	backend ChainBackend
}

// NewKeyProvider wraps an unlocked keystore account.
func NewKeyProvider(ks *keystore.KeyStore, account accounts.Account, chainID int64, backend ChainBackend) *KeyProvider {
	return &KeyProvider{ks: ks, account: account, chainID: chainID, backend: backend}
}

func (p *KeyProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_accounts", "eth_requestAccounts":
		return json.Marshal([]string{p.account.Address.Hex()})

	case "eth_chainId":
		return json.Marshal(hexutil.EncodeUint64(uint64(p.chainID)))

	case "personal_sign":
		var data string
		if err := param(params, 0, &data); err != nil {
			return nil, err
		}
		msg, err := hexutil.Decode(data)
		if err != nil {
			msg = []byte(data)
		}
		sig, err := p.ks.SignHash(p.account, accounts.TextHash(msg))
		if err != nil {
			return nil, err
		}
		sig[64] += 27
		return json.Marshal(hexutil.Encode(sig))

	case "wallet_switchEthereumChain":
		var target struct {
			ChainID string `json:"chainId"`
		}
		if err := param(params, 0, &target); err != nil {
			return nil, err
		}
		id, err := chain.ParseChainID(target.ChainID)
		if err != nil || id != p.chainID {
			return nil, &wallet.RPCError{Code: wallet.CodeUnrecognizedChain, Message: "embedded wallet is bound to chain " + hexutil.EncodeUint64(uint64(p.chainID))}
		}
		return json.RawMessage("null"), nil

	case "eth_sendTransaction", "eth_signTransaction":
		var obj chain.TxObject
		if err := param(params, 0, &obj); err != nil {
			return nil, err
		}
		req, err := obj.Request()
		if err != nil {
			return nil, &wallet.RPCError{Code: -32602, Message: err.Error()}
		}
		signed, err := p.signTx(ctx, req)
		if err != nil {
			return nil, err
		}
		if method == "eth_signTransaction" {
			raw, err := signed.MarshalBinary()
			if err != nil {
				return nil, err
			}
			return json.Marshal(hexutil.Encode(raw))
		}
		if err := p.backend.SendTransaction(ctx, signed); err != nil {
			return nil, fmt.Errorf("broadcast: %w", err)
		}
		return json.Marshal(signed.Hash().Hex())
	}
	return nil, &wallet.RPCError{Code: wallet.CodeUnsupportedMethod, Message: "unsupported method " + method}
}

func (p *KeyProvider) signTx(ctx context.Context, req chain.TxRequest) (*types.Transaction, error) {
	if p.backend == nil {
		return nil, errors.New("no chain backend")
	}
	from := p.account.Address
	if req.From != "" && !strings.EqualFold(req.From, from.Hex()) {
		return nil, fmt.Errorf("cannot sign for %s", req.From)
	}
	var to *common.Address
	if req.To != "" {
		addr := common.HexToAddress(req.To)
		to = &addr
	}
	value := req.Value
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := p.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	tip, err := p.backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas tip: %w", err)
	}
	head, err := p.backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("latest header: %w", err)
	}
	feeCap := new(big.Int).Set(tip)
	if head.BaseFee != nil {
		feeCap.Add(feeCap, new(big.Int).Mul(head.BaseFee, big.NewInt(2)))
	}
	gas := req.Gas
	if gas == 0 {
		gas, err = p.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: to, Value: value, Data: req.Data})
		if err != nil {
			return nil, fmt.Errorf("estimate gas: %w", err)
		}
	}

	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   big.NewInt(p.chainID),
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        to,
		Value:     value,
		Data:      req.Data,
	})
	return p.ks.SignTx(p.account, tx, big.NewInt(p.chainID))
}

func param(params []any, i int, out any) error {
	if len(params) <= i {
		return &wallet.RPCError{Code: -32602, Message: "missing params"}
	}
	raw, err := json.Marshal(params[i])
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}
