package wallet_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/conduit-ucpi/webapp-sub000/pkg/auth"
	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/testutil"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
)

var base = chain.Networks["base"]

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		rejected bool
	}{
		{"eip1193 code", &wallet.RPCError{Code: wallet.CodeUserRejected, Message: "nope"}, true},
		{"user rejected message", errors.New("MetaMask: User rejected the request."), true},
		{"user denied message", errors.New("User denied message signature"), true},
		{"cancelled", errors.New("Popup closed: cancelled by user"), true},
		{"wrapped code", fmt.Errorf("relay: %w", &wallet.RPCError{Code: 4001}), true},
		{"generic", errors.New("insufficient funds for gas"), false},
		{"other rpc code", &wallet.RPCError{Code: -32000, Message: "execution reverted"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := wallet.Classify("sign message", tt.err)
			if tt.rejected {
				if !errors.Is(err, wallet.ErrUserRejected) {
					t.Fatalf("expected rejection, got %T %v", err, err)
				}
				if err.Error() != "cancelled by user" {
					t.Fatalf("unexpected message %q", err.Error())
				}
				return
			}
			var signing *wallet.SigningError
			if !errors.As(err, &signing) {
				t.Fatalf("expected SigningError, got %T", err)
			}
			if !errors.Is(err, tt.err) {
				t.Fatal("signing error should wrap the original")
			}
		})
	}
}

func TestClassifyPassesThrough(t *testing.T) {
	if wallet.Classify("x", nil) != nil {
		t.Fatal("nil should stay nil")
	}
	notConnected := &wallet.NotConnectedError{Adapter: "relay"}
	if got := wallet.Classify("x", notConnected); got != notConnected {
		t.Fatalf("expected passthrough, got %v", got)
	}
	if got := wallet.Classify("x", context.Canceled); got != context.Canceled {
		t.Fatalf("expected context error passthrough, got %v", got)
	}
	once := wallet.Classify("x", errors.New("boom"))
	if got := wallet.Classify("y", once); got != once {
		t.Fatal("classified errors should not be wrapped twice")
	}
}

func TestEnsureChainAlreadyOnNetwork(t *testing.T) {
	w := testutil.MustFakeWallet(base.ChainID)
	if err := wallet.EnsureChain(context.Background(), w, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.CallCount("wallet_switchEthereumChain") != 0 {
		t.Fatal("should not switch when already on the network")
	}
}

func TestEnsureChainSwitches(t *testing.T) {
	w := testutil.MustFakeWallet(1)
	w.KnownChains[base.ChainID] = true
	if err := wallet.EnsureChain(context.Background(), w, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.ChainID != base.ChainID {
		t.Fatalf("wallet left on chain %d", w.ChainID)
	}
}

func TestEnsureChainAddsUnknownNetwork(t *testing.T) {
	w := testutil.MustFakeWallet(1)
	if err := wallet.EnsureChain(context.Background(), w, base); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w.CallCount("wallet_addEthereumChain") != 1 {
		t.Fatalf("expected add chain fallback, calls: %v", w.Calls())
	}
}

func TestEnsureChainDeclinedSwitch(t *testing.T) {
	w := testutil.MustFakeWallet(1)
	w.KnownChains[base.ChainID] = true
	w.RejectSwitch = true

	err := wallet.EnsureChain(context.Background(), w, base)
	var mismatch *wallet.NetworkMismatchError
	if !errors.As(err, &mismatch) {
		t.Fatalf("expected NetworkMismatchError, got %v", err)
	}
	if mismatch.Expected != base.ChainID || mismatch.Actual != 1 {
		t.Fatalf("unexpected mismatch %+v", mismatch)
	}
	if !errors.Is(err, wallet.ErrUserRejected) {
		t.Fatal("declined switch should still be recognisable as a rejection")
	}
}

func TestOpenSessionRequiresAccounts(t *testing.T) {
	w := testutil.MustFakeWallet(base.ChainID)
	if _, err := wallet.OpenSession(context.Background(), w, base); !errors.Is(err, wallet.ErrNoAccounts) {
		t.Fatalf("expected ErrNoAccounts, got %v", err)
	}

	s, err := wallet.RequestSession(context.Background(), w, base)
	if err != nil {
		t.Fatalf("request session: %v", err)
	}
	if s.Address != w.Address {
		t.Fatalf("expected checksummed %s, got %s", w.Address, s.Address)
	}

	again, err := wallet.OpenSession(context.Background(), w, base)
	if err != nil || again.Address != s.Address {
		t.Fatalf("silent reopen failed: %v", err)
	}
}

func TestSessionSignMessageVerifies(t *testing.T) {
	w := testutil.MustFakeWallet(base.ChainID)
	s, err := wallet.RequestSession(context.Background(), w, base)
	if err != nil {
		t.Fatalf("session: %v", err)
	}
	sig, err := s.SignMessage(context.Background(), "hello escrow")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := auth.VerifyEthSignature(s.Address, "hello escrow", sig)
	if err != nil || !ok {
		t.Fatalf("signature did not verify: %v", err)
	}

	w.RejectSign = true
	if _, err := s.SignMessage(context.Background(), "again"); !errors.Is(err, wallet.ErrUserRejected) {
		t.Fatalf("expected rejection, got %v", err)
	}
}

func TestSessionSendTransactionFillsFrom(t *testing.T) {
	w := testutil.MustFakeWallet(base.ChainID)
	s, _ := wallet.RequestSession(context.Background(), w, base)

	hash, err := s.SendTransaction(context.Background(), chain.TxRequest{To: base.USDCContract, Data: []byte{1}})
	if err != nil || hash == "" {
		t.Fatalf("send: %q %v", hash, err)
	}
	sent := w.SentTransactions()
	if len(sent) != 1 || sent[0].From != s.Address {
		t.Fatalf("unexpected sent transactions %+v", sent)
	}

	w.SendErr = errors.New("insufficient funds")
	_, err = s.SendTransaction(context.Background(), chain.TxRequest{To: base.USDCContract})
	var signing *wallet.SigningError
	if !errors.As(err, &signing) || signing.Op != "send transaction" {
		t.Fatalf("expected SigningError, got %v", err)
	}
}

type forgetRecorder struct{ addresses []string }

func (f *forgetRecorder) Forget(_ context.Context, address string) error {
	f.addresses = append(f.addresses, address)
	return errors.New("store offline")
}

func TestBaseLifecycle(t *testing.T) {
	b := wallet.NewBase(wallet.KindEmbedded, "embedded", nil)
	if _, err := b.Address(); !errors.Is(err, wallet.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := b.SignMessage(context.Background(), "x"); !errors.Is(err, wallet.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}

	forget := &forgetRecorder{}
	b.SetTokenForgetter(forget)
	w := testutil.MustFakeWallet(base.ChainID)
	s, _ := wallet.RequestSession(context.Background(), w, base)
	b.Attach(s)

	if addr, err := b.Address(); err != nil || addr != w.Address {
		t.Fatalf("address: %s %v", addr, err)
	}
	if id, err := b.ChainID(context.Background()); err != nil || id != base.ChainID {
		t.Fatalf("chain id: %d %v", id, err)
	}

	if dropped := b.Detach(context.Background()); dropped != s {
		t.Fatal("detach should return the dropped session")
	}
	if len(forget.addresses) != 1 || forget.addresses[0] != w.Address {
		t.Fatalf("expected cached token cleared for %s, got %v", w.Address, forget.addresses)
	}
	if b.Connected() {
		t.Fatal("still connected after detach")
	}
	if b.Detach(context.Background()) != nil {
		t.Fatal("second detach should be a no-op")
	}
}

func TestRegistry(t *testing.T) {
	r, err := wallet.NewRegistry()
	if err != nil {
		t.Fatal(err)
	}
	a := &stubAdapter{Base: wallet.NewBase(wallet.KindRelay, "relay", nil)}
	if err := r.Register(a); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := r.Register(a); !errors.Is(err, wallet.ErrDuplicateAdapter) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if got, err := r.Get(wallet.KindRelay); err != nil || got != a {
		t.Fatalf("get: %v", err)
	}
	if _, err := r.Get(wallet.KindSocial); !errors.Is(err, wallet.ErrUnknownAdapter) {
		t.Fatalf("expected unknown adapter, got %v", err)
	}
	if kinds := r.Kinds(); len(kinds) != 1 || kinds[0] != wallet.KindRelay {
		t.Fatalf("unexpected kinds %v", kinds)
	}
}

type stubAdapter struct {
	*wallet.Base
}

func (s *stubAdapter) Capabilities() wallet.Capabilities { return wallet.Capabilities{} }
func (s *stubAdapter) Initialize(context.Context) error { return nil }
func (s *stubAdapter) Connect(context.Context) wallet.ConnectResult { return wallet.ConnectResult{} }
func (s *stubAdapter) Disconnect(ctx context.Context) { s.Detach(ctx) }
