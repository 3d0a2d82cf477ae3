// Package relay adapts QR-paired wallets that talk to the dapp through a
// websocket relay.
package relay

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
)

// DefaultConnectTimeout bounds pairing when the caller sets no deadline.
const DefaultConnectTimeout = 30 * time.Second

type Config struct {
	ProjectID      string        `env:"ESCROW_RELAY_PROJECT_ID"`
	ChainID        int64         `env:"ESCROW_CHAIN_ID"`
	RelayURL       string        `env:"ESCROW_RELAY_URL"`
	RPCURL         string        `env:"ESCROW_RPC_URL"`
	ConnectTimeout time.Duration `env:"ESCROW_RELAY_CONNECT_TIMEOUT" envDefault:"30s"`
}

func (c Config) validate() error {
	switch {
	case c.ProjectID == "":
		return &wallet.ConfigurationError{Adapter: string(wallet.KindRelay), Key: "ESCROW_RELAY_PROJECT_ID"}
	case c.ChainID == 0:
		return &wallet.ConfigurationError{Adapter: string(wallet.KindRelay), Key: "ESCROW_CHAIN_ID"}
	case c.RelayURL == "":
		return &wallet.ConfigurationError{Adapter: string(wallet.KindRelay), Key: "ESCROW_RELAY_URL"}
	}
	return nil
}

// Adapter is the QR / relay wallet.
type Adapter struct {
	*wallet.Base
	cfg   Config
	store SessionStore

	// DisplayURI shows the pairing URI to the user, e.g. as a QR code.
	DisplayURI func(uri string)

	initMu      sync.Mutex
	initialized bool
	network     chain.Network

	connMu sync.Mutex
	conn   *conn
	topic  string
}

var _ wallet.Adapter = (*Adapter)(nil)

// New creates the adapter; a nil store keeps sessions in memory only.
func New(cfg Config, store SessionStore, logger logging.Logger) *Adapter {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if store == nil {
		store = &MemoryStore{}
	}
	return &Adapter{
		Base:  wallet.NewBase(wallet.KindRelay, "relay", logger),
		cfg:   cfg,
		store: store,
	}
}

func (a *Adapter) Capabilities() wallet.Capabilities {
	return wallet.Capabilities{CanSign: true, CanTransact: true, CanSwitchWallets: true}
}

func (a *Adapter) Initialize(context.Context) error {
	a.initMu.Lock()
	defer a.initMu.Unlock()
	if a.initialized {
		return nil
	}
	if err := a.cfg.validate(); err != nil {
		return err
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

	c, err := dial(ctx, a.cfg.RelayURL, a.cfg.ProjectID, a.Logger)
	if err != nil {
		return wallet.Failed(fmt.Errorf("relay unreachable: %w", err))
	}

	if s, topic, ok := a.resume(ctx, c); ok {
		return a.finish(ctx, c, topic, s)
	}

	topic := uuid.NewString()
	symKey := make([]byte, 32)
	if _, err := rand.Read(symKey); err != nil {
		c.close()
		return wallet.Failed(err)
	}
	uri := PairingURI(topic, hex.EncodeToString(symKey), a.cfg.RelayURL, a.cfg.ProjectID)
	if a.DisplayURI != nil {
		a.DisplayURI(uri)
	} else {
		a.Logger.WithField("uri", uri).Info("Scan pairing URI with your wallet")
	}

	if err := c.send(Message{Type: MsgPair, Topic: topic}); err != nil {
		c.close()
		return wallet.Failed(fmt.Errorf("relay send: %w", err))
	}
	approval, err := c.await(ctx)
	if err != nil {
		c.close()
		if errors.Is(err, context.DeadlineExceeded) {
			return wallet.Failed(fmt.Errorf("wallet pairing timed out after %s: %w", a.cfg.ConnectTimeout, err))
		}
		return wallet.Failed(err)
	}
	if approval.Type == MsgReject {
		c.close()
		return wallet.Failed(&wallet.UserRejectedError{Op: "connect", Err: errors.New(approval.Reason)})
	}

	p := newRelayProvider(c, topic, approval)
	s, err := wallet.OpenSession(ctx, p, a.network)
	if err != nil {
		_ = c.send(Message{Type: MsgDelete, Topic: topic})
		c.close()
		return wallet.Failed(err)
	}
	if err := a.store.Save(ctx, topic); err != nil {
		a.Logger.WithError(err).Warn("Failed to persist relay session")
	}
	return a.finish(ctx, c, topic, s)
}

// resume tries the stored topic. A stale topic is cleared so the caller
// falls through to pairing.
func (a *Adapter) resume(ctx context.Context, c *conn) (*wallet.Session, string, bool) {
	topic, err := a.store.Load(ctx)
	if err != nil || topic == "" {
		return nil, "", false
	}
	log := a.Logger.WithField("topic", topic)

	if err := c.send(Message{Type: MsgResume, Topic: topic}); err != nil {
		return nil, "", false
	}
	approval, err := c.await(ctx)
	if err != nil || approval.Type != MsgApprove || len(approval.Accounts) == 0 {
		log.Debug("Stored relay session is no longer live")
		if err := a.store.Clear(ctx); err != nil {
			log.WithError(err).Warn("Failed to clear relay session")
		}
		return nil, "", false
	}

	s, err := wallet.OpenSession(ctx, newRelayProvider(c, topic, approval), a.network)
	if err != nil {
		log.WithError(err).Warn("Resumed relay session unusable")
		return nil, "", false
	}
	log.Info("Resumed relay session")
	return s, topic, true
}

func (a *Adapter) finish(ctx context.Context, c *conn, topic string, s *wallet.Session) wallet.ConnectResult {
	p := s.Provider.(*relayProvider)
	c.setEventHandler(func(m Message) {
		if m.Type == MsgDelete {
			a.Logger.WithField("topic", topic).Info("Wallet ended relay session")
			a.dropConn(c)
			a.End(context.Background())
			return
		}
		p.apply(m)
	})

	a.connMu.Lock()
	a.conn = c
	a.topic = topic
	a.connMu.Unlock()
	a.Attach(s)
	return wallet.ConnectResult{Success: true, Address: s.Address}
}

func (a *Adapter) dropConn(c *conn) {
	a.connMu.Lock()
	if a.conn == c {
		a.conn = nil
		a.topic = ""
	}
	a.connMu.Unlock()
	if err := a.store.Clear(context.Background()); err != nil {
		a.Logger.WithError(err).Warn("Failed to clear relay session")
	}
	go c.close()
}

func (a *Adapter) Disconnect(ctx context.Context) {
	a.Detach(ctx)

	a.connMu.Lock()
	c, topic := a.conn, a.topic
	a.conn, a.topic = nil, ""
	a.connMu.Unlock()

	if c != nil {
		if err := c.send(Message{Type: MsgDelete, Topic: topic}); err != nil {
			a.Logger.WithError(err).Warn("Failed to notify wallet of disconnect")
		}
		c.close()
	}
	if err := a.store.Clear(ctx); err != nil {
		a.Logger.WithError(err).Warn("Failed to clear relay session")
	}
}
