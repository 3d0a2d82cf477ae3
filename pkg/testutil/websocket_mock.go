package testutil

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet/relay"
)

// MockRelayServer plays both the relay and the paired wallet: it approves
// pairings and answers forwarded requests with a FakeWallet.
type MockRelayServer struct {
	server   *httptest.Server
	upgrader websocket.Upgrader
	logger   logging.Logger

	Wallet *FakeWallet

	// Behaviour knobs, read when a message arrives.
	ProjectID     string
	RejectPairing bool
	IgnorePairing bool

	mu       sync.Mutex
	sessions map[string]bool
	conns    map[*mockRelayConn]bool
	pairings chan string
	requests []relay.Message
}

type mockRelayConn struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *mockRelayConn) write(m relay.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)) //nolint:errcheck // test utility
	return c.ws.WriteJSON(m)
}

// NewMockRelayServer starts a relay fronting w.
func NewMockRelayServer(w *FakeWallet) *MockRelayServer {
	mock := &MockRelayServer{
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:   logging.NewDiscardLogger(),
		Wallet:   w,
		sessions: make(map[string]bool),
		conns:    make(map[*mockRelayConn]bool),
		pairings: make(chan string, 16),
	}
	mock.server = httptest.NewServer(http.HandlerFunc(mock.handleWebSocket))
	return mock
}

// URL returns the ws:// URL of the relay.
func (m *MockRelayServer) URL() string {
	return strings.Replace(m.server.URL, "http://", "ws://", 1)
}

// Close shuts the relay down.
func (m *MockRelayServer) Close() {
	m.mu.Lock()
	for c := range m.conns {
		_ = c.ws.Close()
	}
	m.mu.Unlock()
	m.server.Close()
}

// Pairings yields each topic a dapp asked to pair.
func (m *MockRelayServer) Pairings() <-chan string {
	return m.pairings
}

// HasSession reports whether topic is an approved, live session.
func (m *MockRelayServer) HasSession(topic string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sessions[topic]
}

// Requests returns every forwarded session request.
func (m *MockRelayServer) Requests() []relay.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]relay.Message(nil), m.requests...)
}

// EndSession simulates the wallet disconnecting topic.
func (m *MockRelayServer) EndSession(topic string) {
	m.mu.Lock()
	delete(m.sessions, topic)
	conns := make([]*mockRelayConn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()
	for _, c := range conns {
		_ = c.write(relay.Message{Type: relay.MsgDelete, Topic: topic}) //nolint:errcheck // test utility
	}
}

// ChangeChain simulates the user switching networks inside the wallet.
func (m *MockRelayServer) ChangeChain(topic string, chainID int64) {
	m.mu.Lock()
	conns := make([]*mockRelayConn, 0, len(m.conns))
	for c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()
	for _, c := range conns {
		_ = c.write(relay.Message{Type: relay.MsgEvent, Topic: topic, Event: relay.EventChainChanged, ChainID: chainID}) //nolint:errcheck // test utility
	}
}

func (m *MockRelayServer) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if m.ProjectID != "" && r.URL.Query().Get("projectId") != m.ProjectID {
		http.Error(w, "unknown project", http.StatusUnauthorized)
		return
	}
	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		m.logger.WithError(err).Error("Failed to upgrade relay connection")
		return
	}
	c := &mockRelayConn{ws: ws}
	m.mu.Lock()
	m.conns[c] = true
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.conns, c)
		m.mu.Unlock()
		_ = ws.Close()
	}()

	for {
		var msg relay.Message
		if err := ws.ReadJSON(&msg); err != nil {
			return
		}
		m.handleMessage(r.Context(), c, msg)
	}
}

func (m *MockRelayServer) approval(topic string) relay.Message {
	m.Wallet.mu.Lock()
	m.Wallet.Authorized = true
	chainID := m.Wallet.ChainID
	m.Wallet.mu.Unlock()
	return relay.Message{
		Type:     relay.MsgApprove,
		Topic:    topic,
		Accounts: []string{strings.ToLower(m.Wallet.Address)},
		ChainID:  chainID,
	}
}

func (m *MockRelayServer) handleMessage(ctx context.Context, c *mockRelayConn, msg relay.Message) {
	switch msg.Type {
	case relay.MsgPair:
		select {
		case m.pairings <- msg.Topic:
		default:
		}
		switch {
		case m.IgnorePairing:
		case m.RejectPairing:
			_ = c.write(relay.Message{Type: relay.MsgReject, Topic: msg.Topic, Reason: "User rejected pairing"}) //nolint:errcheck // test utility
		default:
			m.mu.Lock()
			m.sessions[msg.Topic] = true
			m.mu.Unlock()
			_ = c.write(m.approval(msg.Topic)) //nolint:errcheck // test utility
		}

	case relay.MsgResume:
		if m.HasSession(msg.Topic) {
			_ = c.write(m.approval(msg.Topic)) //nolint:errcheck // test utility
			return
		}
		_ = c.write(relay.Message{Type: relay.MsgReject, Topic: msg.Topic, Reason: "session expired"}) //nolint:errcheck // test utility

	case relay.MsgDelete:
		m.mu.Lock()
		delete(m.sessions, msg.Topic)
		m.mu.Unlock()

	case relay.MsgRequest:
		m.mu.Lock()
		m.requests = append(m.requests, msg)
		m.mu.Unlock()
		resp := relay.Message{Type: relay.MsgResponse, Topic: msg.Topic, ID: msg.ID}
		params, err := msg.DecodeParams()
		var result json.RawMessage
		if err == nil {
			result, err = m.Wallet.Request(ctx, msg.Method, params...)
		}
		if err != nil {
			var rpcErr *wallet.RPCError
			if !errors.As(err, &rpcErr) {
				rpcErr = &wallet.RPCError{Code: -32000, Message: err.Error()}
			}
			resp.Error = rpcErr
		} else {
			resp.Result = result
		}
		_ = c.write(resp) //nolint:errcheck // test utility
	}
}
