package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
)

// relayProvider forwards EIP-1193 requests to the paired wallet. Accounts
// and chain id come from the approved session and later session events, so
// reading them never costs a round trip.
type relayProvider struct {
	c     *conn
	topic string

	mu       sync.RWMutex
	accounts []string
	chainID  int64
}

func newRelayProvider(c *conn, topic string, approval Message) *relayProvider {
	return &relayProvider{c: c, topic: topic, accounts: approval.Accounts, chainID: approval.ChainID}
}

func (p *relayProvider) Request(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	switch method {
	case "eth_accounts", "eth_requestAccounts":
		p.mu.RLock()
		defer p.mu.RUnlock()
		accounts := p.accounts
		if accounts == nil {
			accounts = []string{}
		}
		return json.Marshal(accounts)
	case "eth_chainId":
		p.mu.RLock()
		defer p.mu.RUnlock()
		return json.Marshal(hexutil.EncodeUint64(uint64(p.chainID)))
	}

	result, err := p.c.request(ctx, p.topic, method, params)
	if err != nil {
		return nil, err
	}
	if method == "wallet_switchEthereumChain" || method == "wallet_addEthereumChain" {
		if id, ok := chainIDParam(params); ok {
			p.setChain(id)
		}
	}
	return result, nil
}

func (p *relayProvider) setChain(id int64) {
	p.mu.Lock()
	p.chainID = id
	p.mu.Unlock()
}

func (p *relayProvider) apply(m Message) {
	switch m.Event {
	case EventChainChanged:
		p.setChain(m.ChainID)
	case EventAccountsChanged:
		p.mu.Lock()
		p.accounts = m.Accounts
		p.mu.Unlock()
	}
}

func chainIDParam(params []any) (int64, bool) {
	if len(params) == 0 {
		return 0, false
	}
	raw, err := json.Marshal(params[0])
	if err != nil {
		return 0, false
	}
	var p struct {
		ChainID string `json:"chainId"`
	}
	if json.Unmarshal(raw, &p) != nil {
		return 0, false
	}
	id, err := chain.ParseChainID(p.ChainID)
	return id, err == nil
}
