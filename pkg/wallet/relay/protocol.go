package relay

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/conduit-ucpi/webapp-sub000/pkg/wallet"
)

// Message types exchanged with the relay. The dapp publishes pair, resume,
// request and delete; the wallet answers with approve, reject, response,
// event and delete.
const (
	MsgPair     = "pair"
	MsgResume   = "session_resume"
	MsgApprove  = "session_approve"
	MsgReject   = "session_reject"
	MsgRequest  = "session_request"
	MsgResponse = "session_response"
	MsgEvent    = "session_event"
	MsgDelete   = "session_delete"
)

// Session events.
const (
	EventChainChanged    = "chainChanged"
	EventAccountsChanged = "accountsChanged"
)

// Message is the single envelope used on the relay socket.
type Message struct {
	Type     string           `json:"type"`
	Topic    string           `json:"topic"`
	ID       uint64           `json:"id,omitempty"`
	Method   string           `json:"method,omitempty"`
	Params   json.RawMessage  `json:"params,omitempty"`
	Result   json.RawMessage  `json:"result,omitempty"`
	Error    *wallet.RPCError `json:"error,omitempty"`
	Accounts []string         `json:"accounts,omitempty"`
	ChainID  int64            `json:"chainId,omitempty"`
	Event    string           `json:"event,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// DecodeParams splits Params into one value per positional argument.
func (m Message) DecodeParams() ([]any, error) {
	if len(m.Params) == 0 {
		return nil, nil
	}
	var params []any
	if err := json.Unmarshal(m.Params, &params); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	return params, nil
}

// PairingURI is what the wallet scans to join topic.
func PairingURI(topic, symKey, relayURL, projectID string) string {
	q := url.Values{}
	q.Set("relay-protocol", "irn")
	q.Set("symKey", symKey)
	q.Set("relay-url", relayURL)
	q.Set("projectId", projectID)
	return fmt.Sprintf("wc:%s@2?%s", topic, q.Encode())
}
