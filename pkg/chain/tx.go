package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// TxRequest is a transaction a wallet is asked to sign or send.
type TxRequest struct {
	From  string
	To    string
	Data  []byte
	Value *big.Int
	Gas   uint64
}

// TxObject is the JSON shape of eth_sendTransaction / eth_signTransaction params.
type TxObject struct {
	From  string `json:"from,omitempty"`
	To    string `json:"to,omitempty"`
	Data  string `json:"data,omitempty"`
	Value string `json:"value,omitempty"`
	Gas   string `json:"gas,omitempty"`
}

// Object renders the request for a JSON-RPC call.
func (t TxRequest) Object() TxObject {
	obj := TxObject{From: t.From, To: t.To}
	if len(t.Data) > 0 {
		obj.Data = hexutil.Encode(t.Data)
	}
	if t.Value != nil && t.Value.Sign() > 0 {
		obj.Value = hexutil.EncodeBig(t.Value)
	}
	if t.Gas > 0 {
		obj.Gas = hexutil.EncodeUint64(t.Gas)
	}
	return obj
}

// Request parses a JSON-RPC transaction object.
func (o TxObject) Request() (TxRequest, error) {
	req := TxRequest{From: o.From, To: o.To}
	if o.To != "" && !common.IsHexAddress(o.To) {
		return TxRequest{}, fmt.Errorf("invalid to address %q", o.To)
	}
	if o.Data != "" {
		data, err := hexutil.Decode(o.Data)
		if err != nil {
			return TxRequest{}, fmt.Errorf("invalid data: %w", err)
		}
		req.Data = data
	}
	if o.Value != "" {
		value, err := hexutil.DecodeBig(o.Value)
		if err != nil {
			return TxRequest{}, fmt.Errorf("invalid value: %w", err)
		}
		req.Value = value
	}
	if o.Gas != "" {
		gas, err := hexutil.DecodeUint64(o.Gas)
		if err != nil {
			return TxRequest{}, fmt.Errorf("invalid gas: %w", err)
		}
		req.Gas = gas
	}
	return req, nil
}
