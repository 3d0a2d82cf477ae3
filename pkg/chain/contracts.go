package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

const erc20ABIJSON = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable",
   "inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
   "outputs":[{"name":"","type":"bool"}]}
]`

const escrowABIJSON = `[
  {"type":"function","name":"depositFunds","stateMutability":"nonpayable","inputs":[],"outputs":[]},
  {"type":"function","name":"raiseDispute","stateMutability":"nonpayable","inputs":[],"outputs":[]}
]`

var (
	erc20ABI  = mustParseABI(erc20ABIJSON)
	escrowABI = mustParseABI(escrowABIJSON)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// ApproveCalldata packs ERC-20 approve(spender, amount).
func ApproveCalldata(spender string, amount *big.Int) ([]byte, error) {
	if !common.IsHexAddress(spender) {
		return nil, fmt.Errorf("invalid spender address %q", spender)
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("invalid approval amount")
	}
	return erc20ABI.Pack("approve", common.HexToAddress(spender), amount)
}

// DepositCalldata packs the escrow contract's depositFunds().
func DepositCalldata() ([]byte, error) {
	return escrowABI.Pack("depositFunds")
}

// DisputeCalldata packs the escrow contract's raiseDispute().
func DisputeCalldata() ([]byte, error) {
	return escrowABI.Pack("raiseDispute")
}

// Sender submits a transaction and returns its hash. Wallet adapters satisfy it.
type Sender interface {
	SendTransaction(ctx context.Context, tx TxRequest) (string, error)
}

// EscrowOps sends the token approval and escrow calls through a wallet.
type EscrowOps struct {
	sender Sender
}

// NewEscrowOps wraps a wallet capable of sending transactions.
func NewEscrowOps(sender Sender) *EscrowOps {
	return &EscrowOps{sender: sender}
}

// ApproveToken approves contractAddress to pull amount (decimal micro-units)
// of tokenAddress from the connected wallet.
func (o *EscrowOps) ApproveToken(ctx context.Context, contractAddress, amount, tokenAddress string) (string, error) {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok {
		return "", fmt.Errorf("invalid token amount %q", amount)
	}
	if !common.IsHexAddress(tokenAddress) {
		return "", fmt.Errorf("invalid token address %q", tokenAddress)
	}
	data, err := ApproveCalldata(contractAddress, value)
	if err != nil {
		return "", err
	}
	return o.sender.SendTransaction(ctx, TxRequest{To: tokenAddress, Data: data})
}

// DepositToContract calls depositFunds() on the escrow contract.
func (o *EscrowOps) DepositToContract(ctx context.Context, contractAddress string) (string, error) {
	return o.call(ctx, contractAddress, DepositCalldata)
}

// RaiseDispute calls raiseDispute() on the escrow contract.
func (o *EscrowOps) RaiseDispute(ctx context.Context, contractAddress string) (string, error) {
	return o.call(ctx, contractAddress, DisputeCalldata)
}

func (o *EscrowOps) call(ctx context.Context, contractAddress string, pack func() ([]byte, error)) (string, error) {
	if !common.IsHexAddress(contractAddress) {
		return "", fmt.Errorf("invalid contract address %q", contractAddress)
	}
	data, err := pack()
	if err != nil {
		return "", err
	}
	return o.sender.SendTransaction(ctx, TxRequest{To: contractAddress, Data: data})
}
