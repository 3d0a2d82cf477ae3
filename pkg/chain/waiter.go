package chain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
)

// ConfirmationTimeout is the fixed ceiling for waiting on one transaction.
const ConfirmationTimeout = 120 * time.Second

// ReceiptSource fetches receipts; *ethclient.Client satisfies it.
type ReceiptSource interface {
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// ReceiptWaiter polls for a transaction receipt until it lands or a timeout passes.
type ReceiptWaiter struct {
	source       ReceiptSource
	pollInterval time.Duration
	maxRPCErrors int
	logger       logging.Logger
}

// WaiterOption configures a ReceiptWaiter.
type WaiterOption func(*ReceiptWaiter)

// WithPollInterval sets how often the receipt is polled.
func WithPollInterval(d time.Duration) WaiterOption {
	return func(w *ReceiptWaiter) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithWaiterLogger sets the logger.
func WithWaiterLogger(l logging.Logger) WaiterOption {
	return func(w *ReceiptWaiter) { w.logger = logging.OrDiscard(l) }
}

// NewReceiptWaiter creates a waiter over source.
func NewReceiptWaiter(source ReceiptSource, opts ...WaiterOption) *ReceiptWaiter {
	w := &ReceiptWaiter{
		source:       source,
		pollInterval: 2 * time.Second,
		maxRPCErrors: 3,
		logger:       logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// WaitForTransaction returns the receipt once txHash is mined with success
// status. It returns (nil, nil) when the timeout passes or the transaction
// reverted, and an error when the RPC keeps failing or ctx is cancelled.
func (w *ReceiptWaiter) WaitForTransaction(ctx context.Context, txHash string, timeout time.Duration, contextID string) (*types.Receipt, error) {
	if timeout <= 0 {
		timeout = ConfirmationTimeout
	}
	hash := common.HexToHash(txHash)
	log := w.logger.WithFields(logging.Fields{"tx_hash": txHash, "context_id": contextID})

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	timedOut := func() (*types.Receipt, error) {
		log.WithField("timeout", timeout).Warn("Timed out waiting for transaction")
		return nil, nil
	}
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	rpcErrors := 0
	for {
		receipt, err := w.source.TransactionReceipt(waitCtx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status != types.ReceiptStatusSuccessful {
				log.WithField("block", receipt.BlockNumber).Warn("Transaction reverted")
				return nil, nil
			}
			log.WithField("block", receipt.BlockNumber).Debug("Transaction confirmed")
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			if waitCtx.Err() != nil {
				return timedOut()
			}
			rpcErrors++
			log.WithError(err).Warn("Receipt lookup failed")
			if rpcErrors >= w.maxRPCErrors {
				return nil, fmt.Errorf("receipt lookup: %w", err)
			}
		default:
			rpcErrors = 0
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return timedOut()
		case <-ticker.C:
		}
	}
}
