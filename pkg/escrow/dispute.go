// Package escrow holds buyer actions on an already funded escrow contract.
package escrow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/funding"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/session"
)

// DisputeOps submits the on-chain dispute; chain.EscrowOps satisfies it.
type DisputeOps interface {
	RaiseDispute(ctx context.Context, contractAddress string) (string, error)
}

// DisputeRequest identifies the contract twice: ContractID for the backend
// record and ContractAddress for the chain.
type DisputeRequest struct {
	ContractID      string
	ContractAddress string
	Reason          string
	RefundPercent   int
}

func (r DisputeRequest) Validate() error {
	if !common.IsHexAddress(r.ContractAddress) {
		return fmt.Errorf("invalid contract address %q", r.ContractAddress)
	}
	if strings.TrimSpace(r.Reason) == "" {
		return errors.New("dispute reason is required")
	}
	if r.RefundPercent < 0 || r.RefundPercent > 100 {
		return fmt.Errorf("refund percent must be between 0 and 100, got %d", r.RefundPercent)
	}
	return nil
}

// DisputeResult reports the confirmed transaction and whether the backend
// record was updated.
type DisputeResult struct {
	TxHash   string `json:"txHash" yaml:"txHash"`
	Notified bool   `json:"notified" yaml:"notified"`
}

type disputeNotice struct {
	Timestamp     int64  `json:"timestamp"`
	Reason        string `json:"reason"`
	RefundPercent int    `json:"refundPercent"`
}

type Disputes struct {
	fetcher funding.Fetcher
	ops     DisputeOps
	waiter  funding.Waiter
	logger  logging.Logger
	now     func() time.Time
}

func NewDisputes(fetcher funding.Fetcher, ops DisputeOps, waiter funding.Waiter, logger logging.Logger) *Disputes {
	return &Disputes{
		fetcher: fetcher,
		ops:     ops,
		waiter:  waiter,
		logger:  logging.OrDiscard(logger),
		now:     time.Now,
	}
}

// Raise disputes the contract on chain, waits for confirmation, then tells
// the backend. The backend notification is best effort: once the chain has
// the dispute, a failed notification is logged and Raise still succeeds.
func (d *Disputes) Raise(ctx context.Context, req DisputeRequest) (*DisputeResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	log := d.logger.WithFields(logging.Fields{
		"contract_address": req.ContractAddress,
		"contract_id":      req.ContractID,
	})

	txHash, err := d.ops.RaiseDispute(ctx, req.ContractAddress)
	if err != nil {
		return nil, err
	}
	receipt, err := d.waiter.WaitForTransaction(ctx, txHash, chain.ConfirmationTimeout, "dispute")
	if err != nil {
		return nil, &funding.ConfirmationFailedError{Step: "Dispute", TxHash: txHash, Err: err}
	}
	if receipt == nil {
		return nil, &funding.ConfirmationTimeoutError{Step: "Dispute", TxHash: txHash}
	}
	log.WithField("tx_hash", txHash).Info("Dispute confirmed on chain")

	res := &DisputeResult{TxHash: txHash}
	if req.ContractID == "" {
		return res, nil
	}
	if err := d.notify(ctx, req); err != nil {
		log.WithError(err).Warn("Failed to record dispute with backend")
		return res, nil
	}
	res.Notified = true
	return res, nil
}

func (d *Disputes) notify(ctx context.Context, req DisputeRequest) error {
	body, err := json.Marshal(disputeNotice{
		Timestamp:     d.now().UnixMilli(),
		Reason:        req.Reason,
		RefundPercent: req.RefundPercent,
	})
	if err != nil {
		return err
	}
	path := "/api/contracts/" + url.PathEscape(req.ContractID) + "/dispute"
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := d.fetcher.AuthenticatedFetch(ctx, http.MethodPatch, path, body, header)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := session.ParseErrorMessage(raw)
		if msg == "" {
			msg = resp.Status
		}
		return fmt.Errorf("dispute notification rejected: %s", msg)
	}
	return nil
}
