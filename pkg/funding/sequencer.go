// Package funding drives the three transactions that fund an escrow:
// contract creation, token approval and deposit. Each step waits for the
// previous one to confirm on chain so no two transactions from the wallet
// are ever in flight together.
package funding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/conduit-ucpi/webapp-sub000/pkg/chain"
	"github.com/conduit-ucpi/webapp-sub000/pkg/logging"
	"github.com/conduit-ucpi/webapp-sub000/pkg/session"
)

// CreatePath is the backend endpoint that deploys the escrow contract.
const CreatePath = "/api/chain/create-contract"

// Stage is reported to the progress callback as the sequence advances.
type Stage string

const (
	StageContractCreation     Stage = "contract_creation"
	StageContractConfirmation Stage = "contract_confirmation"
	StageContractCreated      Stage = "contract_created"
	StageUSDCApproval         Stage = "usdc_approval"
	StageApprovalConfirmation Stage = "approval_confirmation"
	StageDeposit              Stage = "deposit"
	StageDepositConfirmation  Stage = "deposit_confirmation"
	StageComplete             Stage = "complete"
)

// Request describes one funding attempt. Amount is in token micro-units.
type Request struct {
	TokenAddress    string `json:"tokenAddress" yaml:"tokenAddress"`
	Buyer           string `json:"buyer" yaml:"buyer"`
	Seller          string `json:"seller" yaml:"seller"`
	Amount          uint64 `json:"amount" yaml:"amount"`
	ExpiryTimestamp int64  `json:"expiryTimestamp" yaml:"expiryTimestamp"`
	Description     string `json:"description" yaml:"description"`
}

// Validate checks the request before any network call is made.
func (r Request) Validate() error {
	if !common.IsHexAddress(r.TokenAddress) {
		return fmt.Errorf("invalid token address %q", r.TokenAddress)
	}
	if r.Amount == 0 {
		return errors.New("amount must be greater than zero")
	}
	if r.ExpiryTimestamp <= 0 {
		return errors.New("expiry timestamp is required")
	}
	return nil
}

// Result is returned once the deposit has confirmed. ContractCreationTxHash
// is empty when the backend did not report one.
type Result struct {
	ContractAddress        string `json:"contractAddress" yaml:"contractAddress"`
	ContractCreationTxHash string `json:"contractCreationTxHash,omitempty" yaml:"contractCreationTxHash,omitempty"`
	ApprovalTxHash         string `json:"approvalTxHash" yaml:"approvalTxHash"`
	DepositTxHash          string `json:"depositTxHash" yaml:"depositTxHash"`
}

// Fetcher sends authenticated backend requests; unifiedauth.Provider
// satisfies it.
type Fetcher interface {
	AuthenticatedFetch(ctx context.Context, method, url string, body []byte, header http.Header) (*http.Response, error)
}

// TokenOps submits the approval and deposit transactions; chain.EscrowOps
// satisfies it.
type TokenOps interface {
	ApproveToken(ctx context.Context, contractAddress, amount, tokenAddress string) (string, error)
	DepositToContract(ctx context.Context, contractAddress string) (string, error)
}

// Waiter resolves to a receipt, or nil when the transaction did not confirm
// within timeout; chain.ReceiptWaiter satisfies it.
type Waiter interface {
	WaitForTransaction(ctx context.Context, txHash string, timeout time.Duration, contextID string) (*types.Receipt, error)
}

// Observer is told about stage transitions, failures and confirmation waits.
type Observer interface {
	StageReached(stage Stage)
	StepFailed(stage Stage)
	ConfirmationWaited(stage Stage, elapsed time.Duration, confirmed bool)
}

type Sequencer struct {
	fetcher  Fetcher
	ops      TokenOps
	waiter   Waiter
	logger   logging.Logger
	observer Observer
}

type Option func(*Sequencer)

func WithLogger(l logging.Logger) Option {
	return func(s *Sequencer) { s.logger = logging.OrDiscard(l) }
}

func WithObserver(o Observer) Option {
	return func(s *Sequencer) { s.observer = o }
}

func NewSequencer(fetcher Fetcher, ops TokenOps, waiter Waiter, opts ...Option) *Sequencer {
	s := &Sequencer{
		fetcher: fetcher,
		ops:     ops,
		waiter:  waiter,
		logger:  logging.NewDiscardLogger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type createResponse struct {
	ContractAddress string `json:"contractAddress"`
	TransactionHash string `json:"transactionHash"`
}

// run tracks the current stage so a failure is attributed to it.
type run struct {
	s          *Sequencer
	onProgress func(Stage)
	stage      Stage
}

func (r *run) enter(stage Stage) {
	r.stage = stage
	if r.s.observer != nil {
		r.s.observer.StageReached(stage)
	}
	if r.onProgress != nil {
		r.onProgress(stage)
	}
}

// Fund runs the sequence. onProgress may be nil. Any failure stops the
// sequence at the failing stage and is returned unchanged to the caller.
func (s *Sequencer) Fund(ctx context.Context, req Request, onProgress func(Stage)) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	r := &run{s: s, onProgress: onProgress}
	res, err := r.fund(ctx, req)
	if err != nil {
		if s.observer != nil {
			s.observer.StepFailed(r.stage)
		}
		s.logger.WithError(err).WithField("stage", r.stage).Warn("Funding sequence failed")
		return nil, err
	}
	return res, nil
}

func (r *run) fund(ctx context.Context, req Request) (*Result, error) {
	log := r.s.logger.WithField("token_address", req.TokenAddress)

	r.enter(StageContractCreation)
	created, err := r.s.createContract(ctx, req)
	if err != nil {
		return nil, err
	}
	res := &Result{ContractAddress: created.ContractAddress, ContractCreationTxHash: created.TransactionHash}
	log = log.WithField("contract_address", res.ContractAddress)

	if res.ContractCreationTxHash != "" {
		r.enter(StageContractConfirmation)
		if err := r.confirm(ctx, stepContract, res.ContractCreationTxHash, "contract-creation"); err != nil {
			return nil, err
		}
	} else {
		log.Info("No creation transaction hash returned; skipping confirmation")
	}
	r.enter(StageContractCreated)

	r.enter(StageUSDCApproval)
	amount := strconv.FormatUint(req.Amount, 10)
	res.ApprovalTxHash, err = r.s.ops.ApproveToken(ctx, res.ContractAddress, amount, req.TokenAddress)
	if err != nil {
		return nil, err
	}
	if res.ApprovalTxHash == "" {
		return nil, fmt.Errorf("%s returned no transaction hash", stepApproval)
	}
	log.WithField("tx_hash", res.ApprovalTxHash).Info("Token approval submitted")

	r.enter(StageApprovalConfirmation)
	if err := r.confirm(ctx, stepApproval, res.ApprovalTxHash, "usdc-approval"); err != nil {
		return nil, err
	}

	r.enter(StageDeposit)
	res.DepositTxHash, err = r.s.ops.DepositToContract(ctx, res.ContractAddress)
	if err != nil {
		return nil, err
	}
	if res.DepositTxHash == "" {
		return nil, fmt.Errorf("%s returned no transaction hash", stepDeposit)
	}
	log.WithField("tx_hash", res.DepositTxHash).Info("Deposit submitted")

	r.enter(StageDepositConfirmation)
	if err := r.confirm(ctx, stepDeposit, res.DepositTxHash, "deposit"); err != nil {
		return nil, err
	}

	r.enter(StageComplete)
	log.Info("Escrow funded")
	return res, nil
}

func (s *Sequencer) createContract(ctx context.Context, req Request) (*createResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, &CreationError{Err: err}
	}
	header := http.Header{}
	header.Set("Content-Type", "application/json")

	resp, err := s.fetcher.AuthenticatedFetch(ctx, http.MethodPost, CreatePath, body, header)
	if err != nil {
		return nil, &CreationError{Err: err}
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &CreationError{Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CreationError{Status: resp.StatusCode, Reason: session.ParseErrorMessage(raw)}
	}

	var out createResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &CreationError{Status: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.ContractAddress == "" {
		return nil, &CreationError{Status: resp.StatusCode, Reason: "response has no contractAddress"}
	}
	return &out, nil
}

// confirm waits up to chain.ConfirmationTimeout for txHash. A nil receipt
// and a failed wait are both fatal, reported differently.
func (r *run) confirm(ctx context.Context, step, txHash, contextID string) error {
	start := time.Now()
	receipt, err := r.s.waiter.WaitForTransaction(ctx, txHash, chain.ConfirmationTimeout, contextID)
	if r.s.observer != nil {
		r.s.observer.ConfirmationWaited(r.stage, time.Since(start), err == nil && receipt != nil)
	}
	if err != nil {
		return &ConfirmationFailedError{Step: step, TxHash: txHash, Err: err}
	}
	if receipt == nil {
		return &ConfirmationTimeoutError{Step: step, TxHash: txHash}
	}
	return nil
}
