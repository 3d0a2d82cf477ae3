package funding

import "fmt"

// Step labels used in error messages.
const (
	stepContract = "Contract creation"
	stepApproval = "USDC approval"
	stepDeposit  = "Deposit"
)

// CreationError is any failure of the contract creation call. Its message is
// always "Contract creation failed"; Reason carries the server's explanation
// when one was given.
type CreationError struct {
	Status int
	Reason string
	Err    error
}

func (e *CreationError) Error() string { return "Contract creation failed" }

func (e *CreationError) Unwrap() error { return e.Err }

// ConfirmationTimeoutError means the wait for a receipt came back empty:
// the transaction timed out, was dropped, or reverted.
type ConfirmationTimeoutError struct {
	Step   string
	TxHash string
}

func (e *ConfirmationTimeoutError) Error() string {
	return fmt.Sprintf("%s timed out or failed - cannot proceed without confirmation", e.Step)
}

// ConfirmationFailedError means the wait itself errored.
type ConfirmationFailedError struct {
	Step   string
	TxHash string
	Err    error
}

func (e *ConfirmationFailedError) Error() string {
	return fmt.Sprintf("%s confirmation failed: %v", e.Step, e.Err)
}

func (e *ConfirmationFailedError) Unwrap() error { return e.Err }
