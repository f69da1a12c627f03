package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrWalletNotFound is returned for operations on an unknown wallet id.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrDuplicateTransaction indicates the provided reference was already applied
	// and therefore the operation should be treated as idempotent. It is returned
	// together with the result of the original operation.
	ErrDuplicateTransaction = errors.New("duplicate transaction")

	// ErrHoldNotFound is returned when no debit was recorded for a reference.
	ErrHoldNotFound = errors.New("hold not found")

	// ErrHoldSettled is returned when crediting a debit whose payout already completed.
	ErrHoldSettled = errors.New("hold already settled")

	// ErrHoldReleased is returned when settling a debit that was already refunded.
	ErrHoldReleased = errors.New("hold already released")

	// ErrHoldMismatch is returned when a credit does not match the recorded debit.
	ErrHoldMismatch = errors.New("hold does not match credit")
)

// ValidationError reports a request rejected synchronously before touching any state.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

func requirePositive(amount int64) error {
	if amount <= 0 {
		return &ValidationError{Field: "amount", Reason: "must be positive"}
	}
	return nil
}

// EntryKind classifies transaction log entries.
type EntryKind string

const (
	EntryDeposit    EntryKind = "deposit"
	EntryWithdrawal EntryKind = "withdrawal"
	EntryRefund     EntryKind = "refund"
)

// HoldState tracks the lifecycle of a conditional debit.
type HoldState string

const (
	HoldActive   HoldState = "active"
	HoldSettled  HoldState = "settled"
	HoldReleased HoldState = "released"
)

// Wallet is the balance-holding entity. Balance is in the smallest currency unit.
type Wallet struct {
	ID        string    `json:"id"`
	Balance   int64     `json:"balance"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entry is an immutable record of a completed balance change.
type Entry struct {
	ID        int64     `json:"id"`
	WalletID  string    `json:"wallet_id"`
	Amount    int64     `json:"amount"`
	Kind      EntryKind `json:"kind"`
	Reference string    `json:"reference"`
	CreatedAt time.Time `json:"created_at"`
}

// Hold records a successful conditional debit keyed by the reference of the
// operation that requested it, so an interrupted payout can be resumed.
type Hold struct {
	Reference     string    `json:"reference"`
	WalletID      string    `json:"wallet_id"`
	Amount        int64     `json:"amount"`
	State         HoldState `json:"state"`
	BankReference string    `json:"bank_reference,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// DepositResult captures the outcome of a deposit.
type DepositResult struct {
	EntryID  int64
	WalletID string
	Amount   int64
	Balance  int64
	Revision int64
}

// DebitResult captures the outcome of a conditional debit. OK is false when the
// wallet balance did not cover the amount; Balance is the balance observed.
type DebitResult struct {
	OK       bool
	Balance  int64
	Revision int64
}

// Summary aggregates the audit trail of a wallet.
type Summary struct {
	// Logged is the sum of deposit and withdrawal entries.
	Logged int64
	// InFlight is the sum of active holds (debited, not yet logged).
	InFlight int64
}

// Store owns wallet balances. Balance is never mutated outside Deposit, TryDebit and Credit.
type Store interface {
	Open(ctx context.Context, walletID string) (Wallet, error)
	Wallet(ctx context.Context, walletID string) (Wallet, error)
	Deposit(ctx context.Context, walletID string, amount int64, requestID string) (DepositResult, error)
	TryDebit(ctx context.Context, walletID string, amount int64, reference string) (DebitResult, error)
	Credit(ctx context.Context, walletID string, amount int64, reference string) (int64, error)
	Settle(ctx context.Context, reference, bankReference string) (Entry, error)
	Hold(ctx context.Context, reference string) (Hold, error)
	Entries(ctx context.Context, walletID string, limit int) ([]Entry, error)
	Summary(ctx context.Context, walletID string) (Summary, error)
}

// Report is the result of reconciling a wallet balance against its audit trail.
type Report struct {
	WalletID string `json:"wallet_id"`
	Balance  int64  `json:"balance"`
	Logged   int64  `json:"logged"`
	InFlight int64  `json:"in_flight"`
	Balanced bool   `json:"balanced"`
}

// Reconcile checks that the balance equals the logged entries minus debits still in flight.
// Refund entries are left out: they reverse debits that were never logged.
func Reconcile(ctx context.Context, s Store, walletID string) (Report, error) {
	w, err := s.Wallet(ctx, walletID)
	if err != nil {
		return Report{}, err
	}

	sum, err := s.Summary(ctx, walletID)
	if err != nil {
		return Report{}, err
	}

	return Report{
		WalletID: walletID,
		Balance:  w.Balance,
		Logged:   sum.Logged,
		InFlight: sum.InFlight,
		Balanced: w.Balance == sum.Logged-sum.InFlight,
	}, nil
}
