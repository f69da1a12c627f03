package withdrawal

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/congo-pay/walletd/internal/ledger"
)

var (
	// ErrNotFound is returned for unknown withdrawal ids.
	ErrNotFound = errors.New("withdrawal not found")

	// ErrDuplicateID is returned together with the stored record when an id is enqueued twice.
	ErrDuplicateID = errors.New("withdrawal id already exists")

	// ErrIDConflict is returned when an existing id is resubmitted with a different payload.
	ErrIDConflict = errors.New("withdrawal id reused with different parameters")

	// ErrInvalidTransition is returned when resolving a record that is not processing.
	ErrInvalidTransition = errors.New("invalid withdrawal status transition")
)

// Status is the lifecycle state of a scheduled withdrawal.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ScheduledWithdrawal is a withdrawal request waiting for, or resolved by, the processor.
type ScheduledWithdrawal struct {
	ID            string     `json:"id"`
	WalletID      string     `json:"wallet_id"`
	Amount        int64      `json:"amount"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	Status        Status     `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	LastError     string     `json:"last_error,omitempty"`
	BankReference string     `json:"bank_reference,omitempty"`
	ClaimedAt     *time.Time `json:"claimed_at,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// Outcome is the terminal result handed to Resolve.
type Outcome struct {
	Status        Status
	BankReference string
	Reason        string
}

// Completed builds the outcome of a successful bank payout.
func Completed(bankReference string) Outcome {
	return Outcome{Status: StatusCompleted, BankReference: bankReference}
}

// Failed builds the outcome of a withdrawal that will not be paid out.
func Failed(reason string) Outcome {
	return Outcome{Status: StatusFailed, Reason: reason}
}

func (o Outcome) validate() error {
	switch o.Status {
	case StatusCompleted:
		return nil
	case StatusFailed:
		if o.Reason == "" {
			return &ledger.ValidationError{Field: "reason", Reason: "failed outcome requires a reason"}
		}
		return nil
	default:
		return &ledger.ValidationError{Field: "status", Reason: "outcome must be completed or failed"}
	}
}

// Queue owns the scheduled withdrawal lifecycle. Status changes only through ClaimDue and Resolve.
type Queue interface {
	Enqueue(ctx context.Context, w ScheduledWithdrawal) (ScheduledWithdrawal, error)
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledWithdrawal, error)
	Resolve(ctx context.Context, id string, outcome Outcome) (ScheduledWithdrawal, error)
	Find(ctx context.Context, id string) (ScheduledWithdrawal, error)
}

func validateNew(w ScheduledWithdrawal) error {
	if w.ID == "" {
		return &ledger.ValidationError{Field: "id", Reason: "is required"}
	}
	if w.WalletID == "" {
		return &ledger.ValidationError{Field: "wallet_id", Reason: "is required"}
	}
	if w.Amount <= 0 {
		return &ledger.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !w.ScheduledFor.After(w.CreatedAt) {
		return &ledger.ValidationError{Field: "scheduled_for", Reason: "must be in the future"}
	}
	return nil
}

// sameRequest reports whether a resubmission carries the payload of the stored record.
func sameRequest(stored, submitted ScheduledWithdrawal) bool {
	return stored.WalletID == submitted.WalletID && stored.Amount == submitted.Amount
}

// sortClaimed orders claims by due time, oldest first.
func sortClaimed(ws []ScheduledWithdrawal) {
	sort.Slice(ws, func(i, j int) bool {
		if !ws[i].ScheduledFor.Equal(ws[j].ScheduledFor) {
			return ws[i].ScheduledFor.Before(ws[j].ScheduledFor)
		}
		return ws[i].ID < ws[j].ID
	})
}
