package withdrawal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletd/internal/clock"
	"github.com/congo-pay/walletd/internal/ledger"
)

// LocalLayout is the wall-clock format accepted alongside RFC 3339.
const LocalLayout = "2006-01-02 15:04:05"

// Service accepts withdrawal requests and exposes their status. It never touches balances.
type Service struct {
	queue   Queue
	wallets ledger.Store
	clock   clock.Clock
}

// NewService builds a scheduling service.
func NewService(queue Queue, wallets ledger.Store, c clock.Clock) *Service {
	if c == nil {
		c = clock.Real()
	}
	return &Service{queue: queue, wallets: wallets, clock: c}
}

// ScheduleInput captures a withdrawal request. ID is generated when empty.
type ScheduleInput struct {
	ID           string
	WalletID     string
	Amount       int64
	ScheduledFor time.Time
}

// Schedule validates the request and enqueues a pending withdrawal. Resubmitting
// an existing id returns the stored record without error, even once its
// scheduled time has passed.
func (s *Service) Schedule(ctx context.Context, input ScheduleInput) (ScheduledWithdrawal, error) {
	id := strings.TrimSpace(input.ID)
	if id != "" {
		stored, err := s.queue.Find(ctx, id)
		switch {
		case err == nil:
			if !sameRequest(stored, ScheduledWithdrawal{WalletID: input.WalletID, Amount: input.Amount}) {
				return stored, fmt.Errorf("schedule withdrawal %s: %w", id, ErrIDConflict)
			}
			return stored, nil
		case !errors.Is(err, ErrNotFound):
			return ScheduledWithdrawal{}, fmt.Errorf("find withdrawal %s: %w", id, err)
		}
	}

	now := s.clock.Now()
	if input.Amount <= 0 {
		return ScheduledWithdrawal{}, &ledger.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if !input.ScheduledFor.After(now) {
		return ScheduledWithdrawal{}, &ledger.ValidationError{Field: "scheduled_for", Reason: "must be in the future"}
	}
	if _, err := s.wallets.Wallet(ctx, input.WalletID); err != nil {
		return ScheduledWithdrawal{}, err
	}

	if id == "" {
		id = uuid.NewString()
	}

	w, err := s.queue.Enqueue(ctx, ScheduledWithdrawal{
		ID:           id,
		WalletID:     input.WalletID,
		Amount:       input.Amount,
		ScheduledFor: input.ScheduledFor.UTC(),
		CreatedAt:    now,
	})
	if errors.Is(err, ErrDuplicateID) {
		return w, nil
	}
	if err != nil {
		return w, fmt.Errorf("enqueue withdrawal %s: %w", id, err)
	}
	return w, nil
}

// Find returns the current state of a withdrawal.
func (s *Service) Find(ctx context.Context, id string) (ScheduledWithdrawal, error) {
	return s.queue.Find(ctx, id)
}

// ParseScheduledFor accepts RFC 3339 timestamps, or LocalLayout interpreted in loc.
func ParseScheduledFor(raw string, loc *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, &ledger.ValidationError{Field: "scheduled_for", Reason: "is required"}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if loc == nil {
		loc = time.UTC
	}
	t, err := time.ParseInLocation(LocalLayout, raw, loc)
	if err != nil {
		return time.Time{}, &ledger.ValidationError{
			Field:  "scheduled_for",
			Reason: fmt.Sprintf("expected RFC 3339 or %q", LocalLayout),
		}
	}
	return t.UTC(), nil
}
