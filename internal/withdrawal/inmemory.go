package withdrawal

import (
	"context"
	"sync"
	"time"

	"github.com/congo-pay/walletd/internal/clock"
)

type inMemoryQueue struct {
	mu           sync.Mutex
	records      map[string]*ScheduledWithdrawal
	clock        clock.Clock
	reclaimAfter time.Duration
}

// NewInMemory builds a mutex-guarded queue. Records left processing for longer
// than reclaimAfter become claimable again.
func NewInMemory(c clock.Clock, reclaimAfter time.Duration) Queue {
	return &inMemoryQueue{
		records:      make(map[string]*ScheduledWithdrawal),
		clock:        c,
		reclaimAfter: reclaimAfter,
	}
}

func (q *inMemoryQueue) Enqueue(_ context.Context, w ScheduledWithdrawal) (ScheduledWithdrawal, error) {
	now := q.clock.Now()
	if w.CreatedAt.IsZero() {
		w.CreatedAt = now
	}
	if err := validateNew(w); err != nil {
		return ScheduledWithdrawal{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if existing, ok := q.records[w.ID]; ok {
		if !sameRequest(*existing, w) {
			return *existing, ErrIDConflict
		}
		return *existing, ErrDuplicateID
	}

	w.Status = StatusPending
	w.AttemptCount = 0
	w.LastError = ""
	w.BankReference = ""
	w.ClaimedAt = nil
	w.ResolvedAt = nil
	w.UpdatedAt = w.CreatedAt
	stored := w
	q.records[w.ID] = &stored
	return stored, nil
}

func (q *inMemoryQueue) ClaimDue(_ context.Context, now time.Time, limit int) ([]ScheduledWithdrawal, error) {
	if limit <= 0 {
		return nil, nil
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	staleBefore := now.Add(-q.reclaimAfter)
	var due []ScheduledWithdrawal
	for _, r := range q.records {
		switch {
		case r.Status == StatusPending && !r.ScheduledFor.After(now):
			due = append(due, *r)
		case r.Status == StatusProcessing && r.ClaimedAt != nil && !r.ClaimedAt.After(staleBefore):
			due = append(due, *r)
		}
	}

	sortClaimed(due)
	if len(due) > limit {
		due = due[:limit]
	}

	claimed := make([]ScheduledWithdrawal, 0, len(due))
	for _, d := range due {
		r := q.records[d.ID]
		claimedAt := now
		r.Status = StatusProcessing
		r.ClaimedAt = &claimedAt
		r.AttemptCount++
		r.UpdatedAt = now
		claimed = append(claimed, *r)
	}
	return claimed, nil
}

func (q *inMemoryQueue) Resolve(_ context.Context, id string, outcome Outcome) (ScheduledWithdrawal, error) {
	if err := outcome.validate(); err != nil {
		return ScheduledWithdrawal{}, err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.records[id]
	if !ok {
		return ScheduledWithdrawal{}, ErrNotFound
	}
	if r.Status != StatusProcessing {
		return *r, ErrInvalidTransition
	}

	now := q.clock.Now()
	r.Status = outcome.Status
	r.BankReference = outcome.BankReference
	r.LastError = outcome.Reason
	r.ResolvedAt = &now
	r.UpdatedAt = now
	return *r, nil
}

func (q *inMemoryQueue) Find(_ context.Context, id string) (ScheduledWithdrawal, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	r, ok := q.records[id]
	if !ok {
		return ScheduledWithdrawal{}, ErrNotFound
	}
	return *r, nil
}
