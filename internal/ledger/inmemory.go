package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

type inMemoryLedger struct {
	mu       sync.RWMutex
	wallets  map[string]*Wallet
	entries  []Entry
	deposits map[string]DepositResult
	holds    map[string]*Hold
	seq      int64
}

// NewInMemory creates a concurrency-safe in-memory ledger useful for unit tests
// and single-process development.
func NewInMemory() Store {
	return &inMemoryLedger{
		wallets:  make(map[string]*Wallet),
		deposits: make(map[string]DepositResult),
		holds:    make(map[string]*Hold),
	}
}

func (l *inMemoryLedger) Open(_ context.Context, walletID string) (Wallet, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if w, ok := l.wallets[walletID]; ok {
		return *w, nil
	}

	now := time.Now().UTC()
	w := &Wallet{ID: walletID, CreatedAt: now, UpdatedAt: now}
	l.wallets[walletID] = w
	return *w, nil
}

func (l *inMemoryLedger) Wallet(_ context.Context, walletID string) (Wallet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	w, ok := l.wallets[walletID]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return *w, nil
}

func (l *inMemoryLedger) Deposit(_ context.Context, walletID string, amount int64, requestID string) (DepositResult, error) {
	if err := requirePositive(amount); err != nil {
		return DepositResult{}, err
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	key := depositKey(walletID, requestID)
	if res, exists := l.deposits[key]; exists {
		return res, ErrDuplicateTransaction
	}

	w, ok := l.wallets[walletID]
	if !ok {
		return DepositResult{}, ErrWalletNotFound
	}

	w.Balance += amount
	w.Revision++
	w.UpdatedAt = time.Now().UTC()

	entry := l.appendEntry(walletID, amount, EntryDeposit, requestID)
	res := DepositResult{
		EntryID:  entry.ID,
		WalletID: walletID,
		Amount:   amount,
		Balance:  w.Balance,
		Revision: w.Revision,
	}
	l.deposits[key] = res
	return res, nil
}

// depositKey scopes request ids to a wallet; two wallets may reuse one id.
func depositKey(walletID, requestID string) string {
	return walletID + ":" + requestID
}

func (l *inMemoryLedger) TryDebit(_ context.Context, walletID string, amount int64, reference string) (DebitResult, error) {
	if err := requirePositive(amount); err != nil {
		return DebitResult{}, err
	}
	if reference == "" {
		return DebitResult{}, &ValidationError{Field: "reference", Reason: "is required"}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.wallets[walletID]
	if !ok {
		return DebitResult{}, ErrWalletNotFound
	}

	if _, exists := l.holds[reference]; exists {
		return DebitResult{OK: true, Balance: w.Balance, Revision: w.Revision}, ErrDuplicateTransaction
	}

	if w.Balance < amount {
		return DebitResult{OK: false, Balance: w.Balance, Revision: w.Revision}, nil
	}

	now := time.Now().UTC()
	w.Balance -= amount
	w.Revision++
	w.UpdatedAt = now

	l.holds[reference] = &Hold{
		Reference: reference,
		WalletID:  walletID,
		Amount:    amount,
		State:     HoldActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	return DebitResult{OK: true, Balance: w.Balance, Revision: w.Revision}, nil
}

func (l *inMemoryLedger) Credit(_ context.Context, walletID string, amount int64, reference string) (int64, error) {
	if err := requirePositive(amount); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[reference]
	if !ok {
		return 0, ErrHoldNotFound
	}
	if h.WalletID != walletID || h.Amount != amount {
		return 0, fmt.Errorf("%w: hold %s is %d on %s", ErrHoldMismatch, reference, h.Amount, h.WalletID)
	}

	w, ok := l.wallets[walletID]
	if !ok {
		return 0, ErrWalletNotFound
	}

	switch h.State {
	case HoldReleased:
		return w.Balance, ErrDuplicateTransaction
	case HoldSettled:
		return w.Balance, ErrHoldSettled
	}

	now := time.Now().UTC()
	w.Balance += amount
	w.Revision++
	w.UpdatedAt = now

	h.State = HoldReleased
	h.UpdatedAt = now

	l.appendEntry(walletID, amount, EntryRefund, reference)
	return w.Balance, nil
}

func (l *inMemoryLedger) Settle(_ context.Context, reference, bankReference string) (Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	h, ok := l.holds[reference]
	if !ok {
		return Entry{}, ErrHoldNotFound
	}

	switch h.State {
	case HoldSettled:
		for _, e := range l.entries {
			if e.Kind == EntryWithdrawal && e.Reference == reference {
				return e, ErrDuplicateTransaction
			}
		}
		return Entry{}, ErrDuplicateTransaction
	case HoldReleased:
		return Entry{}, fmt.Errorf("settle %s: %w", reference, ErrHoldReleased)
	}

	h.State = HoldSettled
	h.BankReference = bankReference
	h.UpdatedAt = time.Now().UTC()

	return l.appendEntry(h.WalletID, -h.Amount, EntryWithdrawal, reference), nil
}

func (l *inMemoryLedger) Hold(_ context.Context, reference string) (Hold, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	h, ok := l.holds[reference]
	if !ok {
		return Hold{}, ErrHoldNotFound
	}
	return *h, nil
}

func (l *inMemoryLedger) Entries(_ context.Context, walletID string, limit int) ([]Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.wallets[walletID]; !ok {
		return nil, ErrWalletNotFound
	}

	var out []Entry
	for i := len(l.entries) - 1; i >= 0; i-- {
		if l.entries[i].WalletID != walletID {
			continue
		}
		out = append(out, l.entries[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (l *inMemoryLedger) Summary(_ context.Context, walletID string) (Summary, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if _, ok := l.wallets[walletID]; !ok {
		return Summary{}, ErrWalletNotFound
	}

	var sum Summary
	for _, e := range l.entries {
		if e.WalletID == walletID && e.Kind != EntryRefund {
			sum.Logged += e.Amount
		}
	}
	for _, h := range l.holds {
		if h.WalletID == walletID && h.State == HoldActive {
			sum.InFlight += h.Amount
		}
	}
	return sum, nil
}

// appendEntry must be called with l.mu held.
func (l *inMemoryLedger) appendEntry(walletID string, amount int64, kind EntryKind, reference string) Entry {
	l.seq++
	e := Entry{
		ID:        l.seq,
		WalletID:  walletID,
		Amount:    amount,
		Kind:      kind,
		Reference: reference,
		CreatedAt: time.Now().UTC(),
	}
	l.entries = append(l.entries, e)
	return e
}
