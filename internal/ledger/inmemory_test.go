package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
)

func TestInMemoryLedger_DepositAppendsEntry(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()

	if _, err := l.Open(ctx, "wallet-a"); err != nil {
		t.Fatalf("open wallet: %v", err)
	}

	res, err := l.Deposit(ctx, "wallet-a", 1_000, "req-1")
	if err != nil {
		t.Fatalf("deposit failed: %v", err)
	}
	if res.Balance != 1_000 {
		t.Fatalf("expected balance 1000, got %d", res.Balance)
	}

	entries, err := l.Entries(ctx, "wallet-a", 0)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].Kind != EntryDeposit || entries[0].Amount != 1_000 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}

func TestInMemoryLedger_DuplicateDeposit(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.Open(ctx, "wallet-a")

	first, err := l.Deposit(ctx, "wallet-a", 500, "dup")
	if err != nil {
		t.Fatalf("initial deposit failed: %v", err)
	}
	again, err := l.Deposit(ctx, "wallet-a", 500, "dup")
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if again.EntryID != first.EntryID {
		t.Fatalf("expected original entry %d, got %d", first.EntryID, again.EntryID)
	}

	w, _ := l.Wallet(ctx, "wallet-a")
	if w.Balance != 500 {
		t.Fatalf("duplicate deposit changed balance: %d", w.Balance)
	}
}

func TestInMemoryLedger_RequestIDScopedToWallet(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.Open(ctx, "wallet-a")
	l.Open(ctx, "wallet-b")

	if _, err := l.Deposit(ctx, "wallet-a", 700, "req-1"); err != nil {
		t.Fatalf("deposit to wallet-a: %v", err)
	}
	res, err := l.Deposit(ctx, "wallet-b", 50, "req-1")
	if err != nil {
		t.Fatalf("same request id on another wallet must be accepted, got %v", err)
	}
	if res.WalletID != "wallet-b" || res.Balance != 50 {
		t.Fatalf("unexpected result: %+v", res)
	}

	a, _ := l.Wallet(ctx, "wallet-a")
	b, _ := l.Wallet(ctx, "wallet-b")
	if a.Balance != 700 || b.Balance != 50 {
		t.Fatalf("unexpected balances: a=%d b=%d", a.Balance, b.Balance)
	}
}

func TestInMemoryLedger_RejectsInvalidInput(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.Open(ctx, "wallet-a")

	if _, err := l.Deposit(ctx, "wallet-a", 0, ""); !IsValidation(err) {
		t.Fatalf("expected validation error for zero deposit, got %v", err)
	}
	if _, err := l.Deposit(ctx, "missing", 10, ""); !errors.Is(err, ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
	if _, err := l.TryDebit(ctx, "wallet-a", -5, "ref"); !IsValidation(err) {
		t.Fatalf("expected validation error for negative debit, got %v", err)
	}
}

func TestInMemoryLedger_TryDebitInsufficient(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	SeedBalance(l, "wallet-a", 300)

	res, err := l.TryDebit(ctx, "wallet-a", 500, "wd-1")
	if err != nil {
		t.Fatalf("try debit: %v", err)
	}
	if res.OK {
		t.Fatal("expected debit to be refused")
	}
	if res.Balance != 300 {
		t.Fatalf("expected observed balance 300, got %d", res.Balance)
	}
	if _, err := l.Hold(ctx, "wd-1"); !errors.Is(err, ErrHoldNotFound) {
		t.Fatalf("refused debit must not leave a hold, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentDebits(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	SeedBalance(l, "wallet-a", 500)

	const workers = 10
	var succeeded int64

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := l.TryDebit(ctx, "wallet-a", 100, fmt.Sprintf("wd-%d", i))
			if err != nil {
				t.Errorf("debit %d failed: %v", i, err)
				return
			}
			if res.OK {
				atomic.AddInt64(&succeeded, 1)
			}
		}(i)
	}
	wg.Wait()

	if succeeded != 5 {
		t.Fatalf("expected exactly 5 successful debits, got %d", succeeded)
	}
	w, _ := l.Wallet(ctx, "wallet-a")
	if w.Balance != 0 {
		t.Fatalf("expected balance 0, got %d", w.Balance)
	}

	report, err := Reconcile(ctx, l, "wallet-a")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Balanced || report.InFlight != 500 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestInMemoryLedger_TryDebitIsIdempotentPerReference(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	SeedBalance(l, "wallet-a", 1_000)

	if _, err := l.TryDebit(ctx, "wallet-a", 400, "wd-1"); err != nil {
		t.Fatalf("first debit: %v", err)
	}
	res, err := l.TryDebit(ctx, "wallet-a", 400, "wd-1")
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if res.Balance != 600 {
		t.Fatalf("expected balance 600 after single debit, got %d", res.Balance)
	}
}

func TestInMemoryLedger_CreditReleasesHold(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	SeedBalance(l, "wallet-a", 1_000)

	if _, err := l.TryDebit(ctx, "wallet-a", 700, "wd-1"); err != nil {
		t.Fatalf("debit: %v", err)
	}

	if _, err := l.Credit(ctx, "wallet-a", 500, "wd-1"); !errors.Is(err, ErrHoldMismatch) {
		t.Fatalf("expected mismatch for wrong amount, got %v", err)
	}

	balance, err := l.Credit(ctx, "wallet-a", 700, "wd-1")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	if balance != 1_000 {
		t.Fatalf("expected balance restored to 1000, got %d", balance)
	}

	if _, err := l.Credit(ctx, "wallet-a", 700, "wd-1"); !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected second credit to be a duplicate, got %v", err)
	}

	h, _ := l.Hold(ctx, "wd-1")
	if h.State != HoldReleased {
		t.Fatalf("expected released hold, got %s", h.State)
	}

	report, _ := Reconcile(ctx, l, "wallet-a")
	if !report.Balanced {
		t.Fatalf("ledger not reconciled after refund: %+v", report)
	}
}

func TestInMemoryLedger_SettleLogsWithdrawal(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	SeedBalance(l, "wallet-a", 1_000)

	if _, err := l.TryDebit(ctx, "wallet-a", 250, "wd-1"); err != nil {
		t.Fatalf("debit: %v", err)
	}

	e, err := l.Settle(ctx, "wd-1", "bank-42")
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if e.Amount != -250 || e.Kind != EntryWithdrawal {
		t.Fatalf("unexpected entry: %+v", e)
	}

	again, err := l.Settle(ctx, "wd-1", "bank-42")
	if !errors.Is(err, ErrDuplicateTransaction) || again.ID != e.ID {
		t.Fatalf("expected duplicate settle returning entry %d, got %+v (%v)", e.ID, again, err)
	}

	if _, err := l.Credit(ctx, "wallet-a", 250, "wd-1"); !errors.Is(err, ErrHoldSettled) {
		t.Fatalf("expected settled hold to refuse credit, got %v", err)
	}

	h, _ := l.Hold(ctx, "wd-1")
	if h.BankReference != "bank-42" {
		t.Fatalf("expected bank reference to be recorded, got %q", h.BankReference)
	}

	report, _ := Reconcile(ctx, l, "wallet-a")
	if !report.Balanced || report.Balance != 750 || report.InFlight != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
}

func TestInMemoryLedger_EntriesNewestFirst(t *testing.T) {
	l := NewInMemory()
	ctx := context.Background()
	l.Open(ctx, "wallet-a")

	for i := 1; i <= 3; i++ {
		if _, err := l.Deposit(ctx, "wallet-a", int64(i*100), ""); err != nil {
			t.Fatalf("deposit %d: %v", i, err)
		}
	}

	entries, err := l.Entries(ctx, "wallet-a", 2)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 2 || entries[0].Amount != 300 || entries[1].Amount != 200 {
		t.Fatalf("unexpected entries: %+v", entries)
	}
}
