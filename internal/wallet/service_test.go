package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/congo-pay/walletd/internal/ledger"
)

func TestServiceCreateAndBalance(t *testing.T) {
	led := ledger.NewInMemory()
	svc := NewService(led)

	ctx := context.Background()
	wallet, err := svc.Create(ctx, CreateInput{})
	if err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	if wallet.ID == "" {
		t.Fatal("expected generated wallet id")
	}

	if _, err := svc.Deposit(ctx, DepositInput{WalletID: wallet.ID, Amount: 2_500}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	balance, err := svc.Balance(ctx, wallet.ID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount != 2_500 {
		t.Fatalf("expected balance 2500, got %d", balance.Amount)
	}
	if balance.Revision != 1 {
		t.Fatalf("expected revision 1, got %d", balance.Revision)
	}
}

func TestServiceCreateIsIdempotent(t *testing.T) {
	svc := NewService(ledger.NewInMemory())
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreateInput{ID: "wallet-a"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Deposit(ctx, DepositInput{WalletID: "wallet-a", Amount: 100}); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	again, err := svc.Create(ctx, CreateInput{ID: "wallet-a"})
	if err != nil {
		t.Fatalf("create again: %v", err)
	}
	if again.Balance != 100 {
		t.Fatalf("re-creating must not reset the balance, got %d", again.Balance)
	}
}

func TestServiceDepositErrors(t *testing.T) {
	svc := NewService(ledger.NewInMemory())
	ctx := context.Background()
	svc.Create(ctx, CreateInput{ID: "wallet-a"})

	if _, err := svc.Deposit(ctx, DepositInput{WalletID: "wallet-a", Amount: -10}); !ledger.IsValidation(err) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := svc.Deposit(ctx, DepositInput{WalletID: "unknown", Amount: 10}); !errors.Is(err, ledger.ErrWalletNotFound) {
		t.Fatalf("expected wallet not found, got %v", err)
	}
}

func TestServiceTransactionsAndReconcile(t *testing.T) {
	led := ledger.NewInMemory()
	svc := NewService(led)
	ctx := context.Background()
	ledger.SeedBalance(led, "wallet-a", 500)

	if _, err := svc.Deposit(ctx, DepositInput{WalletID: "wallet-a", Amount: 1_000, RequestID: "dep-1"}); err != nil {
		t.Fatalf("deposit: %v", err)
	}

	entries, err := svc.Transactions(ctx, "wallet-a", 0)
	if err != nil {
		t.Fatalf("transactions: %v", err)
	}
	if len(entries) != 2 || entries[0].Reference != "dep-1" {
		t.Fatalf("unexpected entries: %+v", entries)
	}

	report, err := svc.Reconcile(ctx, "wallet-a")
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if !report.Balanced || report.Balance != 1_500 {
		t.Fatalf("unexpected report: %+v", report)
	}
}
