package ledger

import (
	"context"
	"fmt"
)

// SeedBalance is a test helper that opens walletID and funds it through a
// deposit so the transaction log stays reconciled.
func SeedBalance(s Store, walletID string, amount int64) {
	ctx := context.Background()
	if _, err := s.Open(ctx, walletID); err != nil {
		panic(fmt.Sprintf("seed %s: %v", walletID, err))
	}
	if amount <= 0 {
		return
	}
	if _, err := s.Deposit(ctx, walletID, amount, ""); err != nil {
		panic(fmt.Sprintf("seed %s: %v", walletID, err))
	}
}
