package wallet

import (
	"time"

	"github.com/congo-pay/walletd/internal/ledger"
)

type createRequest struct {
	ID string `json:"id" validate:"omitempty,max=64"`
}

// DepositRequest is the body of a deposit call.
type DepositRequest struct {
	Amount    int64  `json:"amount" validate:"required,gt=0"`
	RequestID string `json:"request_id" validate:"omitempty,max=64"`
}

type walletResponse struct {
	ID        string    `json:"id"`
	Balance   int64     `json:"balance"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
}

// DepositResponse reports the balance after a deposit.
type DepositResponse struct {
	EntryID  int64  `json:"entry_id"`
	WalletID string `json:"wallet_id"`
	Amount   int64  `json:"amount"`
	Balance  int64  `json:"balance"`
}

type entryResponse struct {
	ID        int64            `json:"id"`
	Amount    int64            `json:"amount"`
	Kind      ledger.EntryKind `json:"kind"`
	Reference string           `json:"reference"`
	CreatedAt time.Time        `json:"created_at"`
}

type reconcileResponse struct {
	WalletID string `json:"wallet_id"`
	Balance  int64  `json:"balance"`
	Logged   int64  `json:"logged"`
	InFlight int64  `json:"in_flight"`
	Balanced bool   `json:"balanced"`
}

func toDepositResponse(res ledger.DepositResult) DepositResponse {
	return DepositResponse{
		EntryID:  res.EntryID,
		WalletID: res.WalletID,
		Amount:   res.Amount,
		Balance:  res.Balance,
	}
}
