package bank

import (
	"context"
	"fmt"
)

// Payout is the instruction sent to the bank for one withdrawal.
type Payout struct {
	WithdrawalID string `json:"withdrawal_id"`
	WalletID     string `json:"wallet_id"`
	Amount       int64  `json:"amount"`
}

// Receipt is returned for an accepted payout.
type Receipt struct {
	Reference string
}

// Client pays withdrawals out to the external bank.
type Client interface {
	Payout(ctx context.Context, p Payout) (Receipt, error)
}

// RejectedError is a business refusal from the bank, as opposed to a transport failure.
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("bank rejected the request: %s", e.Reason)
}

// InquiryStatus is what the bank knows about a past payout.
type InquiryStatus string

const (
	InquiryUnknown  InquiryStatus = "unknown"
	InquiryPaid     InquiryStatus = "paid"
	InquiryRejected InquiryStatus = "rejected"
)

// Inquiry is the answer to a payout status lookup.
type Inquiry struct {
	Status    InquiryStatus
	Reference string
}

// Inquirer is implemented by clients able to look up a payout by withdrawal id.
type Inquirer interface {
	Inquire(ctx context.Context, withdrawalID string) (Inquiry, error)
}
