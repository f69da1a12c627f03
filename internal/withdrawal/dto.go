package withdrawal

import "time"

// ScheduleRequest is the body of a withdrawal scheduling call.
type ScheduleRequest struct {
	ID           string `json:"id" validate:"omitempty,max=64"`
	Amount       int64  `json:"amount" validate:"required,gt=0"`
	ScheduledFor string `json:"scheduled_for" validate:"required"`
}

// Response is the client-facing view of a scheduled withdrawal.
type Response struct {
	ID            string     `json:"id"`
	WalletID      string     `json:"wallet_id"`
	Amount        int64      `json:"amount"`
	ScheduledFor  time.Time  `json:"scheduled_for"`
	Status        Status     `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	LastError     string     `json:"last_error,omitempty"`
	BankReference string     `json:"bank_reference,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toResponse(w ScheduledWithdrawal) Response {
	return Response{
		ID:            w.ID,
		WalletID:      w.WalletID,
		Amount:        w.Amount,
		ScheduledFor:  w.ScheduledFor,
		Status:        w.Status,
		AttemptCount:  w.AttemptCount,
		LastError:     w.LastError,
		BankReference: w.BankReference,
		ResolvedAt:    w.ResolvedAt,
		CreatedAt:     w.CreatedAt,
	}
}
