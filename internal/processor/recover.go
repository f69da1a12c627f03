package processor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/congo-pay/walletd/internal/bank"
	"github.com/congo-pay/walletd/internal/ledger"
	"github.com/congo-pay/walletd/internal/withdrawal"
)

const (
	reasonRecoveredRefund = "refunded after interrupted processing"
	reasonUnconfirmed     = "payout could not be confirmed after interrupted processing - withdrawal amount refunded"
)

// resume finishes a reclaimed withdrawal whose debit survived a previous attempt.
// The hold shows how far that attempt got; an active hold means the bank outcome
// is unknown and the bank is asked when the client supports it.
func (p *Processor) resume(ctx context.Context, w withdrawal.ScheduledWithdrawal, logger *slog.Logger) (withdrawal.Status, error) {
	hold, err := p.ledger.Hold(ctx, w.ID)
	if err != nil {
		logger.Error("ledger.Hold", "err", err)
		return "", err
	}

	logger = logger.With("hold", hold.State)
	logger.Warn("resuming interrupted withdrawal")

	switch hold.State {
	case ledger.HoldSettled:
		return p.resolve(ctx, w, withdrawal.Completed(hold.BankReference), logger)
	case ledger.HoldReleased:
		return p.resolve(ctx, w, withdrawal.Failed(reasonRecoveredRefund), logger)
	}

	inquirer, ok := p.bank.(bank.Inquirer)
	if !ok {
		return p.refund(ctx, w, reasonUnconfirmed, logger)
	}

	inquiry, err := p.inquire(ctx, inquirer, w.ID)
	if err != nil {
		logger.Warn("bank inquiry failed", "err", err)
		return p.refund(ctx, w, fmt.Sprintf("bank inquiry failed: %v - withdrawal amount refunded", err), logger)
	}

	switch inquiry.Status {
	case bank.InquiryPaid:
		ref := inquiry.Reference
		if ref == "" {
			ref = w.ID
		}
		return p.settle(ctx, w, ref, logger)
	case bank.InquiryRejected:
		return p.refund(ctx, w, "bank rejected the request - withdrawal amount refunded", logger)
	default:
		return p.refund(ctx, w, reasonUnconfirmed, logger)
	}
}

func (p *Processor) inquire(ctx context.Context, inquirer bank.Inquirer, withdrawalID string) (bank.Inquiry, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.BankTimeout)
	defer cancel()
	return inquirer.Inquire(ctx, withdrawalID)
}
