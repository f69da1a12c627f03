package processor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/asaskevich/govalidator"
	"golang.org/x/sync/errgroup"

	"github.com/congo-pay/walletd/internal/bank"
	"github.com/congo-pay/walletd/internal/clock"
	"github.com/congo-pay/walletd/internal/config"
	"github.com/congo-pay/walletd/internal/ledger"
	"github.com/congo-pay/walletd/internal/notification"
	"github.com/congo-pay/walletd/internal/withdrawal"
)

const reasonInsufficientBalance = "insufficient balance at execution time"

type Config struct {
	Interval    time.Duration `valid:"required"`
	BatchSize   int           `valid:"required"`
	Concurrency int           `valid:"required"`
	BankTimeout time.Duration `valid:"required"`
	// ReclaimAfter is the queue's stale-claim timeout. It must leave room for a
	// full bank call so a live worker is never overtaken by a reclaim.
	ReclaimAfter time.Duration `valid:"required"`
}

// ConfigFrom maps application settings onto processor settings.
func ConfigFrom(cfg config.Config) Config {
	return Config{
		Interval:     cfg.Processor.Interval,
		BatchSize:    cfg.Processor.BatchSize,
		Concurrency:  cfg.Processor.Concurrency,
		BankTimeout:  cfg.Bank.Timeout,
		ReclaimAfter: cfg.Processor.ReclaimAfter,
	}
}

// Validate checks required fields and the reclaim/bank timeout relation.
func (c Config) Validate() error {
	if _, err := govalidator.ValidateStruct(c); err != nil {
		return err
	}
	if c.BatchSize < 0 || c.Concurrency < 0 {
		return errors.New("batch size and concurrency must be positive")
	}
	if c.ReclaimAfter < 2*c.BankTimeout {
		return fmt.Errorf("reclaim after (%s) must be at least twice the bank timeout (%s)", c.ReclaimAfter, c.BankTimeout)
	}
	return nil
}

// Report summarises one tick.
type Report struct {
	Claimed   int
	Completed int
	Failed    int
	Errors    int
}

type Processor struct {
	queue    withdrawal.Queue
	ledger   ledger.Store
	bank     bank.Client
	notifier notification.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config
}

func New(
	queue withdrawal.Queue,
	store ledger.Store,
	bankClient bank.Client,
	notifier notification.Notifier,
	c clock.Clock,
	logger *slog.Logger,
	cfg Config,
) *Processor {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	if notifier == nil {
		notifier = notification.NewLoggerNotifier(logger)
	}

	return &Processor{
		queue:    queue,
		ledger:   store,
		bank:     bankClient,
		notifier: notifier,
		clock:    c,
		logger:   logger.With("worker", "processor"),
		cfg:      cfg,
	}
}

// Run ticks every Interval until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("processor start", "interval", p.cfg.Interval, "batch", p.cfg.BatchSize)

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := p.Tick(ctx); err != nil && ctx.Err() == nil {
			p.logger.Error("tick", "err", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick claims due withdrawals and drives each one to a terminal state.
// A record whose handling errors stays processing and is reclaimed later.
func (p *Processor) Tick(ctx context.Context) (Report, error) {
	claimed, err := p.queue.ClaimDue(ctx, p.clock.Now(), p.cfg.BatchSize)
	if err != nil {
		p.logger.Error("queue.ClaimDue", "err", err)
		return Report{}, err
	}

	report := Report{Claimed: len(claimed)}
	if len(claimed) == 0 {
		return report, nil
	}
	claimedTotal.Add(float64(len(claimed)))
	p.logger.Debug("withdrawals claimed", "count", len(claimed))

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(p.cfg.Concurrency)

	for idx := range claimed {
		w := claimed[idx]
		g.Go(func() error {
			status, err := p.handle(ctx, w)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				report.Errors++
			case status == withdrawal.StatusCompleted:
				report.Completed++
			case status == withdrawal.StatusFailed:
				report.Failed++
			}
			return err
		})
	}

	err = g.Wait()
	return report, err
}

func (p *Processor) handle(ctx context.Context, w withdrawal.ScheduledWithdrawal) (withdrawal.Status, error) {
	logger := p.logger.With("withdrawal", w.ID, "wallet", w.WalletID)
	logger.Info("handle withdrawal", "amount", w.Amount, "attempt", w.AttemptCount)

	debit, err := p.ledger.TryDebit(ctx, w.WalletID, w.Amount, w.ID)
	switch {
	case errors.Is(err, ledger.ErrDuplicateTransaction):
		return p.resume(ctx, w, logger)
	case errors.Is(err, ledger.ErrWalletNotFound):
		return p.resolve(ctx, w, withdrawal.Failed("wallet not found at execution time"), logger)
	case err != nil:
		logger.Error("ledger.TryDebit", "err", err)
		return "", err
	}

	if !debit.OK {
		logger.Warn("insufficient balance", "balance", debit.Balance)
		return p.resolve(ctx, w, withdrawal.Failed(reasonInsufficientBalance), logger)
	}

	logger.Debug("wallet debited", "balance", debit.Balance)

	receipt, err := p.payout(ctx, w)
	if err != nil {
		logger.Warn("bank payout failed", "err", err)
		return p.refund(ctx, w, p.failureReason(err), logger)
	}

	return p.settle(ctx, w, receipt.Reference, logger)
}

func (p *Processor) payout(ctx context.Context, w withdrawal.ScheduledWithdrawal) (bank.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.BankTimeout)
	defer cancel()

	start := time.Now()
	receipt, err := p.bank.Payout(ctx, bank.Payout{WithdrawalID: w.ID, WalletID: w.WalletID, Amount: w.Amount})
	observeBankCall(start, err)
	return receipt, err
}

func (p *Processor) failureReason(err error) string {
	var rejected *bank.RejectedError
	switch {
	case errors.As(err, &rejected):
		return rejected.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("bank call timed out after %s - withdrawal amount refunded", p.cfg.BankTimeout)
	default:
		return fmt.Sprintf("bank call failed: %v - withdrawal amount refunded", err)
	}
}

// settle logs the withdrawal entry and completes the record.
func (p *Processor) settle(ctx context.Context, w withdrawal.ScheduledWithdrawal, bankReference string, logger *slog.Logger) (withdrawal.Status, error) {
	_, err := p.ledger.Settle(ctx, w.ID, bankReference)
	switch {
	case errors.Is(err, ledger.ErrHoldReleased):
		// A reclaim refunded this debit while the bank was still paying it out.
		paidAfterRefundTotal.Inc()
		logger.Error("payout confirmed after refund, manual reconciliation required",
			"bank_reference", bankReference, "amount", w.Amount, "err", err)
		return "", fmt.Errorf("withdrawal %s paid out after refund (bank reference %s): %w", w.ID, bankReference, err)
	case err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction):
		logger.Error("ledger.Settle", "err", err)
		return "", err
	}
	return p.resolve(ctx, w, withdrawal.Completed(bankReference), logger)
}

// refund credits the debited amount back before the record is marked failed.
func (p *Processor) refund(ctx context.Context, w withdrawal.ScheduledWithdrawal, reason string, logger *slog.Logger) (withdrawal.Status, error) {
	balance, err := p.ledger.Credit(ctx, w.WalletID, w.Amount, w.ID)
	if err != nil && !errors.Is(err, ledger.ErrDuplicateTransaction) {
		logger.Error("ledger.Credit", "err", err)
		return "", err
	}
	logger.Info("withdrawal refunded", "balance", balance)
	return p.resolve(ctx, w, withdrawal.Failed(reason), logger)
}

func (p *Processor) resolve(ctx context.Context, w withdrawal.ScheduledWithdrawal, outcome withdrawal.Outcome, logger *slog.Logger) (withdrawal.Status, error) {
	resolved, err := p.queue.Resolve(ctx, w.ID, outcome)
	if errors.Is(err, withdrawal.ErrInvalidTransition) {
		logger.Warn("withdrawal already resolved", "status", resolved.Status)
		return resolved.Status, nil
	}
	if err != nil {
		logger.Error("queue.Resolve", "err", err)
		return "", err
	}

	outcomesTotal.WithLabelValues(string(outcome.Status)).Inc()
	if outcome.Status == withdrawal.StatusCompleted {
		logger.Info("withdrawal completed", "bank_reference", outcome.BankReference)
	} else {
		logger.Warn("withdrawal failed", "reason", outcome.Reason)
	}

	p.notify(ctx, resolved, logger)
	return resolved.Status, nil
}

func (p *Processor) notify(ctx context.Context, w withdrawal.ScheduledWithdrawal, logger *slog.Logger) {
	msg := notification.Message{Destination: w.WalletID}
	if w.Status == withdrawal.StatusCompleted {
		msg.Kind = notification.KindWithdrawalCompleted
		msg.Body = fmt.Sprintf("withdrawal %s of %d completed, bank reference %s", w.ID, w.Amount, w.BankReference)
	} else {
		msg.Kind = notification.KindWithdrawalFailed
		msg.Body = fmt.Sprintf("withdrawal %s of %d failed: %s", w.ID, w.Amount, w.LastError)
	}

	if err := p.notifier.Send(ctx, msg); err != nil {
		logger.Warn("notifier.Send", "err", err)
	}
}
