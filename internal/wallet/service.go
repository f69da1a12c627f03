package wallet

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/congo-pay/walletd/internal/ledger"
)

const defaultTransactionLimit = 50

// Service exposes wallet operations backed by the ledger.
type Service struct {
	ledger ledger.Store
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store) *Service {
	return &Service{ledger: store}
}

// CreateInput captures data required to create a wallet. ID is generated when empty.
type CreateInput struct {
	ID string
}

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID string
	Amount   int64
	Revision int64
	AsOf     time.Time
}

// DepositInput captures a deposit request. RequestID makes retries idempotent.
type DepositInput struct {
	WalletID  string
	Amount    int64
	RequestID string
}

// Create provisions a zero-balance wallet.
func (s *Service) Create(ctx context.Context, input CreateInput) (ledger.Wallet, error) {
	id := strings.TrimSpace(input.ID)
	if id == "" {
		id = uuid.NewString()
	}
	return s.ledger.Open(ctx, id)
}

// Balance returns the current ledger balance for the wallet.
func (s *Service) Balance(ctx context.Context, id string) (Balance, error) {
	w, err := s.ledger.Wallet(ctx, id)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: w.ID, Amount: w.Balance, Revision: w.Revision, AsOf: time.Now().UTC()}, nil
}

// Deposit credits the wallet immediately. A repeated RequestID returns the
// original result with ledger.ErrDuplicateTransaction.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (ledger.DepositResult, error) {
	return s.ledger.Deposit(ctx, input.WalletID, input.Amount, input.RequestID)
}

// Transactions lists the wallet's audit trail, newest first.
func (s *Service) Transactions(ctx context.Context, id string, limit int) ([]ledger.Entry, error) {
	if limit <= 0 {
		limit = defaultTransactionLimit
	}
	return s.ledger.Entries(ctx, id, limit)
}

// Reconcile checks the wallet balance against its transaction log.
func (s *Service) Reconcile(ctx context.Context, id string) (ledger.Report, error) {
	return ledger.Reconcile(ctx, s.ledger, id)
}
