package ledger

import (
	"context"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

var _ Store = (*PostgresLedger)(nil)

// PostgresLedger persists wallet balances, holds and the transaction log in PostgreSQL.
type PostgresLedger struct {
	db *pgxpool.Pool
}

// NewPostgresLedger constructs a Postgres-backed ledger implementation.
func NewPostgresLedger(db *pgxpool.Pool) *PostgresLedger {
	return &PostgresLedger{db: db}
}

// Open creates the wallet if it does not exist yet and returns it.
func (l *PostgresLedger) Open(ctx context.Context, walletID string) (Wallet, error) {
	if _, err := l.db.Exec(ctx, `INSERT INTO wallets (id) VALUES ($1)
        ON CONFLICT (id) DO NOTHING`, walletID); err != nil {
		return Wallet{}, err
	}
	return l.Wallet(ctx, walletID)
}

func (l *PostgresLedger) Wallet(ctx context.Context, walletID string) (Wallet, error) {
	const query = `SELECT id, balance, revision, created_at, updated_at FROM wallets WHERE id = $1`
	var w Wallet
	if err := l.db.QueryRow(ctx, query, walletID).Scan(&w.ID, &w.Balance, &w.Revision, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	return w, nil
}

// Deposit locks the wallet row, appends a deposit entry and increments the balance.
func (l *PostgresLedger) Deposit(ctx context.Context, walletID string, amount int64, requestID string) (DepositResult, error) {
	if err := requirePositive(amount); err != nil {
		return DepositResult{}, err
	}
	if requestID == "" {
		requestID = uuid.NewString()
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return DepositResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var balance, revision int64
	if err := tx.QueryRow(ctx, `SELECT balance, revision FROM wallets WHERE id = $1 FOR UPDATE`, walletID).Scan(&balance, &revision); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return DepositResult{}, ErrWalletNotFound
		}
		return DepositResult{}, err
	}

	const existingQuery = `SELECT id, amount FROM ledger_entries WHERE kind = 'deposit' AND reference = $1 AND wallet_id = $2`
	var existingID, existingAmount int64
	if err := tx.QueryRow(ctx, existingQuery, requestID, walletID).Scan(&existingID, &existingAmount); err == nil {
		return DepositResult{EntryID: existingID, WalletID: walletID, Amount: existingAmount, Balance: balance, Revision: revision}, ErrDuplicateTransaction
	} else if !errors.Is(err, pgx.ErrNoRows) {
		return DepositResult{}, err
	}

	var entryID int64
	if err := tx.QueryRow(ctx, `INSERT INTO ledger_entries (wallet_id, amount, kind, reference) VALUES ($1, $2, $3, $4) RETURNING id`,
		walletID, amount, string(EntryDeposit), requestID).Scan(&entryID); err != nil {
		return DepositResult{}, err
	}

	if err := tx.QueryRow(ctx, `UPDATE wallets SET balance = balance + $2, revision = revision + 1, updated_at = NOW()
        WHERE id = $1 RETURNING balance, revision`, walletID, amount).Scan(&balance, &revision); err != nil {
		return DepositResult{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return DepositResult{}, err
	}

	return DepositResult{EntryID: entryID, WalletID: walletID, Amount: amount, Balance: balance, Revision: revision}, nil
}

// TryDebit performs the balance check and the decrement in one conditional
// update, then records an active hold for reference in the same transaction.
func (l *PostgresLedger) TryDebit(ctx context.Context, walletID string, amount int64, reference string) (DebitResult, error) {
	if err := requirePositive(amount); err != nil {
		return DebitResult{}, err
	}
	if reference == "" {
		return DebitResult{}, &ValidationError{Field: "reference", Reason: "is required"}
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return DebitResult{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	var holdExists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM ledger_holds WHERE reference = $1)`, reference).Scan(&holdExists); err != nil {
		return DebitResult{}, err
	}
	if holdExists {
		w, err := walletInTx(ctx, tx, walletID)
		if err != nil {
			return DebitResult{}, err
		}
		return DebitResult{OK: true, Balance: w.Balance, Revision: w.Revision}, ErrDuplicateTransaction
	}

	const debit = `UPDATE wallets SET balance = balance - $2, revision = revision + 1, updated_at = NOW()
        WHERE id = $1 AND balance >= $2 RETURNING balance, revision`
	var res DebitResult
	if err := tx.QueryRow(ctx, debit, walletID, amount).Scan(&res.Balance, &res.Revision); err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return DebitResult{}, err
		}
		w, err := walletInTx(ctx, tx, walletID)
		if err != nil {
			return DebitResult{}, err
		}
		return DebitResult{OK: false, Balance: w.Balance, Revision: w.Revision}, nil
	}

	// A concurrent debit with the same reference loses on the primary key.
	tag, err := tx.Exec(ctx, `INSERT INTO ledger_holds (reference, wallet_id, amount, state) VALUES ($1, $2, $3, $4)
        ON CONFLICT (reference) DO NOTHING`, reference, walletID, amount, string(HoldActive))
	if err != nil {
		return DebitResult{}, err
	}
	if tag.RowsAffected() == 0 {
		if err := tx.Rollback(ctx); err != nil {
			return DebitResult{}, err
		}
		w, err := l.Wallet(ctx, walletID)
		if err != nil {
			return DebitResult{}, err
		}
		return DebitResult{OK: true, Balance: w.Balance, Revision: w.Revision}, ErrDuplicateTransaction
	}

	if err := tx.Commit(ctx); err != nil {
		return DebitResult{}, err
	}

	res.OK = true
	return res, nil
}

// Credit releases the active hold for reference and restores its amount to the wallet.
func (l *PostgresLedger) Credit(ctx context.Context, walletID string, amount int64, reference string) (int64, error) {
	if err := requirePositive(amount); err != nil {
		return 0, err
	}

	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	h, err := holdForUpdate(ctx, tx, reference)
	if err != nil {
		return 0, err
	}
	if h.WalletID != walletID || h.Amount != amount {
		return 0, fmt.Errorf("%w: hold %s is %d on %s", ErrHoldMismatch, reference, h.Amount, h.WalletID)
	}

	switch h.State {
	case HoldReleased, HoldSettled:
		w, err := walletInTx(ctx, tx, walletID)
		if err != nil {
			return 0, err
		}
		if h.State == HoldSettled {
			return w.Balance, ErrHoldSettled
		}
		return w.Balance, ErrDuplicateTransaction
	}

	if _, err := tx.Exec(ctx, `UPDATE ledger_holds SET state = $2, updated_at = NOW() WHERE reference = $1`, reference, string(HoldReleased)); err != nil {
		return 0, err
	}
	if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries (wallet_id, amount, kind, reference) VALUES ($1, $2, $3, $4)`,
		walletID, amount, string(EntryRefund), reference); err != nil {
		return 0, err
	}

	var balance int64
	if err := tx.QueryRow(ctx, `UPDATE wallets SET balance = balance + $2, revision = revision + 1, updated_at = NOW()
        WHERE id = $1 RETURNING balance`, walletID, amount).Scan(&balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrWalletNotFound
		}
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return balance, nil
}

// Settle marks the hold as paid out and appends the withdrawal entry.
func (l *PostgresLedger) Settle(ctx context.Context, reference, bankReference string) (Entry, error) {
	tx, err := l.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Entry{}, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	h, err := holdForUpdate(ctx, tx, reference)
	if err != nil {
		return Entry{}, err
	}

	const entryColumns = `id, wallet_id, amount, kind, reference, created_at`
	switch h.State {
	case HoldSettled:
		e, err := scanEntry(tx.QueryRow(ctx, `SELECT `+entryColumns+` FROM ledger_entries
            WHERE kind = 'withdrawal' AND reference = $1`, reference))
		if err != nil && !errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, err
		}
		return e, ErrDuplicateTransaction
	case HoldReleased:
		return Entry{}, fmt.Errorf("settle %s: %w", reference, ErrHoldReleased)
	}

	if _, err := tx.Exec(ctx, `UPDATE ledger_holds SET state = $2, bank_reference = $3, updated_at = NOW() WHERE reference = $1`,
		reference, string(HoldSettled), bankReference); err != nil {
		return Entry{}, err
	}

	e, err := scanEntry(tx.QueryRow(ctx, `INSERT INTO ledger_entries (wallet_id, amount, kind, reference) VALUES ($1, $2, $3, $4)
        RETURNING `+entryColumns, h.WalletID, -h.Amount, string(EntryWithdrawal), reference))
	if err != nil {
		return Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return Entry{}, err
	}
	return e, nil
}

func (l *PostgresLedger) Hold(ctx context.Context, reference string) (Hold, error) {
	const query = `SELECT reference, wallet_id, amount, state, COALESCE(bank_reference, ''), created_at, updated_at
        FROM ledger_holds WHERE reference = $1`
	h, err := scanHold(l.db.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Hold{}, ErrHoldNotFound
		}
		return Hold{}, err
	}
	return h, nil
}

// Entries returns the most recent entries for a wallet, newest first.
func (l *PostgresLedger) Entries(ctx context.Context, walletID string, limit int) ([]Entry, error) {
	if _, err := l.Wallet(ctx, walletID); err != nil {
		return nil, err
	}

	q := psql.Select("id", "wallet_id", "amount", "kind", "reference", "created_at").
		From("ledger_entries").
		Where(sq.Eq{"wallet_id": walletID}).
		OrderBy("id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := l.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (l *PostgresLedger) Summary(ctx context.Context, walletID string) (Summary, error) {
	if _, err := l.Wallet(ctx, walletID); err != nil {
		return Summary{}, err
	}

	const query = `
        SELECT
            (SELECT COALESCE(SUM(amount), 0) FROM ledger_entries WHERE wallet_id = $1 AND kind <> 'refund'),
            (SELECT COALESCE(SUM(amount), 0) FROM ledger_holds WHERE wallet_id = $1 AND state = 'active')`
	var sum Summary
	if err := l.db.QueryRow(ctx, query, walletID).Scan(&sum.Logged, &sum.InFlight); err != nil {
		return Summary{}, err
	}
	return sum, nil
}

func walletInTx(ctx context.Context, tx pgx.Tx, walletID string) (Wallet, error) {
	const query = `SELECT id, balance, revision, created_at, updated_at FROM wallets WHERE id = $1`
	var w Wallet
	if err := tx.QueryRow(ctx, query, walletID).Scan(&w.ID, &w.Balance, &w.Revision, &w.CreatedAt, &w.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	return w, nil
}

func holdForUpdate(ctx context.Context, tx pgx.Tx, reference string) (Hold, error) {
	const query = `SELECT reference, wallet_id, amount, state, COALESCE(bank_reference, ''), created_at, updated_at
        FROM ledger_holds WHERE reference = $1 FOR UPDATE`
	h, err := scanHold(tx.QueryRow(ctx, query, reference))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Hold{}, ErrHoldNotFound
		}
		return Hold{}, err
	}
	return h, nil
}

func scanHold(row pgx.Row) (Hold, error) {
	var h Hold
	var state string
	if err := row.Scan(&h.Reference, &h.WalletID, &h.Amount, &state, &h.BankReference, &h.CreatedAt, &h.UpdatedAt); err != nil {
		return Hold{}, err
	}
	h.State = HoldState(state)
	return h, nil
}

func scanEntry(row pgx.Row) (Entry, error) {
	var e Entry
	var kind string
	if err := row.Scan(&e.ID, &e.WalletID, &e.Amount, &kind, &e.Reference, &e.CreatedAt); err != nil {
		return Entry{}, err
	}
	e.Kind = EntryKind(kind)
	return e, nil
}
