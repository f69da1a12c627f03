package withdrawal

import (
	"context"
	"errors"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletd/internal/clock"
)

const table = "scheduled_withdrawals"

var columns = []string{
	"id", "wallet_id", "amount", "scheduled_for", "status", "attempt_count",
	"COALESCE(last_error, '')", "COALESCE(bank_reference, '')",
	"claimed_at", "resolved_at", "created_at", "updated_at",
}

// PostgresQueue stores scheduled withdrawals in PostgreSQL. Claims rely on
// FOR UPDATE SKIP LOCKED so concurrent processors never receive the same row.
type PostgresQueue struct {
	db           *pgxpool.Pool
	clock        clock.Clock
	reclaimAfter time.Duration
	sb           sq.StatementBuilderType
}

var _ Queue = (*PostgresQueue)(nil)

// NewPostgresQueue constructs a Postgres-backed queue.
func NewPostgresQueue(db *pgxpool.Pool, c clock.Clock, reclaimAfter time.Duration) *PostgresQueue {
	return &PostgresQueue{
		db:           db,
		clock:        c,
		reclaimAfter: reclaimAfter,
		sb:           sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

func (q *PostgresQueue) Enqueue(ctx context.Context, w ScheduledWithdrawal) (ScheduledWithdrawal, error) {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = q.clock.Now()
	}
	if err := validateNew(w); err != nil {
		return ScheduledWithdrawal{}, err
	}

	query, args, err := q.sb.Insert(table).
		Columns("id", "wallet_id", "amount", "scheduled_for", "status", "created_at", "updated_at").
		Values(w.ID, w.WalletID, w.Amount, w.ScheduledFor.UTC(), string(StatusPending), w.CreatedAt.UTC(), w.CreatedAt.UTC()).
		Suffix("ON CONFLICT (id) DO NOTHING RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return ScheduledWithdrawal{}, err
	}

	stored, err := scanWithdrawal(q.db.QueryRow(ctx, query, args...))
	if err == nil {
		return stored, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ScheduledWithdrawal{}, err
	}

	existing, err := q.Find(ctx, w.ID)
	if err != nil {
		return ScheduledWithdrawal{}, err
	}
	if !sameRequest(existing, w) {
		return existing, ErrIDConflict
	}
	return existing, ErrDuplicateID
}

// ClaimDue moves up to limit due or stale rows to processing in one statement.
func (q *PostgresQueue) ClaimDue(ctx context.Context, now time.Time, limit int) ([]ScheduledWithdrawal, error) {
	if limit <= 0 {
		return nil, nil
	}

	due := q.sb.Select("id").
		From(table).
		Where(sq.Or{
			sq.And{sq.Eq{"status": string(StatusPending)}, sq.LtOrEq{"scheduled_for": now.UTC()}},
			sq.And{sq.Eq{"status": string(StatusProcessing)}, sq.LtOrEq{"claimed_at": now.Add(-q.reclaimAfter).UTC()}},
		}).
		OrderBy("scheduled_for", "id").
		Limit(uint64(limit)).
		Suffix("FOR UPDATE SKIP LOCKED")

	query, args, err := q.sb.Update(table).
		Set("status", string(StatusProcessing)).
		Set("claimed_at", now.UTC()).
		Set("attempt_count", sq.Expr("attempt_count + 1")).
		Set("updated_at", now.UTC()).
		Where(sq.Expr("id IN (?)", due)).
		Suffix("RETURNING " + joinColumns()).
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := q.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var claimed []ScheduledWithdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			return nil, err
		}
		claimed = append(claimed, w)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sortClaimed(claimed)
	return claimed, nil
}

// Resolve moves a processing row to its terminal state.
func (q *PostgresQueue) Resolve(ctx context.Context, id string, outcome Outcome) (ScheduledWithdrawal, error) {
	if err := outcome.validate(); err != nil {
		return ScheduledWithdrawal{}, err
	}

	now := q.clock.Now().UTC()
	update := q.sb.Update(table).
		Set("status", string(outcome.Status)).
		Set("resolved_at", now).
		Set("updated_at", now).
		Where(sq.Eq{"id": id, "status": string(StatusProcessing)}).
		Suffix("RETURNING " + joinColumns())
	if outcome.Status == StatusCompleted {
		update = update.Set("bank_reference", outcome.BankReference)
	} else {
		update = update.Set("last_error", outcome.Reason)
	}

	query, args, err := update.ToSql()
	if err != nil {
		return ScheduledWithdrawal{}, err
	}

	resolved, err := scanWithdrawal(q.db.QueryRow(ctx, query, args...))
	if err == nil {
		return resolved, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return ScheduledWithdrawal{}, err
	}

	current, err := q.Find(ctx, id)
	if err != nil {
		return ScheduledWithdrawal{}, err
	}
	return current, ErrInvalidTransition
}

func (q *PostgresQueue) Find(ctx context.Context, id string) (ScheduledWithdrawal, error) {
	query, args, err := q.sb.Select(columns...).From(table).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return ScheduledWithdrawal{}, err
	}

	w, err := scanWithdrawal(q.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ScheduledWithdrawal{}, ErrNotFound
		}
		return ScheduledWithdrawal{}, err
	}
	return w, nil
}

func joinColumns() string {
	return strings.Join(columns, ", ")
}

func scanWithdrawal(row pgx.Row) (ScheduledWithdrawal, error) {
	var w ScheduledWithdrawal
	var status string
	if err := row.Scan(&w.ID, &w.WalletID, &w.Amount, &w.ScheduledFor, &status, &w.AttemptCount,
		&w.LastError, &w.BankReference, &w.ClaimedAt, &w.ResolvedAt, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return ScheduledWithdrawal{}, err
	}
	w.Status = Status(status)
	w.ScheduledFor = w.ScheduledFor.UTC()
	w.CreatedAt = w.CreatedAt.UTC()
	w.UpdatedAt = w.UpdatedAt.UTC()
	return w, nil
}
