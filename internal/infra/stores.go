package infra

import (
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/congo-pay/walletd/internal/clock"
	"github.com/congo-pay/walletd/internal/ledger"
	"github.com/congo-pay/walletd/internal/withdrawal"
)

// Stores groups the ledger and withdrawal queue backends.
type Stores struct {
	Ledger ledger.Store
	Queue  withdrawal.Queue
}

// NewStores selects Postgres backends when db is set and in-memory ones otherwise.
func NewStores(db *pgxpool.Pool, c clock.Clock, reclaimAfter time.Duration) Stores {
	if db == nil {
		return Stores{
			Ledger: ledger.NewInMemory(),
			Queue:  withdrawal.NewInMemory(c, reclaimAfter),
		}
	}
	return Stores{
		Ledger: ledger.NewPostgresLedger(db),
		Queue:  withdrawal.NewPostgresQueue(db, c, reclaimAfter),
	}
}
