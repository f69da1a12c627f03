package cmds

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/walletd/internal/bank"
	"github.com/congo-pay/walletd/internal/clock"
	"github.com/congo-pay/walletd/internal/config"
	"github.com/congo-pay/walletd/internal/infra"
	"github.com/congo-pay/walletd/internal/ledger"
	"github.com/congo-pay/walletd/internal/logging"
	"github.com/congo-pay/walletd/internal/processor"
	"github.com/congo-pay/walletd/internal/withdrawal"
)

var t0 = time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC)

func testOpener(t *testing.T) (opener, infra.Stores, *clock.Fake) {
	t.Helper()
	fake := clock.NewFake(t0)
	stores := infra.NewStores(nil, fake, 5*time.Minute)
	logger := logging.Discard()

	p := processor.New(stores.Queue, stores.Ledger, bank.Static{}, nil, fake, logger, processor.Config{
		Interval:     time.Minute,
		BatchSize:    10,
		Concurrency:  2,
		BankTimeout:  time.Second,
		ReclaimAfter: 5 * time.Minute,
	})

	open := func(context.Context, string) (*app, func(), error) {
		return &app{cfg: config.Config{}, logger: logger, stores: stores, processor: p}, func() {}, nil
	}
	return open, stores, fake
}

func execute(t *testing.T, open opener, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd(open)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestTickCommand(t *testing.T) {
	open, stores, fake := testOpener(t)
	ledger.SeedBalance(stores.Ledger, "wallet-a", 500)

	_, err := stores.Queue.Enqueue(context.Background(), withdrawal.ScheduledWithdrawal{
		ID:           "wd-1",
		WalletID:     "wallet-a",
		Amount:       200,
		ScheduledFor: t0.Add(time.Minute),
		CreatedAt:    t0,
	})
	require.NoError(t, err)
	fake.Advance(time.Hour)

	out, err := execute(t, open, "tick")
	require.NoError(t, err)

	var report processor.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Claimed)
	assert.Equal(t, 1, report.Completed)

	w, err := stores.Ledger.Wallet(context.Background(), "wallet-a")
	require.NoError(t, err)
	assert.EqualValues(t, 300, w.Balance)
}

func TestReconcileCommand(t *testing.T) {
	open, stores, _ := testOpener(t)
	ledger.SeedBalance(stores.Ledger, "wallet-a", 500)

	out, err := execute(t, open, "reconcile", "wallet-a")
	require.NoError(t, err)

	var report ledger.Report
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.True(t, report.Balanced)
	assert.EqualValues(t, 500, report.Balance)

	_, err = execute(t, open, "reconcile", "missing")
	assert.ErrorIs(t, err, ledger.ErrWalletNotFound)

	_, err = execute(t, open, "reconcile")
	assert.Error(t, err, "wallet id is required")
}
