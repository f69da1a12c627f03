package processor

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	claimedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletd",
		Subsystem: "processor",
		Name:      "claimed_total",
		Help:      "Scheduled withdrawals claimed for processing",
	})

	outcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "walletd",
		Subsystem: "processor",
		Name:      "outcomes_total",
		Help:      "Scheduled withdrawals resolved, by terminal status",
	}, []string{"result"})

	paidAfterRefundTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "walletd",
		Subsystem: "processor",
		Name:      "paid_after_refund_total",
		Help:      "Payouts the bank confirmed after the debit had already been refunded",
	})

	bankCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "walletd",
		Subsystem: "processor",
		Name:      "bank_call_duration_seconds",
		Help:      "Latency of bank payout calls",
		Buckets:   prometheus.DefBuckets,
	}, []string{"outcome"})
)

func observeBankCall(start time.Time, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	bankCallDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}
