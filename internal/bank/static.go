package bank

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Static simulates a bank that accepts every payout.
type Static struct{}

// Payout approves the payout with a synthetic reference.
func (Static) Payout(_ context.Context, _ Payout) (Receipt, error) {
	return Receipt{Reference: uuid.NewString()}, nil
}

// New returns an HTTP client for baseURL, or Static when baseURL is empty.
func New(baseURL string, timeout time.Duration) Client {
	if baseURL == "" {
		return Static{}
	}
	return NewHTTPClient(baseURL, timeout)
}
