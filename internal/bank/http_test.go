package bank

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientPayoutSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/payouts", r.URL.Path)
		assert.Equal(t, "wd-1", r.Header.Get("Idempotency-Key"))

		var p Payout
		require.NoError(t, json.NewDecoder(r.Body).Decode(&p))
		assert.Equal(t, Payout{WithdrawalID: "wd-1", WalletID: "wallet-a", Amount: 300}, p)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":"success","reference":"bank-77"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	receipt, err := c.Payout(context.Background(), Payout{WithdrawalID: "wd-1", WalletID: "wallet-a", Amount: 300})
	require.NoError(t, err)
	assert.Equal(t, "bank-77", receipt.Reference)
}

func TestHTTPClientPayoutRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":"failed","message":"account closed"}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Payout(context.Background(), Payout{WithdrawalID: "wd-1", WalletID: "wallet-a", Amount: 300})

	var rejected *RejectedError
	require.True(t, errors.As(err, &rejected))
	assert.Equal(t, "account closed", rejected.Reason)
}

func TestHTTPClientPayoutServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	_, err := c.Payout(context.Background(), Payout{WithdrawalID: "wd-1", Amount: 1})
	require.Error(t, err)

	var rejected *RejectedError
	assert.False(t, errors.As(err, &rejected))
}

func TestHTTPClientPayoutTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	c := NewHTTPClient(srv.URL, 5*time.Second)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Payout(ctx, Payout{WithdrawalID: "wd-1", Amount: 1})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestHTTPClientInquire(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/payouts/paid":
			_, _ = w.Write([]byte(`{"status":"success","reference":"bank-9"}`))
		case "/payouts/rejected":
			_, _ = w.Write([]byte(`{"status":"rejected"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, time.Second)
	ctx := context.Background()

	got, err := c.Inquire(ctx, "paid")
	require.NoError(t, err)
	assert.Equal(t, Inquiry{Status: InquiryPaid, Reference: "bank-9"}, got)

	got, err = c.Inquire(ctx, "rejected")
	require.NoError(t, err)
	assert.Equal(t, InquiryRejected, got.Status)

	got, err = c.Inquire(ctx, "never-seen")
	require.NoError(t, err)
	assert.Equal(t, InquiryUnknown, got.Status)
}

func TestStaticAlwaysPays(t *testing.T) {
	receipt, err := Static{}.Payout(context.Background(), Payout{WithdrawalID: "wd-1", Amount: 1})
	require.NoError(t, err)
	assert.NotEmpty(t, receipt.Reference)
}

func TestNewSelectsBackend(t *testing.T) {
	assert.IsType(t, Static{}, New("", time.Second))

	c := New("http://bank.local", time.Second)
	_, ok := c.(Inquirer)
	assert.True(t, ok, "the HTTP client supports inquiry")
}
