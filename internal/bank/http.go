package bank

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

const statusSuccess = "success"

// HTTPClient talks to the bank's payout endpoint.
type HTTPClient struct {
	client *resty.Client
}

var (
	_ Client   = (*HTTPClient)(nil)
	_ Inquirer = (*HTTPClient)(nil)
)

type payoutResponse struct {
	Data      string `json:"data"`
	Reference string `json:"reference"`
	Message   string `json:"message"`
}

type inquiryResponse struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
}

// NewHTTPClient builds a client for baseURL. timeout bounds each request; callers
// may set a tighter deadline on the context.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	c := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(timeout).
		SetHeader("Accept", "application/json")
	return &HTTPClient{client: c}
}

// Payout posts the payout and succeeds only when the bank answers data == "success".
func (c *HTTPClient) Payout(ctx context.Context, p Payout) (Receipt, error) {
	var out payoutResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Idempotency-Key", p.WithdrawalID).
		SetBody(p).
		SetResult(&out).
		Post("/payouts")
	if err != nil {
		return Receipt{}, fmt.Errorf("payout %s: %w", p.WithdrawalID, err)
	}

	if resp.StatusCode() >= http.StatusInternalServerError {
		return Receipt{}, fmt.Errorf("payout %s: bank returned %s", p.WithdrawalID, resp.Status())
	}
	if out.Data != statusSuccess {
		reason := out.Message
		if reason == "" {
			reason = fmt.Sprintf("status %d, response %s", resp.StatusCode(), resp.String())
		}
		return Receipt{}, &RejectedError{Reason: reason}
	}

	ref := out.Reference
	if ref == "" {
		ref = p.WithdrawalID
	}
	return Receipt{Reference: ref}, nil
}

// Inquire looks up a previous payout. A 404 means the bank never saw it.
func (c *HTTPClient) Inquire(ctx context.Context, withdrawalID string) (Inquiry, error) {
	var out inquiryResponse
	resp, err := c.client.R().
		SetContext(ctx).
		SetPathParam("id", withdrawalID).
		SetResult(&out).
		Get("/payouts/{id}")
	if err != nil {
		return Inquiry{}, fmt.Errorf("inquire %s: %w", withdrawalID, err)
	}

	switch {
	case resp.StatusCode() == http.StatusNotFound:
		return Inquiry{Status: InquiryUnknown}, nil
	case resp.IsError():
		return Inquiry{}, fmt.Errorf("inquire %s: bank returned %s", withdrawalID, resp.Status())
	}

	switch out.Status {
	case statusSuccess, string(InquiryPaid):
		return Inquiry{Status: InquiryPaid, Reference: out.Reference}, nil
	case string(InquiryRejected):
		return Inquiry{Status: InquiryRejected}, nil
	default:
		return Inquiry{Status: InquiryUnknown}, nil
	}
}
