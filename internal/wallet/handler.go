package wallet

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/ledger"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// Create provisions a wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	w, err := h.service.Create(c.UserContext(), CreateInput{ID: req.ID})
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(walletResponse{
		ID:        w.ID,
		Balance:   w.Balance,
		Revision:  w.Revision,
		CreatedAt: w.CreatedAt,
	})
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	walletID := c.Params("walletId")
	balance, err := h.service.Balance(c.UserContext(), walletID)
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id": walletID,
		"balance":   balance.Amount,
		"revision":  balance.Revision,
		"timestamp": balance.AsOf,
	})
}

// Deposit credits the wallet.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req DepositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	requestID := req.RequestID
	if requestID == "" {
		requestID = c.Get("Idempotency-Key")
	}

	res, err := h.service.Deposit(c.UserContext(), DepositInput{
		WalletID:  c.Params("walletId"),
		Amount:    req.Amount,
		RequestID: requestID,
	})
	if err != nil {
		if errors.Is(err, ledger.ErrDuplicateTransaction) {
			return c.Status(http.StatusOK).JSON(toDepositResponse(res))
		}
		return toHTTPError(err)
	}

	return c.Status(http.StatusCreated).JSON(toDepositResponse(res))
}

// Transactions lists recent ledger entries of the wallet.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	entries, err := h.service.Transactions(c.UserContext(), c.Params("walletId"), c.QueryInt("limit", defaultTransactionLimit))
	if err != nil {
		return toHTTPError(err)
	}

	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{ID: e.ID, Amount: e.Amount, Kind: e.Kind, Reference: e.Reference, CreatedAt: e.CreatedAt})
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{"wallet_id": c.Params("walletId"), "transactions": out})
}

// Reconcile compares the balance with the wallet's entries and active holds.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	report, err := h.service.Reconcile(c.UserContext(), c.Params("walletId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(reconcileResponse{
		WalletID: report.WalletID,
		Balance:  report.Balance,
		Logged:   report.Logged,
		InFlight: report.InFlight,
		Balanced: report.Balanced,
	})
}

func toHTTPError(err error) error {
	switch {
	case ledger.IsValidation(err):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrWalletNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	default:
		return err
	}
}
