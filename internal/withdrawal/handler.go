package withdrawal

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/ledger"
)

// Handler exposes withdrawal scheduling and lookup endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
	loc      *time.Location
}

// NewHandler constructs a withdrawal handler. loc is the zone used for
// scheduled_for values without an offset.
func NewHandler(service *Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, validate: validator.New(), loc: loc}
}

// Schedule queues a withdrawal for future execution.
func (h *Handler) Schedule(c *fiber.Ctx) error {
	var req ScheduleRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	scheduledFor, err := ParseScheduledFor(req.ScheduledFor, h.loc)
	if err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	id := req.ID
	if id == "" {
		id = c.Get("Idempotency-Key")
	}

	w, err := h.service.Schedule(c.UserContext(), ScheduleInput{
		ID:           id,
		WalletID:     c.Params("walletId"),
		Amount:       req.Amount,
		ScheduledFor: scheduledFor,
	})
	if err != nil {
		return toHTTPError(err)
	}

	return c.Status(http.StatusCreated).JSON(toResponse(w))
}

// Get returns the status of a scheduled withdrawal.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.Find(c.UserContext(), c.Params("withdrawalId"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.Status(http.StatusOK).JSON(toResponse(w))
}

func toHTTPError(err error) error {
	switch {
	case ledger.IsValidation(err):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.Is(err, ledger.ErrWalletNotFound), errors.Is(err, ErrNotFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrIDConflict):
		return fiber.NewError(http.StatusConflict, err.Error())
	default:
		return err
	}
}
