package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/walletd/internal/withdrawal"
)

// RegisterWithdrawalRoutes wires scheduled withdrawal endpoints.
func RegisterWithdrawalRoutes(r fiber.Router, h *withdrawal.Handler) {
	r.Post("/wallets/:walletId/withdrawals", h.Schedule)
	r.Get("/withdrawals/:withdrawalId", h.Get)
}
