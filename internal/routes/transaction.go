package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/meridianpay/meridian/internal/transaction"
)

// RegisterTransactionRoutes wires the transfer and lifecycle endpoints.
func RegisterTransactionRoutes(r fiber.Router, h *transaction.Handler) {
	r.Post("/transfers", h.Transfer)
	r.Get("/transactions", h.List)
	r.Post("/transactions/:id/cancel", h.Cancel)
	r.Post("/transactions/:id/resolve-hold", h.ResolveHold)

	r.Post("/deposits", h.Deposit)
	r.Post("/withdrawals", h.Withdraw)
	r.Post("/withdrawals/:id/confirm", h.ConfirmWithdrawal)
}
