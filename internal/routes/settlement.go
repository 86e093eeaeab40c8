package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/meridianpay/meridian/internal/settlement"
)

// RegisterSettlementRoutes wires the back-office settlement endpoints.
func RegisterSettlementRoutes(r fiber.Router, h *settlement.Handler) {
	r.Post("/settlements", h.CreateBatch)
	r.Get("/settlements/:id", h.GetBatch)
	r.Post("/settlements/:id/process", h.ProcessBatch)
}
