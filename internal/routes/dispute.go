package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/meridianpay/meridian/internal/dispute"
)

// RegisterDisputeRoutes wires dispute filing and resolution endpoints.
func RegisterDisputeRoutes(r fiber.Router, h *dispute.Handler) {
	r.Post("/disputes", h.Open)
	r.Get("/disputes/:id", h.Get)
	r.Post("/disputes/:id/resolve", h.Resolve)
}
