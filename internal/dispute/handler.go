package dispute

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/meridianpay/meridian/internal/transaction"
)

// Handler exposes dispute filing and resolution endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a dispute handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type openRequest struct {
	TransactionID string `json:"transaction_id"`
	Reason        string `json:"reason"`
}

// Open files a dispute against a completed transaction.
func (h *Handler) Open(c *fiber.Ctx) error {
	var req openRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	if req.TransactionID == "" || req.Reason == "" {
		return fiber.NewError(http.StatusBadRequest, "transaction_id and reason are required")
	}

	d, err := h.service.Open(c.UserContext(), req.TransactionID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, transaction.ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "transaction not found")
		case errors.Is(err, ErrNotDisputable):
			return fiber.NewError(http.StatusConflict, "transaction not disputable")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(disputeJSON(d))
}

// Get returns one dispute.
func (h *Handler) Get(c *fiber.Ctx) error {
	d, err := h.service.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return fiber.NewError(http.StatusNotFound, "dispute not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(disputeJSON(d))
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

// Resolve applies an outcome to an open dispute.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}

	d, err := h.service.Resolve(c.UserContext(), c.Params("id"), Outcome(req.Outcome))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return fiber.NewError(http.StatusNotFound, "dispute not found")
		case errors.Is(err, ErrInvalidOutcome):
			return fiber.NewError(http.StatusBadRequest, "outcome must be UPHELD or REJECTED")
		case errors.Is(err, ErrAlreadyResolved):
			return fiber.NewError(http.StatusConflict, "dispute already resolved")
		case errors.Is(err, ErrNotDisputable):
			return fiber.NewError(http.StatusConflict, "transaction no longer disputable")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(disputeJSON(d))
}

func disputeJSON(d Dispute) fiber.Map {
	out := fiber.Map{
		"id":             d.ID,
		"transaction_id": d.TransactionID,
		"reason":         d.Reason,
		"status":         d.Status,
		"chargeback_fee": d.ChargebackFee,
		"created_at":     d.CreatedAt,
	}
	if d.Outcome != "" {
		out["outcome"] = d.Outcome
	}
	if d.ResolvedAt != nil {
		out["resolved_at"] = d.ResolvedAt
	}
	return out
}
