package settlement

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes operational settlement endpoints. These are back-office
// surfaces; the scheduler drives the steady state.
type Handler struct {
	service *Service
}

// NewHandler constructs a settlement handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type createBatchRequest struct {
	CompanyAccountID string `json:"company_account_id"`
	Currency         string `json:"currency"`
	Cutoff           string `json:"cutoff"`
}

// CreateBatch builds a batch from unsettled transactions up to the cutoff.
func (h *Handler) CreateBatch(c *fiber.Ctx) error {
	var req createBatchRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	cutoff := time.Now().UTC()
	if req.Cutoff != "" {
		t, err := time.Parse(time.RFC3339, req.Cutoff)
		if err != nil {
			return fiber.NewError(http.StatusBadRequest, "invalid cutoff timestamp")
		}
		cutoff = t
	}

	batch, err := h.service.CreateBatch(c.UserContext(), req.CompanyAccountID, cutoff, req.Currency)
	if err != nil {
		switch {
		case errors.Is(err, ErrAccountNotFound):
			return fiber.NewError(http.StatusNotFound, "company account not found")
		case errors.Is(err, ErrCurrencyMismatch):
			return fiber.NewError(http.StatusBadRequest, "currency does not match company account")
		case errors.Is(err, ErrNothingToSettle):
			return fiber.NewError(http.StatusConflict, "nothing to settle")
		case errors.Is(err, ErrAlreadySettled):
			return fiber.NewError(http.StatusConflict, "transactions already settled by a concurrent run")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.Status(http.StatusCreated).JSON(batchJSON(batch))
}

// ProcessBatch settles a pending batch against its company account.
func (h *Handler) ProcessBatch(c *fiber.Ctx) error {
	batch, err := h.service.ProcessBatch(c.UserContext(), c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrBatchNotFound):
			return fiber.NewError(http.StatusNotFound, "batch not found")
		case errors.Is(err, ErrInvalidBatchState):
			return fiber.NewError(http.StatusConflict, "batch is not pending")
		default:
			return fiber.NewError(http.StatusInternalServerError, err.Error())
		}
	}
	return c.JSON(batchJSON(batch))
}

// GetBatch returns one batch.
func (h *Handler) GetBatch(c *fiber.Ctx) error {
	batch, err := h.service.GetBatch(c.UserContext(), c.Params("id"))
	if err != nil {
		if errors.Is(err, ErrBatchNotFound) {
			return fiber.NewError(http.StatusNotFound, "batch not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(batchJSON(batch))
}

func batchJSON(b Batch) fiber.Map {
	out := fiber.Map{
		"id":                 b.ID,
		"reference":          b.Reference,
		"company_account_id": b.CompanyAccountID,
		"currency":           b.Currency,
		"status":             b.Status,
		"cutoff_at":          b.CutoffAt,
		"total_credits":      b.TotalCredits,
		"total_debits":       b.TotalDebits,
		"net_amount":         b.NetAmount,
		"item_count":         b.ItemCount,
		"created_at":         b.CreatedAt,
	}
	if b.FailureReason != "" {
		out["failure_reason"] = b.FailureReason
	}
	if b.ProcessedAt != nil {
		out["processed_at"] = b.ProcessedAt
	}
	return out
}
