package transaction

import (
	"errors"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/meridianpay/meridian/internal/identity"
	"github.com/meridianpay/meridian/internal/wallet"
)

// Handler exposes transfer and transaction lifecycle endpoints. Every failure
// carries a stable reason code so the surrounding application can render UI
// without inspecting internals.
type Handler struct {
	orchestrator *Orchestrator
}

// NewHandler constructs a transaction handler.
func NewHandler(orchestrator *Orchestrator) *Handler {
	return &Handler{orchestrator: orchestrator}
}

type transferRequest struct {
	ReceiverRef string `json:"receiver"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	DeviceID    string `json:"device_id"`
	Country     string `json:"country"`
}

// Transfer executes a wallet-to-wallet transfer for the caller.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	var req transferRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "validation", err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return respondError(c, http.StatusUnauthorized, "validation", "missing caller identity")
	}

	res, err := h.orchestrator.Execute(c.UserContext(), TransferRequest{
		SenderID:       uid,
		ReceiverRef:    req.ReceiverRef,
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: c.Get("Idempotency-Key"),
		DeviceID:       req.DeviceID,
		IP:             c.IP(),
		Country:        req.Country,
	})
	if err != nil {
		return respondTransferError(c, err)
	}

	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"transaction":      transactionJSON(res.Transaction),
		"fee":              res.Fee,
		"net_amount":       res.NetAmount,
		"sender_balance":   res.SenderBalance,
		"receiver_balance": res.ReceiverBalance,
		"replayed":         res.Replayed,
	})
}

// List returns the caller's transactions with optional filters.
func (h *Handler) List(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return respondError(c, http.StatusUnauthorized, "validation", "missing caller identity")
	}

	f := Filter{
		Status: Status(c.Query("status")),
		Type:   Type(c.Query("type")),
		Limit:  c.QueryInt("limit", 50),
		Offset: c.QueryInt("offset", 0),
	}
	if v := c.Query("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "validation", "invalid from timestamp")
		}
		f.From = t
	}
	if v := c.Query("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return respondError(c, http.StatusBadRequest, "validation", "invalid to timestamp")
		}
		f.To = t
	}

	txs, err := h.orchestrator.List(c.UserContext(), uid, f)
	if err != nil {
		return respondError(c, http.StatusInternalServerError, "system", err.Error())
	}

	out := make([]fiber.Map, 0, len(txs))
	for _, tx := range txs {
		out = append(out, transactionJSON(tx))
	}
	return c.JSON(fiber.Map{"transactions": out, "limit": f.Limit, "offset": f.Offset})
}

// Cancel aborts a pending transaction inside the cancellation window.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	tx, err := h.orchestrator.Cancel(c.UserContext(), c.Params("id"), uid)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return respondError(c, http.StatusNotFound, "not_found", "transaction not found")
		case errors.Is(err, ErrNotOwner):
			return respondError(c, http.StatusForbidden, "validation", "not owner of transaction")
		case errors.Is(err, ErrNotCancellable):
			return respondError(c, http.StatusConflict, "conflict", "transaction not cancellable")
		case errors.Is(err, ErrCancelWindowElapsed):
			return respondError(c, http.StatusConflict, "conflict", "cancellation window elapsed")
		default:
			return respondError(c, http.StatusInternalServerError, "system", err.Error())
		}
	}
	return c.JSON(transactionJSON(tx))
}

type resolveHoldRequest struct {
	Approve bool `json:"approve"`
}

// ResolveHold applies a manual review decision to an ON_HOLD transaction.
func (h *Handler) ResolveHold(c *fiber.Ctx) error {
	var req resolveHoldRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "validation", err.Error())
	}
	tx, err := h.orchestrator.ResolveHold(c.UserContext(), c.Params("id"), req.Approve)
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return respondError(c, http.StatusNotFound, "not_found", "transaction not found")
		case errors.Is(err, ErrInvalidTransition):
			return respondError(c, http.StatusConflict, "conflict", "transaction not on hold")
		default:
			return respondError(c, http.StatusInternalServerError, "system", err.Error())
		}
	}
	return c.JSON(transactionJSON(tx))
}

type depositRequest struct {
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Reference string `json:"reference"`
}

// Deposit records funds arriving from the external funds-in boundary.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "validation", err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	tx, err := h.orchestrator.Deposit(c.UserContext(), DepositRequest{
		UserID:    uid,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Reference: req.Reference,
	})
	if err != nil {
		return respondTransferError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(transactionJSON(tx))
}

type withdrawRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Withdraw starts a funds-out movement.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "validation", err.Error())
	}
	uid, _ := c.Locals("user_id").(string)
	tx, err := h.orchestrator.Withdraw(c.UserContext(), WithdrawRequest{
		UserID:         uid,
		Amount:         req.Amount,
		Currency:       req.Currency,
		IdempotencyKey: c.Get("Idempotency-Key"),
	})
	if err != nil {
		return respondTransferError(c, err)
	}
	return c.Status(http.StatusCreated).JSON(transactionJSON(tx))
}

// ConfirmWithdrawal completes a pending withdrawal after the funds-out
// boundary reports success.
func (h *Handler) ConfirmWithdrawal(c *fiber.Ctx) error {
	tx, err := h.orchestrator.ConfirmWithdrawal(c.UserContext(), c.Params("id"))
	if err != nil {
		switch {
		case errors.Is(err, ErrNotFound):
			return respondError(c, http.StatusNotFound, "not_found", "transaction not found")
		case errors.Is(err, ErrInvalidTransition):
			return respondError(c, http.StatusConflict, "conflict", "withdrawal not pending")
		default:
			return respondError(c, http.StatusInternalServerError, "system", err.Error())
		}
	}
	return c.JSON(transactionJSON(tx))
}

func respondTransferError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, ErrInvalidAmount), errors.Is(err, ErrUnsupportedCurrency),
		errors.Is(err, ErrSelfTransfer), errors.Is(err, ErrRecipientInactive),
		errors.Is(err, identity.ErrUnknownUser):
		return respondError(c, http.StatusBadRequest, "validation", err.Error())
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return respondError(c, http.StatusBadRequest, "funds", "insufficient funds")
	case errors.Is(err, wallet.ErrWalletInactive):
		return respondError(c, http.StatusForbidden, "validation", "wallet inactive")
	case errors.Is(err, ErrRiskBlocked):
		return respondError(c, http.StatusForbidden, "risk", "transfer blocked by risk policy")
	case errors.Is(err, ErrStepUpRequired):
		return respondError(c, http.StatusForbidden, "risk", "step-up authentication required")
	default:
		return respondError(c, http.StatusInternalServerError, "system", err.Error())
	}
}

func respondError(c *fiber.Ctx, status int, code, message string) error {
	return c.Status(status).JSON(fiber.Map{"code": code, "error": message})
}

func transactionJSON(tx Transaction) fiber.Map {
	out := fiber.Map{
		"id":           tx.ID,
		"reference_id": tx.ReferenceID,
		"type":         tx.Type,
		"status":       tx.Status,
		"sender_id":    tx.SenderID,
		"receiver_id":  tx.ReceiverID,
		"amount":       tx.Amount,
		"currency":     tx.Currency,
		"fee":          tx.Fee,
		"net_amount":   tx.NetAmount,
		"created_at":   tx.CreatedAt,
	}
	if tx.FailureReason != "" {
		out["failure_reason"] = tx.FailureReason
	}
	if tx.ProcessedAt != nil {
		out["processed_at"] = tx.ProcessedAt
	}
	return out
}
