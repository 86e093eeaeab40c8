package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"
)

// Handler exposes wallet read endpoints.
type Handler struct {
	service *Service
}

// NewHandler constructs a wallet handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Me returns the caller's wallets with per-currency totals.
func (h *Handler) Me(c *fiber.Ctx) error {
	uid, _ := c.Locals("user_id").(string)
	if uid == "" {
		return fiber.NewError(http.StatusUnauthorized, "missing caller identity")
	}

	snap, err := h.service.SnapshotFor(c.UserContext(), uid)
	if err != nil {
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}

	wallets := make([]fiber.Map, 0, len(snap.Wallets))
	for _, w := range snap.Wallets {
		wallets = append(wallets, fiber.Map{
			"id":                w.ID,
			"currency":          w.Currency,
			"balance":           w.Balance,
			"available_balance": w.AvailableBalance,
			"pending_balance":   w.PendingBalance,
			"reserved_balance":  w.ReservedBalance,
			"is_default":        w.IsDefault,
			"is_active":         w.IsActive,
		})
	}
	return c.JSON(fiber.Map{"owner_id": snap.OwnerID, "wallets": wallets, "totals": snap.Totals})
}

// Reconcile replays a wallet's journal and reports drift.
func (h *Handler) Reconcile(c *fiber.Ctx) error {
	report, err := h.service.Reconcile(c.UserContext(), c.Params("walletId"))
	if err != nil {
		if errors.Is(err, ErrWalletNotFound) {
			return fiber.NewError(http.StatusNotFound, "wallet not found")
		}
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(fiber.Map{
		"wallet_id":   report.WalletID,
		"recorded":    report.Recorded,
		"computed":    report.Computed,
		"drift":       report.Drift,
		"entry_count": report.EntryCount,
	})
}
