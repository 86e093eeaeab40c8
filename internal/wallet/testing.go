package wallet

import (
	"context"

	"github.com/google/uuid"
)

// SeedBalance credits a wallet through a synthetic ledger entry so tests can
// arrange funds without bypassing the journal.
func SeedBalance(store Store, walletID string, amount int64) {
	_, _ = store.ApplyEntries(context.Background(), []ApplyInput{{
		WalletID:      walletID,
		Type:          EntryCredit,
		Amount:        amount,
		TransactionID: uuid.NewString(),
		Description:   "seed",
	}})
}
