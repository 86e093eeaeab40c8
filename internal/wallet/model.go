package wallet

import "time"

// EntryType classifies a ledger entry as a debit or a credit.
type EntryType string

const (
	// EntryDebit decreases the wallet balance.
	EntryDebit EntryType = "debit"
	// EntryCredit increases the wallet balance.
	EntryCredit EntryType = "credit"
)

// Wallet is a stored-value account for one (owner, currency) pair. Balance is
// only ever changed by applying a ledger entry; the available and reserved
// fields are views of the same balance split by holds. PendingBalance tracks
// amounts already debited that still await confirmation from the funds-out
// boundary, so it sits outside the balance views.
type Wallet struct {
	ID               string
	OwnerID          string
	Currency         string
	Balance          int64
	AvailableBalance int64
	PendingBalance   int64
	ReservedBalance  int64
	IsDefault        bool
	IsActive         bool
	Collections      bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// LedgerEntry is one immutable debit or credit against one wallet. Amounts are
// positive minor units; the before/after pair makes the journal replayable.
type LedgerEntry struct {
	ID            string
	WalletID      string
	TransactionID string
	Type          EntryType
	Amount        int64
	BalanceBefore int64
	BalanceAfter  int64
	Description   string
	CreatedAt     time.Time
}

// Signed returns the entry amount with debit sign applied.
func (e LedgerEntry) Signed() int64 {
	if e.Type == EntryDebit {
		return -e.Amount
	}
	return e.Amount
}

// ReconcileReport is the outcome of replaying a wallet's journal against its
// stored balance. Drift should always be zero; anything else is a bug.
type ReconcileReport struct {
	WalletID   string
	Recorded   int64
	Computed   int64
	Drift      int64
	EntryCount int
}

// Totals aggregates balances per currency for a snapshot.
type Totals struct {
	Balance   int64
	Available int64
}

// Snapshot is the full wallet view for one owner.
type Snapshot struct {
	OwnerID string
	Wallets []Wallet
	Totals  map[string]Totals
}
