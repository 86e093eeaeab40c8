package wallet

import (
	"context"
	"errors"
)

var (
	// ErrInsufficientFunds occurs when a debit would drive available balance below zero.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrWalletNotFound indicates no wallet exists for the identifier.
	ErrWalletNotFound = errors.New("wallet not found")
	// ErrWalletInactive indicates the wallet cannot take part in movements.
	ErrWalletInactive = errors.New("wallet inactive")
	// ErrInvalidAmount indicates a non-positive amount was supplied.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrHoldExceeded indicates a hold or release larger than the funds backing it.
	ErrHoldExceeded = errors.New("hold exceeds backing funds")
	// ErrPendingExceeded indicates a pending release larger than the tracked in-flight funds.
	ErrPendingExceeded = errors.New("release exceeds pending funds")
)

// ApplyInput describes one ledger entry to append. AllowNegative is reserved
// for the reversal path, where the debit must land even if the wallet cannot
// cover it.
type ApplyInput struct {
	WalletID      string
	Type          EntryType
	Amount        int64
	TransactionID string
	Description   string
	AllowNegative bool
}

// Store persists wallets and their journals. ApplyEntries is the only write
// path for balances: all inputs commit in one atomic unit or none do, and
// mutations against the same wallet are totally ordered by the backend.
type Store interface {
	Create(ctx context.Context, w Wallet) error
	Get(ctx context.Context, id string) (Wallet, error)
	FindByOwner(ctx context.Context, ownerID, currency string) (Wallet, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Wallet, error)
	ApplyEntries(ctx context.Context, inputs []ApplyInput) ([]LedgerEntry, error)
	Hold(ctx context.Context, walletID string, amount int64) error
	ReleaseHold(ctx context.Context, walletID string, amount int64) error
	ShiftPending(ctx context.Context, walletID string, delta int64) error
	Entries(ctx context.Context, walletID string, limit int) ([]LedgerEntry, error)
}
