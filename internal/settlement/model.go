package settlement

import (
	"errors"
	"time"

	"github.com/meridianpay/meridian/internal/transaction"
)

// BatchStatus tracks a settlement batch through processing.
type BatchStatus string

const (
	BatchPending    BatchStatus = "PENDING"
	BatchProcessing BatchStatus = "PROCESSING"
	BatchCompleted  BatchStatus = "COMPLETED"
	BatchFailed     BatchStatus = "FAILED"
)

// Direction classifies an item relative to the company account.
type Direction string

const (
	DirectionCredit Direction = "credit"
	DirectionDebit  Direction = "debit"
)

var (
	// ErrNothingToSettle indicates no unsettled transactions matched the window.
	ErrNothingToSettle = errors.New("nothing to settle")
	// ErrAlreadySettled indicates a transaction is already linked to a batch.
	ErrAlreadySettled = errors.New("transaction already settled")
	// ErrBatchNotFound indicates no batch exists for the identifier.
	ErrBatchNotFound = errors.New("settlement batch not found")
	// ErrAccountNotFound indicates no company account exists for the identifier.
	ErrAccountNotFound = errors.New("company account not found")
	// ErrInvalidBatchState indicates the batch is not in the required state.
	ErrInvalidBatchState = errors.New("invalid batch state")
	// ErrCurrencyMismatch indicates the account currency differs from the batch currency.
	ErrCurrencyMismatch = errors.New("account currency mismatch")
)

// CompanyAccount is a company bank account settled batches net against.
type CompanyAccount struct {
	ID       string
	Name     string
	Currency string
	Balance  int64
}

// Batch nets a set of completed transactions for one currency and cutoff.
type Batch struct {
	ID               string
	Reference        string
	CompanyAccountID string
	Currency         string
	CutoffAt         time.Time
	TotalCredits     int64
	TotalDebits      int64
	NetAmount        int64
	Status           BatchStatus
	FailureReason    string
	ItemCount        int
	CreatedAt        time.Time
	ProcessedAt      *time.Time
}

// Item links exactly one transaction to exactly one batch. The unique
// transaction reference is what makes double-settlement impossible under
// concurrent batch runs.
type Item struct {
	ID            string
	BatchID       string
	TransactionID string
	Amount        int64
	Direction     Direction
}

// CompanyLedgerEntry records one net movement against a company account.
type CompanyLedgerEntry struct {
	ID               string
	CompanyAccountID string
	BatchID          string
	Amount           int64
	BalanceBefore    int64
	BalanceAfter     int64
	Description      string
	CreatedAt        time.Time
}

// Classify maps a transaction type to its settlement direction. Internal
// movements (wallet-to-wallet transfers, holds) never touch the company bank
// account and are not settleable.
func Classify(t transaction.Type) (Direction, bool) {
	switch t {
	case transaction.TypeDeposit, transaction.TypePayment:
		return DirectionCredit, true
	case transaction.TypeWithdrawal, transaction.TypePayout, transaction.TypeRefund:
		return DirectionDebit, true
	default:
		return "", false
	}
}
