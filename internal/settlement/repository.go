package settlement

import (
	"context"
	"time"
)

// Repository persists company accounts, batches and items. CreateBatch and
// the two terminal operations are atomic units: a batch is never observable
// with some of its items, and a company account is never mutated by a batch
// that did not complete.
type Repository interface {
	CreateAccount(ctx context.Context, a CompanyAccount) error
	GetAccount(ctx context.Context, id string) (CompanyAccount, error)

	// Unsettled filters the candidate ids down to those not yet linked to any item.
	Unsettled(ctx context.Context, txIDs []string) ([]string, error)
	// CreateBatch persists the batch with all items in one atomic step,
	// failing with ErrAlreadySettled when any transaction is already linked.
	CreateBatch(ctx context.Context, b Batch, items []Item) error
	GetBatch(ctx context.Context, id string) (Batch, error)
	Items(ctx context.Context, batchID string) ([]Item, error)

	// MarkProcessing moves PENDING to PROCESSING.
	MarkProcessing(ctx context.Context, batchID string) error
	// CompleteBatch atomically marks the batch COMPLETED, applies the net
	// amount to the company account and appends the company-ledger entry.
	CompleteBatch(ctx context.Context, batchID string, processedAt time.Time, entry CompanyLedgerEntry) error
	// FailBatch atomically marks the batch FAILED with a reason and releases
	// its items so the transactions are selectable by a later run.
	FailBatch(ctx context.Context, batchID, reason string) error
}
