package transaction

import (
	"context"
	"time"
)

// Repository persists transactions. Create enforces uniqueness of both the
// reference id and the idempotency key; UpdateStatus enforces the state
// machine.
type Repository interface {
	Create(ctx context.Context, tx Transaction) error
	Get(ctx context.Context, id string) (Transaction, error)
	FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error)
	UpdateStatus(ctx context.Context, id string, next Status, failureReason string, processedAt *time.Time) error
	List(ctx context.Context, ownerID string, f Filter) ([]Transaction, error)
	// CompletedBefore returns COMPLETED transactions in the currency whose
	// processed time precedes the cutoff. The settlement batcher filters out
	// already-settled ids through its own unique item link.
	CompletedBefore(ctx context.Context, currency string, cutoff time.Time) ([]Transaction, error)
	// HasPair reports whether a completed movement from sender to receiver exists.
	HasPair(ctx context.Context, senderID, receiverID string) (bool, error)
}
