package settlement

import (
	"context"
	"sync"
	"time"
)

type memoryRepository struct {
	mu       sync.Mutex
	accounts map[string]CompanyAccount
	batches  map[string]Batch
	items    map[string][]Item
	settled  map[string]string // transaction id -> batch id
	entries  map[string][]CompanyLedgerEntry
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		accounts: make(map[string]CompanyAccount),
		batches:  make(map[string]Batch),
		items:    make(map[string][]Item),
		settled:  make(map[string]string),
		entries:  make(map[string][]CompanyLedgerEntry),
	}
}

func (r *memoryRepository) CreateAccount(_ context.Context, a CompanyAccount) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[a.ID] = a
	return nil
}

func (r *memoryRepository) GetAccount(_ context.Context, id string) (CompanyAccount, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return CompanyAccount{}, ErrAccountNotFound
	}
	return a, nil
}

func (r *memoryRepository) Unsettled(_ context.Context, txIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, id := range txIDs {
		if _, taken := r.settled[id]; !taken {
			out = append(out, id)
		}
	}
	return out, nil
}

func (r *memoryRepository) CreateBatch(_ context.Context, b Batch, items []Item) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, item := range items {
		if _, taken := r.settled[item.TransactionID]; taken {
			return ErrAlreadySettled
		}
	}
	r.batches[b.ID] = b
	r.items[b.ID] = items
	for _, item := range items {
		r.settled[item.TransactionID] = b.ID
	}
	return nil
}

func (r *memoryRepository) GetBatch(_ context.Context, id string) (Batch, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[id]
	if !ok {
		return Batch{}, ErrBatchNotFound
	}
	return b, nil
}

func (r *memoryRepository) Items(_ context.Context, batchID string) ([]Item, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	items := r.items[batchID]
	out := make([]Item, len(items))
	copy(out, items)
	return out, nil
}

func (r *memoryRepository) MarkProcessing(_ context.Context, batchID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	if b.Status != BatchPending {
		return ErrInvalidBatchState
	}
	b.Status = BatchProcessing
	r.batches[batchID] = b
	return nil
}

func (r *memoryRepository) CompleteBatch(_ context.Context, batchID string, processedAt time.Time, entry CompanyLedgerEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	if b.Status != BatchProcessing {
		return ErrInvalidBatchState
	}
	a, ok := r.accounts[b.CompanyAccountID]
	if !ok {
		return ErrAccountNotFound
	}
	a.Balance = entry.BalanceAfter
	b.Status = BatchCompleted
	t := processedAt.UTC()
	b.ProcessedAt = &t
	r.accounts[a.ID] = a
	r.batches[batchID] = b
	r.entries[a.ID] = append(r.entries[a.ID], entry)
	return nil
}

func (r *memoryRepository) FailBatch(_ context.Context, batchID, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.batches[batchID]
	if !ok {
		return ErrBatchNotFound
	}
	b.Status = BatchFailed
	b.FailureReason = reason
	r.batches[batchID] = b
	for _, item := range r.items[batchID] {
		delete(r.settled, item.TransactionID)
	}
	delete(r.items, batchID)
	return nil
}
