package transaction

import (
	"context"
	"sort"
	"sync"
	"time"
)

type memoryRepository struct {
	mu      sync.RWMutex
	byID    map[string]Transaction
	byRef   map[string]string
	byIdem  map[string]string
	ordered []string
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{
		byID:   make(map[string]Transaction),
		byRef:  make(map[string]string),
		byIdem: make(map[string]string),
	}
}

func (r *memoryRepository) Create(_ context.Context, tx Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byRef[tx.ReferenceID]; exists {
		return ErrDuplicateReference
	}
	if tx.IdempotencyKey != "" {
		if _, exists := r.byIdem[tx.IdempotencyKey]; exists {
			return ErrDuplicateIdempotencyKey
		}
		r.byIdem[tx.IdempotencyKey] = tx.ID
	}
	r.byID[tx.ID] = tx
	r.byRef[tx.ReferenceID] = tx.ID
	r.ordered = append(r.ordered, tx.ID)
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tx, ok := r.byID[id]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return tx, nil
}

func (r *memoryRepository) FindByIdempotencyKey(_ context.Context, key string) (Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byIdem[key]
	if !ok {
		return Transaction{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) UpdateStatus(_ context.Context, id string, next Status, failureReason string, processedAt *time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	tx, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if !tx.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}
	tx.Status = next
	tx.FailureReason = failureReason
	if processedAt != nil {
		t := processedAt.UTC()
		tx.ProcessedAt = &t
	}
	r.byID[id] = tx
	return nil
}

func (r *memoryRepository) List(_ context.Context, ownerID string, f Filter) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transaction
	for _, id := range r.ordered {
		tx := r.byID[id]
		if tx.SenderID != ownerID && tx.ReceiverID != ownerID {
			continue
		}
		if f.Status != "" && tx.Status != f.Status {
			continue
		}
		if f.Type != "" && tx.Type != f.Type {
			continue
		}
		if !f.From.IsZero() && tx.CreatedAt.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && tx.CreatedAt.After(f.To) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && f.Limit < len(out) {
		out = out[:f.Limit]
	}
	return out, nil
}

func (r *memoryRepository) HasPair(_ context.Context, senderID, receiverID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.ordered {
		tx := r.byID[id]
		if tx.SenderID == senderID && tx.ReceiverID == receiverID && tx.Status == StatusCompleted {
			return true, nil
		}
	}
	return false, nil
}

func (r *memoryRepository) CompletedBefore(_ context.Context, currency string, cutoff time.Time) ([]Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Transaction
	for _, id := range r.ordered {
		tx := r.byID[id]
		if tx.Status != StatusCompleted || tx.Currency != currency {
			continue
		}
		if tx.ProcessedAt == nil || !tx.ProcessedAt.Before(cutoff) {
			continue
		}
		out = append(out, tx)
	}
	return out, nil
}
