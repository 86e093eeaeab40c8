package transaction

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
)

func seedTx(t *testing.T, repo Repository, idemKey string) Transaction {
	t.Helper()
	tx := Transaction{
		ID:             uuid.NewString(),
		ReferenceID:    "TXN-" + uuid.NewString(),
		IdempotencyKey: idemKey,
		Type:           TypeTransferOut,
		Status:         StatusPending,
		SenderID:       uuid.NewString(),
		ReceiverID:     uuid.NewString(),
		Amount:         1_000,
		Currency:       "USD",
		NetAmount:      1_000,
		CreatedAt:      time.Now().UTC(),
	}
	if err := repo.Create(context.Background(), tx); err != nil {
		t.Fatalf("create: %v", err)
	}
	return tx
}

func TestRepositoryRejectsDuplicateIdempotencyKey(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	first := seedTx(t, repo, "key-1")

	dup := first
	dup.ID = uuid.NewString()
	dup.ReferenceID = "TXN-" + uuid.NewString()
	if err := repo.Create(ctx, dup); !errors.Is(err, ErrDuplicateIdempotencyKey) {
		t.Fatalf("expected ErrDuplicateIdempotencyKey got %v", err)
	}

	found, err := repo.FindByIdempotencyKey(ctx, "key-1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if found.ID != first.ID {
		t.Fatalf("found %s want %s", found.ID, first.ID)
	}
}

func TestRepositoryRejectsDuplicateReference(t *testing.T) {
	repo := NewMemoryRepository()
	first := seedTx(t, repo, "")

	dup := first
	dup.ID = uuid.NewString()
	if err := repo.Create(context.Background(), dup); !errors.Is(err, ErrDuplicateReference) {
		t.Fatalf("expected ErrDuplicateReference got %v", err)
	}
}

func TestRepositoryEnforcesStateMachine(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	tx := seedTx(t, repo, "")

	now := time.Now().UTC()
	if err := repo.UpdateStatus(ctx, tx.ID, StatusCompleted, "", &now); err != nil {
		t.Fatalf("pending -> completed: %v", err)
	}
	if err := repo.UpdateStatus(ctx, tx.ID, StatusPending, "", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition got %v", err)
	}
	if err := repo.UpdateStatus(ctx, tx.ID, StatusReversed, "chargeback_upheld", nil); err != nil {
		t.Fatalf("completed -> reversed: %v", err)
	}
}

func TestRepositoryListFiltersAndPaginates(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	owner := uuid.NewString()

	for i := 0; i < 5; i++ {
		tx := Transaction{
			ID:          uuid.NewString(),
			ReferenceID: "TXN-" + uuid.NewString(),
			Type:        TypeTransferOut,
			Status:      StatusPending,
			SenderID:    owner,
			ReceiverID:  uuid.NewString(),
			Amount:      int64(100 * (i + 1)),
			Currency:    "USD",
			CreatedAt:   time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := repo.Create(ctx, tx); err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
	}

	page, err := repo.List(ctx, owner, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d want 2", len(page))
	}
	// Newest first.
	if page[0].Amount != 500 {
		t.Fatalf("expected newest first, got amount %d", page[0].Amount)
	}

	rest, err := repo.List(ctx, owner, Filter{Offset: 4})
	if err != nil {
		t.Fatalf("list offset: %v", err)
	}
	if len(rest) != 1 {
		t.Fatalf("offset page size = %d want 1", len(rest))
	}

	none, err := repo.List(ctx, owner, Filter{Status: StatusCompleted})
	if err != nil {
		t.Fatalf("list status: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("expected no completed transactions, got %d", len(none))
	}
}

func TestRepositoryHasPair(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	tx := seedTx(t, repo, "")

	ok, err := repo.HasPair(ctx, tx.SenderID, tx.ReceiverID)
	if err != nil {
		t.Fatalf("has pair: %v", err)
	}
	if ok {
		t.Fatal("pending transaction should not count as prior payment")
	}

	now := time.Now().UTC()
	if err := repo.UpdateStatus(ctx, tx.ID, StatusCompleted, "", &now); err != nil {
		t.Fatalf("complete: %v", err)
	}
	ok, err = repo.HasPair(ctx, tx.SenderID, tx.ReceiverID)
	if err != nil {
		t.Fatalf("has pair: %v", err)
	}
	if !ok {
		t.Fatal("expected completed pair to count")
	}
}
