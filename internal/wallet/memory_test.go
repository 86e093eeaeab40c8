package wallet

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
)

func newTestWallet(t *testing.T, store Store, currency string) Wallet {
	t.Helper()
	w := Wallet{
		ID:       uuid.NewString(),
		OwnerID:  uuid.NewString(),
		Currency: currency,
		IsActive: true,
	}
	if err := store.Create(context.Background(), w); err != nil {
		t.Fatalf("create wallet: %v", err)
	}
	return w
}

func TestApplyEntriesDebitAndCredit(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	w := newTestWallet(t, store, "USD")
	SeedBalance(store, w.ID, 10_000)

	entries, err := store.ApplyEntries(ctx, []ApplyInput{{
		WalletID: w.ID, Type: EntryDebit, Amount: 4_000,
		TransactionID: uuid.NewString(), Description: "test debit",
	}})
	if err != nil {
		t.Fatalf("apply debit: %v", err)
	}
	if entries[0].BalanceBefore != 10_000 || entries[0].BalanceAfter != 6_000 {
		t.Fatalf("unexpected before/after: %d/%d", entries[0].BalanceBefore, entries[0].BalanceAfter)
	}

	got, err := store.Get(ctx, w.ID)
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if got.Balance != 6_000 || got.AvailableBalance != 6_000 {
		t.Fatalf("expected balance 6000 got %d available %d", got.Balance, got.AvailableBalance)
	}
}

func TestApplyEntriesRejectsOverdraft(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	w := newTestWallet(t, store, "USD")
	SeedBalance(store, w.ID, 100)

	_, err := store.ApplyEntries(ctx, []ApplyInput{{
		WalletID: w.ID, Type: EntryDebit, Amount: 101,
		TransactionID: uuid.NewString(),
	}})
	if err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds got %v", err)
	}

	got, _ := store.Get(ctx, w.ID)
	if got.Balance != 100 {
		t.Fatalf("balance changed after rejected debit: %d", got.Balance)
	}
}

func TestApplyEntriesAllOrNothing(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	sender := newTestWallet(t, store, "USD")
	receiver := newTestWallet(t, store, "USD")
	SeedBalance(store, sender.ID, 50)

	txID := uuid.NewString()
	_, err := store.ApplyEntries(ctx, []ApplyInput{
		{WalletID: sender.ID, Type: EntryDebit, Amount: 100, TransactionID: txID},
		{WalletID: receiver.ID, Type: EntryCredit, Amount: 100, TransactionID: txID},
	})
	if err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds got %v", err)
	}

	got, _ := store.Get(ctx, receiver.ID)
	if got.Balance != 0 {
		t.Fatalf("receiver credited from a failed set: %d", got.Balance)
	}
	entries, _ := store.Entries(ctx, receiver.ID, 0)
	if len(entries) != 0 {
		t.Fatalf("journal rows written for a failed set: %d", len(entries))
	}
}

func TestApplyEntriesAllowNegativeFlagsCollections(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	w := newTestWallet(t, store, "USD")
	SeedBalance(store, w.ID, 500)

	entries, err := store.ApplyEntries(ctx, []ApplyInput{{
		WalletID: w.ID, Type: EntryDebit, Amount: 800,
		TransactionID: uuid.NewString(), AllowNegative: true,
	}})
	if err != nil {
		t.Fatalf("apply forced debit: %v", err)
	}
	if entries[0].BalanceAfter != -300 {
		t.Fatalf("expected balance -300 got %d", entries[0].BalanceAfter)
	}

	got, _ := store.Get(ctx, w.ID)
	if !got.Collections {
		t.Fatal("expected wallet flagged for collections")
	}
}

func TestHoldAndRelease(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	w := newTestWallet(t, store, "USD")
	SeedBalance(store, w.ID, 1_000)

	if err := store.Hold(ctx, w.ID, 600); err != nil {
		t.Fatalf("hold: %v", err)
	}
	got, _ := store.Get(ctx, w.ID)
	if got.Balance != 1_000 || got.AvailableBalance != 400 || got.ReservedBalance != 600 {
		t.Fatalf("unexpected split after hold: balance %d available %d reserved %d",
			got.Balance, got.AvailableBalance, got.ReservedBalance)
	}

	// Held funds cannot be spent.
	_, err := store.ApplyEntries(ctx, []ApplyInput{{
		WalletID: w.ID, Type: EntryDebit, Amount: 500, TransactionID: uuid.NewString(),
	}})
	if err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds on held funds got %v", err)
	}

	if err := store.ReleaseHold(ctx, w.ID, 600); err != nil {
		t.Fatalf("release: %v", err)
	}
	got, _ = store.Get(ctx, w.ID)
	if got.AvailableBalance != 1_000 || got.ReservedBalance != 0 {
		t.Fatalf("unexpected split after release: available %d reserved %d",
			got.AvailableBalance, got.ReservedBalance)
	}

	if err := store.ReleaseHold(ctx, w.ID, 1); err != ErrHoldExceeded {
		t.Fatalf("expected ErrHoldExceeded got %v", err)
	}
}

func TestShiftPendingTracksInFlightFunds(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	w := newTestWallet(t, store, "USD")

	if err := store.ShiftPending(ctx, w.ID, 700); err != nil {
		t.Fatalf("shift up: %v", err)
	}
	got, _ := store.Get(ctx, w.ID)
	if got.PendingBalance != 700 {
		t.Fatalf("pending = %d want 700", got.PendingBalance)
	}

	if err := store.ShiftPending(ctx, w.ID, -700); err != nil {
		t.Fatalf("shift down: %v", err)
	}
	got, _ = store.Get(ctx, w.ID)
	if got.PendingBalance != 0 {
		t.Fatalf("pending = %d want 0", got.PendingBalance)
	}

	if err := store.ShiftPending(ctx, w.ID, -1); err != ErrPendingExceeded {
		t.Fatalf("expected ErrPendingExceeded got %v", err)
	}
	if err := store.ShiftPending(ctx, uuid.NewString(), 10); err != ErrWalletNotFound {
		t.Fatalf("expected ErrWalletNotFound got %v", err)
	}
}

func TestReconcileZeroDrift(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()
	w := newTestWallet(t, store, "USD")
	SeedBalance(store, w.ID, 10_000)

	for i := 0; i < 5; i++ {
		if _, err := svc.ApplyEntry(ctx, ApplyInput{
			WalletID: w.ID, Type: EntryDebit, Amount: 1_000, TransactionID: uuid.NewString(),
		}); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}

	report, err := svc.Reconcile(ctx, w.ID)
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if report.Drift != 0 {
		t.Fatalf("expected zero drift got %d", report.Drift)
	}
	if report.Recorded != 5_000 || report.EntryCount != 6 {
		t.Fatalf("unexpected report: recorded %d entries %d", report.Recorded, report.EntryCount)
	}
}

func TestConcurrentTransfersConserveTotal(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	a := newTestWallet(t, store, "USD")
	b := newTestWallet(t, store, "USD")
	SeedBalance(store, a.ID, 100_000)
	SeedBalance(store, b.ID, 100_000)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = store.ApplyEntries(ctx, []ApplyInput{
				{WalletID: a.ID, Type: EntryDebit, Amount: 10, TransactionID: uuid.NewString()},
				{WalletID: b.ID, Type: EntryCredit, Amount: 10, TransactionID: uuid.NewString()},
			})
		}()
		go func() {
			defer wg.Done()
			_, _ = store.ApplyEntries(ctx, []ApplyInput{
				{WalletID: b.ID, Type: EntryDebit, Amount: 10, TransactionID: uuid.NewString()},
				{WalletID: a.ID, Type: EntryCredit, Amount: 10, TransactionID: uuid.NewString()},
			})
		}()
	}
	wg.Wait()

	wa, _ := store.Get(ctx, a.ID)
	wb, _ := store.Get(ctx, b.ID)
	if wa.Balance+wb.Balance != 200_000 {
		t.Fatalf("total not conserved: %d", wa.Balance+wb.Balance)
	}
}

func TestGetOrCreateFirstWalletIsDefault(t *testing.T) {
	store := NewMemoryStore()
	svc := NewService(store)
	ctx := context.Background()
	owner := uuid.NewString()

	usd, err := svc.GetOrCreate(ctx, owner, "USD")
	if err != nil {
		t.Fatalf("create usd wallet: %v", err)
	}
	if !usd.IsDefault || !usd.IsActive {
		t.Fatalf("first wallet should be default and active: %+v", usd)
	}

	eur, err := svc.GetOrCreate(ctx, owner, "EUR")
	if err != nil {
		t.Fatalf("create eur wallet: %v", err)
	}
	if eur.IsDefault {
		t.Fatal("second wallet should not be default")
	}

	again, err := svc.GetOrCreate(ctx, owner, "USD")
	if err != nil {
		t.Fatalf("fetch usd wallet: %v", err)
	}
	if again.ID != usd.ID {
		t.Fatalf("expected same wallet, got %s and %s", usd.ID, again.ID)
	}
}
