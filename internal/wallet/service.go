package wallet

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Service exposes wallet operations. It is the only component allowed to
// mutate balances, and it does so exclusively through ledger entries.
type Service struct {
	store Store
}

// NewService builds a wallet service over the given store.
func NewService(store Store) *Service {
	return &Service{store: store}
}

// GetOrCreate returns the wallet for (owner, currency), creating it lazily on
// first use. The owner's first wallet becomes the default.
func (s *Service) GetOrCreate(ctx context.Context, ownerID, currency string) (Wallet, error) {
	if _, err := uuid.Parse(ownerID); err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	w, err := s.store.FindByOwner(ctx, ownerID, currency)
	if err == nil {
		return w, nil
	}
	if err != ErrWalletNotFound {
		return Wallet{}, err
	}

	existing, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return Wallet{}, err
	}

	now := time.Now().UTC()
	w = Wallet{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		Currency:  currency,
		IsDefault: len(existing) == 0,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.store.Create(ctx, w); err != nil {
		return Wallet{}, err
	}
	return w, nil
}

// Get retrieves a wallet by identifier.
func (s *Service) Get(ctx context.Context, id string) (Wallet, error) {
	return s.store.Get(ctx, id)
}

// ApplyEntry appends one ledger entry and updates the wallet atomically.
func (s *Service) ApplyEntry(ctx context.Context, in ApplyInput) (LedgerEntry, error) {
	entries, err := s.store.ApplyEntries(ctx, []ApplyInput{in})
	if err != nil {
		return LedgerEntry{}, err
	}
	return entries[0], nil
}

// ApplyEntries appends a set of entries as one atomic unit. Used by the
// orchestrator for two-leg commits and by the reversal handler.
func (s *Service) ApplyEntries(ctx context.Context, inputs []ApplyInput) ([]LedgerEntry, error) {
	return s.store.ApplyEntries(ctx, inputs)
}

// Hold earmarks funds: available goes down, reserved goes up, balance is untouched.
func (s *Service) Hold(ctx context.Context, walletID string, amount int64) error {
	return s.store.Hold(ctx, walletID, amount)
}

// ReleaseHold returns earmarked funds to the available view.
func (s *Service) ReleaseHold(ctx context.Context, walletID string, amount int64) error {
	return s.store.ReleaseHold(ctx, walletID, amount)
}

// ShiftPending tracks debited amounts awaiting external confirmation. A
// positive delta marks funds in flight; a negative delta clears them once the
// funds-out boundary confirms or the movement is cancelled.
func (s *Service) ShiftPending(ctx context.Context, walletID string, delta int64) error {
	return s.store.ShiftPending(ctx, walletID, delta)
}

// Entries returns journal rows for a wallet, newest last.
func (s *Service) Entries(ctx context.Context, walletID string, limit int) ([]LedgerEntry, error) {
	return s.store.Entries(ctx, walletID, limit)
}

// Reconcile replays the full journal for a wallet and compares the result
// with the stored balance. Non-zero drift indicates a bug, not a valid state.
func (s *Service) Reconcile(ctx context.Context, walletID string) (ReconcileReport, error) {
	w, err := s.store.Get(ctx, walletID)
	if err != nil {
		return ReconcileReport{}, err
	}
	entries, err := s.store.Entries(ctx, walletID, 0)
	if err != nil {
		return ReconcileReport{}, err
	}
	var computed int64
	for _, e := range entries {
		computed += e.Signed()
	}
	return ReconcileReport{
		WalletID:   walletID,
		Recorded:   w.Balance,
		Computed:   computed,
		Drift:      w.Balance - computed,
		EntryCount: len(entries),
	}, nil
}

// SnapshotFor aggregates every wallet for an owner with per-currency totals.
func (s *Service) SnapshotFor(ctx context.Context, ownerID string) (Snapshot, error) {
	wallets, err := s.store.ListByOwner(ctx, ownerID)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{OwnerID: ownerID, Wallets: wallets, Totals: make(map[string]Totals)}
	for _, w := range wallets {
		t := snap.Totals[w.Currency]
		t.Balance += w.Balance
		t.Available += w.AvailableBalance
		snap.Totals[w.Currency] = t
	}
	return snap, nil
}
