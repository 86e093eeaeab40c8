package wallet

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memoryStore struct {
	mu      sync.Mutex
	wallets map[string]Wallet
	byOwner map[string][]string
	entries map[string][]LedgerEntry
}

// NewMemoryStore constructs a concurrency-safe in-memory store for tests and
// local development. A single mutex totally orders all mutations, which is the
// same guarantee the Postgres backend gets from row locks.
func NewMemoryStore() Store {
	return &memoryStore{
		wallets: make(map[string]Wallet),
		byOwner: make(map[string][]string),
		entries: make(map[string][]LedgerEntry),
	}
}

func (s *memoryStore) Create(_ context.Context, w Wallet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.wallets[w.ID] = w
	s.byOwner[w.OwnerID] = append(s.byOwner[w.OwnerID], w.ID)
	return nil
}

func (s *memoryStore) Get(_ context.Context, id string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[id]
	if !ok {
		return Wallet{}, ErrWalletNotFound
	}
	return w, nil
}

func (s *memoryStore) FindByOwner(_ context.Context, ownerID, currency string) (Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range s.byOwner[ownerID] {
		if w := s.wallets[id]; w.Currency == currency {
			return w, nil
		}
	}
	return Wallet{}, ErrWalletNotFound
}

func (s *memoryStore) ListByOwner(_ context.Context, ownerID string) ([]Wallet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Wallet, 0, len(s.byOwner[ownerID]))
	for _, id := range s.byOwner[ownerID] {
		out = append(out, s.wallets[id])
	}
	return out, nil
}

// ApplyEntries stages every input against a scratch copy of the affected
// wallets, rejecting the whole set on the first violation, then commits the
// staged balances and journal rows together.
func (s *memoryStore) ApplyEntries(_ context.Context, inputs []ApplyInput) ([]LedgerEntry, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	staged := make(map[string]Wallet, len(inputs))
	for _, in := range inputs {
		if in.Amount <= 0 {
			return nil, ErrInvalidAmount
		}
		if _, ok := staged[in.WalletID]; ok {
			continue
		}
		w, ok := s.wallets[in.WalletID]
		if !ok {
			return nil, ErrWalletNotFound
		}
		staged[in.WalletID] = w
	}

	now := time.Now().UTC()
	out := make([]LedgerEntry, 0, len(inputs))
	for _, in := range inputs {
		w := staged[in.WalletID]
		entry := LedgerEntry{
			ID:            uuid.NewString(),
			WalletID:      in.WalletID,
			TransactionID: in.TransactionID,
			Type:          in.Type,
			Amount:        in.Amount,
			BalanceBefore: w.Balance,
			Description:   in.Description,
			CreatedAt:     now,
		}
		switch in.Type {
		case EntryDebit:
			if !in.AllowNegative && w.AvailableBalance < in.Amount {
				return nil, ErrInsufficientFunds
			}
			w.Balance -= in.Amount
			w.AvailableBalance -= in.Amount
			if w.Balance < 0 {
				w.Collections = true
			}
		case EntryCredit:
			w.Balance += in.Amount
			w.AvailableBalance += in.Amount
		default:
			return nil, ErrInvalidAmount
		}
		entry.BalanceAfter = w.Balance
		w.UpdatedAt = now
		staged[in.WalletID] = w
		out = append(out, entry)
	}

	for id, w := range staged {
		s.wallets[id] = w
	}
	for _, entry := range out {
		s.entries[entry.WalletID] = append(s.entries[entry.WalletID], entry)
	}
	return out, nil
}

func (s *memoryStore) Hold(_ context.Context, walletID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	if w.AvailableBalance < amount {
		return ErrInsufficientFunds
	}
	w.AvailableBalance -= amount
	w.ReservedBalance += amount
	w.UpdatedAt = time.Now().UTC()
	s.wallets[walletID] = w
	return nil
}

func (s *memoryStore) ReleaseHold(_ context.Context, walletID string, amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	if w.ReservedBalance < amount {
		return ErrHoldExceeded
	}
	w.ReservedBalance -= amount
	w.AvailableBalance += amount
	w.UpdatedAt = time.Now().UTC()
	s.wallets[walletID] = w
	return nil
}

func (s *memoryStore) ShiftPending(_ context.Context, walletID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.wallets[walletID]
	if !ok {
		return ErrWalletNotFound
	}
	if w.PendingBalance+delta < 0 {
		return ErrPendingExceeded
	}
	w.PendingBalance += delta
	w.UpdatedAt = time.Now().UTC()
	s.wallets[walletID] = w
	return nil
}

func (s *memoryStore) Entries(_ context.Context, walletID string, limit int) ([]LedgerEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.wallets[walletID]; !ok {
		return nil, ErrWalletNotFound
	}
	entries := s.entries[walletID]
	if limit > 0 && limit < len(entries) {
		entries = entries[len(entries)-limit:]
	}
	out := make([]LedgerEntry, len(entries))
	copy(out, entries)
	return out, nil
}
