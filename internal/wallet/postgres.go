package wallet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists wallets and ledger entries in PostgreSQL. Every
// multi-entry apply runs in one database transaction with the affected wallet
// rows locked in deterministic order.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore builds a store backed by PostgreSQL.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

const walletColumns = `id, owner_id, currency, balance, available_balance, pending_balance,
        reserved_balance, is_default, is_active, collections, created_at, updated_at`

func scanWallet(row pgx.Row) (Wallet, error) {
	var w Wallet
	var id, ownerID uuid.UUID
	err := row.Scan(&id, &ownerID, &w.Currency, &w.Balance, &w.AvailableBalance,
		&w.PendingBalance, &w.ReservedBalance, &w.IsDefault, &w.IsActive,
		&w.Collections, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Wallet{}, ErrWalletNotFound
		}
		return Wallet{}, err
	}
	w.ID = id.String()
	w.OwnerID = ownerID.String()
	return w, nil
}

// Create inserts a wallet record.
func (s *PostgresStore) Create(ctx context.Context, w Wallet) error {
	walletID, err := uuid.Parse(w.ID)
	if err != nil {
		return err
	}
	ownerID, err := uuid.Parse(w.OwnerID)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO wallets (`+walletColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		walletID, ownerID, w.Currency, w.Balance, w.AvailableBalance, w.PendingBalance,
		w.ReservedBalance, w.IsDefault, w.IsActive, w.Collections,
		w.CreatedAt.UTC(), w.UpdatedAt.UTC())
	return err
}

// Get fetches a wallet by identifier.
func (s *PostgresStore) Get(ctx context.Context, id string) (Wallet, error) {
	walletID, err := uuid.Parse(id)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, walletID)
	return scanWallet(row)
}

// FindByOwner fetches the wallet for one (owner, currency) pair.
func (s *PostgresStore) FindByOwner(ctx context.Context, ownerID, currency string) (Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return Wallet{}, ErrWalletNotFound
	}
	row := s.db.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE owner_id = $1 AND currency = $2`, owner, currency)
	return scanWallet(row)
}

// ListByOwner returns every wallet belonging to an owner.
func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID string) ([]Wallet, error) {
	owner, err := uuid.Parse(ownerID)
	if err != nil {
		return nil, ErrWalletNotFound
	}
	rows, err := s.db.Query(ctx, `SELECT `+walletColumns+` FROM wallets
        WHERE owner_id = $1 ORDER BY created_at`, owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

// ApplyEntries appends every entry and updates the wallet balances in one
// database transaction. Wallet rows are locked in sorted id order so two
// concurrent transfers touching the same pair cannot deadlock.
func (s *PostgresStore) ApplyEntries(ctx context.Context, inputs []ApplyInput) ([]LedgerEntry, error) {
	if len(inputs) == 0 {
		return nil, nil
	}
	for _, in := range inputs {
		if in.Amount <= 0 {
			return nil, ErrInvalidAmount
		}
	}

	lockOrder := make([]string, 0, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if !seen[in.WalletID] {
			seen[in.WalletID] = true
			lockOrder = append(lockOrder, in.WalletID)
		}
	}
	sort.Strings(lockOrder)

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	staged := make(map[string]Wallet, len(lockOrder))
	for _, id := range lockOrder {
		walletID, err := uuid.Parse(id)
		if err != nil {
			return nil, ErrWalletNotFound
		}
		row := tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets
            WHERE id = $1 FOR UPDATE`, walletID)
		w, err := scanWallet(row)
		if err != nil {
			return nil, err
		}
		staged[id] = w
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

	for _, entry := range out {
		if _, err := tx.Exec(ctx, `INSERT INTO ledger_entries
            (id, wallet_id, transaction_id, entry_type, amount, balance_before, balance_after, description, created_at)
            VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			uuid.MustParse(entry.ID), uuid.MustParse(entry.WalletID), entry.TransactionID,
			string(entry.Type), entry.Amount, entry.BalanceBefore, entry.BalanceAfter,
			entry.Description, entry.CreatedAt); err != nil {
			return nil, err
		}
	}
	for id, w := range staged {
		if _, err := tx.Exec(ctx, `UPDATE wallets SET balance = $2, available_balance = $3,
            collections = $4, updated_at = $5 WHERE id = $1`,
			uuid.MustParse(id), w.Balance, w.AvailableBalance, w.Collections, w.UpdatedAt); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

// Hold moves value from the available view into the reserved view.
func (s *PostgresStore) Hold(ctx context.Context, walletID string, amount int64) error {
	return s.shiftHold(ctx, walletID, amount, true)
}

// ReleaseHold returns reserved value to the available view.
func (s *PostgresStore) ReleaseHold(ctx context.Context, walletID string, amount int64) error {
	return s.shiftHold(ctx, walletID, amount, false)
}

func (s *PostgresStore) shiftHold(ctx context.Context, walletID string, amount int64, reserve bool) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	id, err := uuid.Parse(walletID)
	if err != nil {
		return ErrWalletNotFound
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	row := tx.QueryRow(ctx, `SELECT `+walletColumns+` FROM wallets WHERE id = $1 FOR UPDATE`, id)
	w, err := scanWallet(row)
	if err != nil {
		return err
	}

	if reserve {
		if w.AvailableBalance < amount {
			return ErrInsufficientFunds
		}
		w.AvailableBalance -= amount
		w.ReservedBalance += amount
	} else {
		if w.ReservedBalance < amount {
			return ErrHoldExceeded
		}
		w.ReservedBalance -= amount
		w.AvailableBalance += amount
	}

	if _, err := tx.Exec(ctx, `UPDATE wallets SET available_balance = $2, reserved_balance = $3,
        updated_at = $4 WHERE id = $1`, id, w.AvailableBalance, w.ReservedBalance, time.Now().UTC()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// ShiftPending adjusts the in-flight funds-out tracker by delta.
func (s *PostgresStore) ShiftPending(ctx context.Context, walletID string, delta int64) error {
	if delta == 0 {
		return nil
	}
	id, err := uuid.Parse(walletID)
	if err != nil {
		return ErrWalletNotFound
	}
	tag, err := s.db.Exec(ctx, `UPDATE wallets SET pending_balance = pending_balance + $2,
        updated_at = $3 WHERE id = $1 AND pending_balance + $2 >= 0`,
		id, delta, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		if _, gerr := s.Get(ctx, walletID); gerr != nil {
			return gerr
		}
		return ErrPendingExceeded
	}
	return nil
}

// Entries returns the most recent journal rows for a wallet, oldest first.
func (s *PostgresStore) Entries(ctx context.Context, walletID string, limit int) ([]LedgerEntry, error) {
	id, err := uuid.Parse(walletID)
	if err != nil {
		return nil, ErrWalletNotFound
	}
	query := `SELECT id, wallet_id, transaction_id, entry_type, amount, balance_before,
        balance_after, description, created_at FROM ledger_entries
        WHERE wallet_id = $1 ORDER BY created_at`
	args := []any{id}
	if limit > 0 {
		// Take the newest rows, then flip back to the journal's natural order.
		query = `SELECT id, wallet_id, transaction_id, entry_type, amount, balance_before,
        balance_after, description, created_at FROM ledger_entries
        WHERE wallet_id = $1 ORDER BY created_at DESC LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		var entryID, wID uuid.UUID
		var entryType string
		if err := rows.Scan(&entryID, &wID, &e.TransactionID, &entryType, &e.Amount,
			&e.BalanceBefore, &e.BalanceAfter, &e.Description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.ID = entryID.String()
		e.WalletID = wID.String()
		e.Type = EntryType(entryType)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read ledger entries: %w", err)
	}
	if limit > 0 {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out, nil
}
