package settlement

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores settlement state in PostgreSQL. A unique index on
// settlement_items.transaction_id backs the at-most-once settlement guarantee.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// CreateAccount inserts a company account.
func (r *PostgresRepository) CreateAccount(ctx context.Context, a CompanyAccount) error {
	_, err := r.db.Exec(ctx, `INSERT INTO company_accounts (id, name, currency, balance)
        VALUES ($1, $2, $3, $4) ON CONFLICT (id) DO NOTHING`,
		uuid.MustParse(a.ID), a.Name, a.Currency, a.Balance)
	return err
}

// GetAccount fetches a company account.
func (r *PostgresRepository) GetAccount(ctx context.Context, id string) (CompanyAccount, error) {
	accountID, err := uuid.Parse(id)
	if err != nil {
		return CompanyAccount{}, ErrAccountNotFound
	}
	var a CompanyAccount
	var aid uuid.UUID
	err = r.db.QueryRow(ctx, `SELECT id, name, currency, balance FROM company_accounts
        WHERE id = $1`, accountID).Scan(&aid, &a.Name, &a.Currency, &a.Balance)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return CompanyAccount{}, ErrAccountNotFound
		}
		return CompanyAccount{}, err
	}
	a.ID = aid.String()
	return a, nil
}

// Unsettled returns the subset of ids with no settlement item.
func (r *PostgresRepository) Unsettled(ctx context.Context, txIDs []string) ([]string, error) {
	if len(txIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.Query(ctx, `SELECT c.id FROM unnest($1::text[]) AS c(id)
        WHERE NOT EXISTS (SELECT 1 FROM settlement_items i WHERE i.transaction_id = c.id)`, txIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CreateBatch inserts the batch and every item in one transaction.
func (r *PostgresRepository) CreateBatch(ctx context.Context, b Batch, items []Item) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `INSERT INTO settlement_batches
        (id, reference, company_account_id, currency, cutoff_at, total_credits, total_debits,
         net_amount, status, item_count, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		uuid.MustParse(b.ID), b.Reference, uuid.MustParse(b.CompanyAccountID), b.Currency,
		b.CutoffAt.UTC(), b.TotalCredits, b.TotalDebits, b.NetAmount, string(b.Status),
		b.ItemCount, b.CreatedAt.UTC()); err != nil {
		return err
	}

	for _, item := range items {
		if _, err := tx.Exec(ctx, `INSERT INTO settlement_items
            (id, batch_id, transaction_id, amount, direction)
            VALUES ($1, $2, $3, $4, $5)`,
			uuid.MustParse(item.ID), uuid.MustParse(item.BatchID), item.TransactionID,
			item.Amount, string(item.Direction)); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				return ErrAlreadySettled
			}
			return err
		}
	}
	return tx.Commit(ctx)
}

// GetBatch fetches one batch.
func (r *PostgresRepository) GetBatch(ctx context.Context, id string) (Batch, error) {
	batchID, err := uuid.Parse(id)
	if err != nil {
		return Batch{}, ErrBatchNotFound
	}
	var b Batch
	var bid, accountID uuid.UUID
	var status string
	var failureReason *string
	err = r.db.QueryRow(ctx, `SELECT id, reference, company_account_id, currency, cutoff_at,
        total_credits, total_debits, net_amount, status, failure_reason, item_count,
        created_at, processed_at FROM settlement_batches WHERE id = $1`, batchID).
		Scan(&bid, &b.Reference, &accountID, &b.Currency, &b.CutoffAt, &b.TotalCredits,
			&b.TotalDebits, &b.NetAmount, &status, &failureReason, &b.ItemCount,
			&b.CreatedAt, &b.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, ErrBatchNotFound
		}
		return Batch{}, err
	}
	b.ID = bid.String()
	b.CompanyAccountID = accountID.String()
	b.Status = BatchStatus(status)
	if failureReason != nil {
		b.FailureReason = *failureReason
	}
	return b, nil
}

// Items returns the items linked to a batch.
func (r *PostgresRepository) Items(ctx context.Context, batchID string) ([]Item, error) {
	id, err := uuid.Parse(batchID)
	if err != nil {
		return nil, ErrBatchNotFound
	}
	rows, err := r.db.Query(ctx, `SELECT id, batch_id, transaction_id, amount, direction
        FROM settlement_items WHERE batch_id = $1`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Item
	for rows.Next() {
		var item Item
		var itemID, bID uuid.UUID
		var direction string
		if err := rows.Scan(&itemID, &bID, &item.TransactionID, &item.Amount, &direction); err != nil {
			return nil, err
		}
		item.ID = itemID.String()
		item.BatchID = bID.String()
		item.Direction = Direction(direction)
		out = append(out, item)
	}
	return out, rows.Err()
}

// MarkProcessing claims a PENDING batch for processing.
func (r *PostgresRepository) MarkProcessing(ctx context.Context, batchID string) error {
	id, err := uuid.Parse(batchID)
	if err != nil {
		return ErrBatchNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE settlement_batches SET status = $2
        WHERE id = $1 AND status = $3`, id, string(BatchProcessing), string(BatchPending))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidBatchState
	}
	return nil
}

// CompleteBatch finishes a PROCESSING batch: status, company account balance
// and the company-ledger entry land in one transaction or not at all.
func (r *PostgresRepository) CompleteBatch(ctx context.Context, batchID string, processedAt time.Time, entry CompanyLedgerEntry) error {
	id, err := uuid.Parse(batchID)
	if err != nil {
		return ErrBatchNotFound
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	tag, err := tx.Exec(ctx, `UPDATE settlement_batches SET status = $2, processed_at = $3
        WHERE id = $1 AND status = $4`, id, string(BatchCompleted), processedAt.UTC(), string(BatchProcessing))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidBatchState
	}

	tag, err = tx.Exec(ctx, `UPDATE company_accounts SET balance = $2
        WHERE id = $1 AND balance = $3`,
		uuid.MustParse(entry.CompanyAccountID), entry.BalanceAfter, entry.BalanceBefore)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidBatchState
	}

	if _, err := tx.Exec(ctx, `INSERT INTO company_ledger_entries
        (id, company_account_id, batch_id, amount, balance_before, balance_after, description, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.MustParse(entry.ID), uuid.MustParse(entry.CompanyAccountID), id, entry.Amount,
		entry.BalanceBefore, entry.BalanceAfter, entry.Description, entry.CreatedAt.UTC()); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// FailBatch marks the batch FAILED and releases its items in one transaction.
func (r *PostgresRepository) FailBatch(ctx context.Context, batchID, reason string) error {
	id, err := uuid.Parse(batchID)
	if err != nil {
		return ErrBatchNotFound
	}

	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE settlement_batches SET status = $2, failure_reason = $3
        WHERE id = $1`, id, string(BatchFailed), reason); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM settlement_items WHERE batch_id = $1`, id); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
