package transaction

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepository stores transactions in PostgreSQL. Unique indexes on
// reference_id and idempotency_key back the duplicate checks.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const txColumns = `id, reference_id, idempotency_key, tx_type, status, sender_id, receiver_id,
        wallet_id, amount, currency, fee, net_amount, failure_reason, created_at, processed_at`

func scanTransaction(row pgx.Row) (Transaction, error) {
	var tx Transaction
	var id uuid.UUID
	var idemKey, failureReason *string
	var txType, status string
	err := row.Scan(&id, &tx.ReferenceID, &idemKey, &txType, &status, &tx.SenderID,
		&tx.ReceiverID, &tx.WalletID, &tx.Amount, &tx.Currency, &tx.Fee, &tx.NetAmount,
		&failureReason, &tx.CreatedAt, &tx.ProcessedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transaction{}, ErrNotFound
		}
		return Transaction{}, err
	}
	tx.ID = id.String()
	tx.Type = Type(txType)
	tx.Status = Status(status)
	if idemKey != nil {
		tx.IdempotencyKey = *idemKey
	}
	if failureReason != nil {
		tx.FailureReason = *failureReason
	}
	return tx, nil
}

// Create inserts a transaction record.
func (r *PostgresRepository) Create(ctx context.Context, tx Transaction) error {
	id, err := uuid.Parse(tx.ID)
	if err != nil {
		return err
	}
	var idemKey *string
	if tx.IdempotencyKey != "" {
		idemKey = &tx.IdempotencyKey
	}
	_, err = r.db.Exec(ctx, `INSERT INTO transactions (`+txColumns+`)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		id, tx.ReferenceID, idemKey, string(tx.Type), string(tx.Status), tx.SenderID,
		tx.ReceiverID, tx.WalletID, tx.Amount, tx.Currency, tx.Fee, tx.NetAmount,
		nullable(tx.FailureReason), tx.CreatedAt.UTC(), tx.ProcessedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			if pgErr.ConstraintName == "transactions_idempotency_key_key" {
				return ErrDuplicateIdempotencyKey
			}
			return ErrDuplicateReference
		}
		return err
	}
	return nil
}

// Get fetches a transaction by identifier.
func (r *PostgresRepository) Get(ctx context.Context, id string) (Transaction, error) {
	txID, err := uuid.Parse(id)
	if err != nil {
		return Transaction{}, ErrNotFound
	}
	row := r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE id = $1`, txID)
	return scanTransaction(row)
}

// FindByIdempotencyKey returns the transaction previously stored under the key.
func (r *PostgresRepository) FindByIdempotencyKey(ctx context.Context, key string) (Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT `+txColumns+` FROM transactions WHERE idempotency_key = $1`, key)
	return scanTransaction(row)
}

// UpdateStatus moves a transaction through the state machine. The WHERE clause
// re-checks the current status so a concurrent transition loses cleanly.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, next Status, failureReason string, processedAt *time.Time) error {
	txID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}

	current, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !current.Status.CanTransitionTo(next) {
		return ErrInvalidTransition
	}

	tag, err := r.db.Exec(ctx, `UPDATE transactions
        SET status = $2, failure_reason = $3, processed_at = COALESCE($4, processed_at)
        WHERE id = $1 AND status = $5`,
		txID, string(next), nullable(failureReason), processedAt, string(current.Status))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// List returns transactions where the owner is sender or receiver, newest first.
func (r *PostgresRepository) List(ctx context.Context, ownerID string, f Filter) ([]Transaction, error) {
	query := `SELECT ` + txColumns + ` FROM transactions
        WHERE (sender_id = $1 OR receiver_id = $1)`
	args := []any{ownerID}
	n := 1
	add := func(clause string, value any) {
		n++
		query += ` AND ` + clause + `$` + strconv.Itoa(n)
		args = append(args, value)
	}
	if f.Status != "" {
		add("status = ", string(f.Status))
	}
	if f.Type != "" {
		add("tx_type = ", string(f.Type))
	}
	if !f.From.IsZero() {
		add("created_at >= ", f.From.UTC())
	}
	if !f.To.IsZero() {
		add("created_at <= ", f.To.UTC())
	}
	query += ` ORDER BY created_at DESC`
	if f.Limit > 0 {
		n++
		query += ` LIMIT $` + strconv.Itoa(n)
		args = append(args, f.Limit)
	}
	if f.Offset > 0 {
		n++
		query += ` OFFSET $` + strconv.Itoa(n)
		args = append(args, f.Offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// CompletedBefore returns settled-candidate transactions for the batcher.
func (r *PostgresRepository) CompletedBefore(ctx context.Context, currency string, cutoff time.Time) ([]Transaction, error) {
	rows, err := r.db.Query(ctx, `SELECT `+txColumns+` FROM transactions
        WHERE status = $1 AND currency = $2 AND processed_at < $3
        ORDER BY processed_at`, string(StatusCompleted), currency, cutoff.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collect(rows)
}

// HasPair reports whether the sender has a completed movement to the receiver.
func (r *PostgresRepository) HasPair(ctx context.Context, senderID, receiverID string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM transactions
        WHERE sender_id = $1 AND receiver_id = $2 AND status = $3)`,
		senderID, receiverID, string(StatusCompleted)).Scan(&exists)
	return exists, err
}

func collect(rows pgx.Rows) ([]Transaction, error) {
	var out []Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, tx)
	}
	return out, rows.Err()
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
