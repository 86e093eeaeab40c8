package dispute

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists disputes.
type Repository interface {
	Create(ctx context.Context, d Dispute) error
	Get(ctx context.Context, id string) (Dispute, error)
	FindByTransaction(ctx context.Context, transactionID string) (Dispute, error)
	Resolve(ctx context.Context, id string, outcome Outcome, resolvedAt time.Time) error
}

type memoryRepository struct {
	mu   sync.RWMutex
	byID map[string]Dispute
	byTx map[string]string
}

// NewMemoryRepository constructs an in-memory repository for tests.
func NewMemoryRepository() Repository {
	return &memoryRepository{byID: make(map[string]Dispute), byTx: make(map[string]string)}
}

func (r *memoryRepository) Create(_ context.Context, d Dispute) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byTx[d.TransactionID]; exists {
		return ErrNotDisputable
	}
	r.byID[d.ID] = d
	r.byTx[d.TransactionID] = d.ID
	return nil
}

func (r *memoryRepository) Get(_ context.Context, id string) (Dispute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	if !ok {
		return Dispute{}, ErrNotFound
	}
	return d, nil
}

func (r *memoryRepository) FindByTransaction(_ context.Context, transactionID string) (Dispute, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byTx[transactionID]
	if !ok {
		return Dispute{}, ErrNotFound
	}
	return r.byID[id], nil
}

func (r *memoryRepository) Resolve(_ context.Context, id string, outcome Outcome, resolvedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return ErrNotFound
	}
	if d.Status == StatusResolved {
		return ErrAlreadyResolved
	}
	d.Status = StatusResolved
	d.Outcome = outcome
	t := resolvedAt.UTC()
	d.ResolvedAt = &t
	r.byID[id] = d
	return nil
}

// PostgresRepository stores disputes in PostgreSQL with a unique transaction
// link, so each transaction is disputable at most once.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a repository backed by PostgreSQL.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, d Dispute) error {
	_, err := r.db.Exec(ctx, `INSERT INTO disputes
        (id, transaction_id, reason, status, chargeback_fee, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.MustParse(d.ID), d.TransactionID, d.Reason, string(d.Status),
		d.ChargebackFee, d.CreatedAt.UTC())
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrNotDisputable
		}
		return err
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (Dispute, error) {
	disputeID, err := uuid.Parse(id)
	if err != nil {
		return Dispute{}, ErrNotFound
	}
	return r.scanOne(r.db.QueryRow(ctx, `SELECT id, transaction_id, reason, status, outcome,
        chargeback_fee, created_at, resolved_at FROM disputes WHERE id = $1`, disputeID))
}

func (r *PostgresRepository) FindByTransaction(ctx context.Context, transactionID string) (Dispute, error) {
	return r.scanOne(r.db.QueryRow(ctx, `SELECT id, transaction_id, reason, status, outcome,
        chargeback_fee, created_at, resolved_at FROM disputes WHERE transaction_id = $1`, transactionID))
}

func (r *PostgresRepository) Resolve(ctx context.Context, id string, outcome Outcome, resolvedAt time.Time) error {
	disputeID, err := uuid.Parse(id)
	if err != nil {
		return ErrNotFound
	}
	tag, err := r.db.Exec(ctx, `UPDATE disputes SET status = $2, outcome = $3, resolved_at = $4
        WHERE id = $1 AND status = $5`,
		disputeID, string(StatusResolved), string(outcome), resolvedAt.UTC(), string(StatusOpen))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyResolved
	}
	return nil
}

func (r *PostgresRepository) scanOne(row pgx.Row) (Dispute, error) {
	var d Dispute
	var id uuid.UUID
	var status string
	var outcome *string
	err := row.Scan(&id, &d.TransactionID, &d.Reason, &status, &outcome,
		&d.ChargebackFee, &d.CreatedAt, &d.ResolvedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Dispute{}, ErrNotFound
		}
		return Dispute{}, err
	}
	d.ID = id.String()
	d.Status = Status(status)
	if outcome != nil {
		d.Outcome = Outcome(*outcome)
	}
	return d, nil
}
