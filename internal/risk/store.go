package risk

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// AssessmentStore persists every evaluation for audit, whatever the decision.
type AssessmentStore interface {
	Save(ctx context.Context, a Assessment) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Assessment, error)
}

type memoryAssessmentStore struct {
	mu     sync.RWMutex
	byUser map[string][]Assessment
}

// NewMemoryAssessmentStore constructs an in-memory audit store for tests.
func NewMemoryAssessmentStore() AssessmentStore {
	return &memoryAssessmentStore{byUser: make(map[string][]Assessment)}
}

func (s *memoryAssessmentStore) Save(_ context.Context, a Assessment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[a.UserID] = append(s.byUser[a.UserID], a)
	return nil
}

func (s *memoryAssessmentStore) ListByUser(_ context.Context, userID string, limit int) ([]Assessment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.byUser[userID]
	if limit > 0 && limit < len(all) {
		all = all[len(all)-limit:]
	}
	out := make([]Assessment, len(all))
	copy(out, all)
	return out, nil
}

// PostgresAssessmentStore writes assessments to PostgreSQL with the signal
// list serialized as JSON.
type PostgresAssessmentStore struct {
	db *pgxpool.Pool
}

// NewPostgresAssessmentStore builds an audit store backed by PostgreSQL.
func NewPostgresAssessmentStore(db *pgxpool.Pool) *PostgresAssessmentStore {
	return &PostgresAssessmentStore{db: db}
}

// Save inserts one assessment row.
func (s *PostgresAssessmentStore) Save(ctx context.Context, a Assessment) error {
	signals, err := json.Marshal(a.Signals)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO risk_assessments
        (id, transaction_id, user_id, score, level, action, signals, created_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		uuid.MustParse(a.ID), a.TransactionID, a.UserID, a.Score,
		string(a.Level), string(a.Action), signals, a.CreatedAt.UTC())
	return err
}

// ListByUser returns the most recent assessments for a user.
func (s *PostgresAssessmentStore) ListByUser(ctx context.Context, userID string, limit int) ([]Assessment, error) {
	query := `SELECT id, transaction_id, user_id, score, level, action, signals, created_at
        FROM risk_assessments WHERE user_id = $1 ORDER BY created_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Assessment
	for rows.Next() {
		var a Assessment
		var id uuid.UUID
		var level, action string
		var signals []byte
		if err := rows.Scan(&id, &a.TransactionID, &a.UserID, &a.Score, &level, &action, &signals, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.ID = id.String()
		a.Level = Level(level)
		a.Action = Action(action)
		if err := json.Unmarshal(signals, &a.Signals); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
