package dispute

import (
	"errors"
	"time"
)

// Status tracks a dispute from filing to resolution.
type Status string

const (
	StatusOpen     Status = "OPEN"
	StatusResolved Status = "RESOLVED"
)

// Outcome is the decision applied when a dispute resolves.
type Outcome string

const (
	// OutcomeUpheld means the dispute stands against the receiver: the
	// original transaction is reversed and the chargeback fee assessed.
	OutcomeUpheld Outcome = "UPHELD"
	// OutcomeRejected means the original transaction stands.
	OutcomeRejected Outcome = "REJECTED"
)

var (
	// ErrNotFound indicates no dispute exists for the identifier.
	ErrNotFound = errors.New("dispute not found")
	// ErrNotDisputable indicates the transaction is not in a disputable state.
	ErrNotDisputable = errors.New("transaction not disputable")
	// ErrAlreadyResolved indicates the dispute already has an outcome.
	ErrAlreadyResolved = errors.New("dispute already resolved")
	// ErrInvalidOutcome indicates an unknown outcome value.
	ErrInvalidOutcome = errors.New("invalid dispute outcome")
)

// Dispute challenges one completed transaction. Resolution never rewrites
// history: an upheld dispute creates new compensating records.
type Dispute struct {
	ID            string
	TransactionID string
	Reason        string
	Status        Status
	Outcome       Outcome
	ChargebackFee int64
	CreatedAt     time.Time
	ResolvedAt    *time.Time
}
