package risk

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/meridian/internal/identity"
)

// Action is the decision the gate hands back to the orchestrator.
type Action string

const (
	ActionAllow  Action = "ALLOW"
	ActionStepUp Action = "STEP_UP"
	ActionReview Action = "REVIEW"
	ActionBlock  Action = "BLOCK"
)

// Level buckets the score for reporting.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Input carries everything the gate may score. The gate never mutates wallet
// or ledger state; it only reads history and writes its own audit records.
type Input struct {
	TransactionID string
	UserID        string
	RecipientID   string
	Amount        int64
	Currency      string
	DeviceID      string
	IP            string
	Country       string
	EmailDomain   string
}

// Signal is one contributing factor with its weight, persisted for audit.
type Signal struct {
	Name   string
	Detail string
	Weight int
}

// Assessment is the gate's full output for one evaluation.
type Assessment struct {
	ID            string
	TransactionID string
	UserID        string
	Score         int
	Level         Level
	Action        Action
	Signals       []Signal
	CreatedAt     time.Time
}

// Gate is the pre-commit decision port consumed by the orchestrator.
type Gate interface {
	Evaluate(ctx context.Context, in Input) (Assessment, error)
}

// Thresholds maps score ranges to actions: score >= Block blocks,
// >= Review queues for manual review, >= StepUp demands secondary auth,
// anything below allows.
type Thresholds struct {
	Block  int
	Review int
	StepUp int
}

// DefaultThresholds is the authoritative threshold set.
func DefaultThresholds() Thresholds {
	return Thresholds{Block: 80, Review: 60, StepUp: 40}
}

// Limits configures the velocity trip points, minor units for volumes.
type Limits struct {
	HourCount  int64
	DayCount   int64
	HourVolume int64
	DayVolume  int64
}

// DefaultLimits returns the stock velocity limits.
func DefaultLimits() Limits {
	return Limits{HourCount: 10, DayCount: 50, HourVolume: 1_000_000, DayVolume: 5_000_000}
}

// RecipientHistory answers whether a sender has paid a recipient before.
type RecipientHistory interface {
	HasPaid(ctx context.Context, senderID, recipientID string) (bool, error)
}

// Engine is the weighted-sum scorer behind the Gate port.
type Engine struct {
	counters   Counters
	identities identity.Provider
	history    RecipientHistory
	store      AssessmentStore
	thresholds Thresholds
	limits     Limits

	flaggedDomains    map[string]bool
	highRiskCountries map[string]bool
	minAccountAge     time.Duration
	logger            *slog.Logger
}

// NewEngine wires a scoring engine. All lookups happen before the caller's
// commit section; the engine itself holds no locks and moves no money.
func NewEngine(counters Counters, identities identity.Provider, history RecipientHistory,
	store AssessmentStore, thresholds Thresholds, logger *slog.Logger) *Engine {
	return &Engine{
		counters:   counters,
		identities: identities,
		history:    history,
		store:      store,
		thresholds: thresholds,
		limits:     DefaultLimits(),
		flaggedDomains: map[string]bool{
			"tempmail.io":    true,
			"guerrilla.net":  true,
			"mailinator.com": true,
		},
		highRiskCountries: map[string]bool{
			"KP": true,
			"IR": true,
			"SY": true,
		},
		minAccountAge: 7 * 24 * time.Hour,
		logger:        logger,
	}
}

// Evaluate scores the attempt and persists the assessment for audit
// regardless of the decision. Identical inputs over an identical counter
// snapshot always produce the same result.
func (e *Engine) Evaluate(ctx context.Context, in Input) (Assessment, error) {
	profile, err := e.identities.Lookup(ctx, in.UserID)
	if err != nil {
		return Assessment{}, err
	}

	stats, err := e.counters.Observe(ctx, in.UserID, in.Amount)
	if err != nil {
		return Assessment{}, err
	}

	now := time.Now().UTC()
	var signals []Signal
	add := func(name, detail string, weight int) {
		signals = append(signals, Signal{Name: name, Detail: detail, Weight: weight})
	}

	if stats.HourCount > e.limits.HourCount {
		add("velocity_hour_count", "transaction count over trailing hour limit", 25)
	}
	if stats.DayCount > e.limits.DayCount {
		add("velocity_day_count", "transaction count over trailing day limit", 15)
	}
	if stats.HourVolume > e.limits.HourVolume {
		add("velocity_hour_volume", "volume over trailing hour limit", 20)
	}
	if stats.DayVolume > e.limits.DayVolume {
		add("velocity_day_volume", "volume over trailing day limit", 15)
	}

	if in.DeviceID != "" && profile.DeviceID != "" && in.DeviceID != profile.DeviceID {
		add("new_device", "device differs from enrolled device", 15)
	}
	if e.highRiskCountries[in.Country] {
		add("high_risk_country", in.Country, 30)
	} else if in.Country != "" && profile.Country != "" && in.Country != profile.Country {
		add("geo_mismatch", "request country differs from profile country", 15)
	}

	switch profile.KYCStatus {
	case identity.KYCUnverified:
		add("kyc_unverified", "sender has not completed verification", 25)
	case identity.KYCPending:
		add("kyc_pending", "sender verification in progress", 10)
	}
	if profile.AccountAge(now) < e.minAccountAge {
		add("new_account", "account younger than minimum age", 15)
	}

	if e.flaggedDomains[in.EmailDomain] {
		add("flagged_email_domain", in.EmailDomain, 40)
	}
	if in.RecipientID != "" && e.history != nil {
		paid, err := e.history.HasPaid(ctx, in.UserID, in.RecipientID)
		if err != nil {
			return Assessment{}, err
		}
		if !paid {
			add("first_time_recipient", "sender has never paid this recipient", 10)
		}
	}

	score := 0
	for _, s := range signals {
		score += s.Weight
	}
	if score > 100 {
		score = 100
	}

	assessment := Assessment{
		ID:            uuid.NewString(),
		TransactionID: in.TransactionID,
		UserID:        in.UserID,
		Score:         score,
		Level:         levelFor(score),
		Action:        e.actionFor(score),
		Signals:       signals,
		CreatedAt:     now,
	}

	if err := e.store.Save(ctx, assessment); err != nil {
		return Assessment{}, err
	}

	if e.logger != nil {
		e.logger.Info("risk assessment",
			"user_id", in.UserID,
			"transaction_id", in.TransactionID,
			"score", score,
			"action", string(assessment.Action),
			"signals", len(signals),
		)
	}
	return assessment, nil
}

func (e *Engine) actionFor(score int) Action {
	switch {
	case score >= e.thresholds.Block:
		return ActionBlock
	case score >= e.thresholds.Review:
		return ActionReview
	case score >= e.thresholds.StepUp:
		return ActionStepUp
	default:
		return ActionAllow
	}
}

func levelFor(score int) Level {
	switch {
	case score >= 80:
		return LevelCritical
	case score >= 60:
		return LevelHigh
	case score >= 40:
		return LevelMedium
	default:
		return LevelLow
	}
}
