package settlement

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Scheduler periodically creates and processes settlement batches, one
// company account per currency. It is an explicitly constructed object with
// injected dependencies so tests can drive it with fakes; it holds no wallet
// locks and performs no external I/O of its own.
type Scheduler struct {
	service  *Service
	accounts map[string]string // currency -> company account id
	interval time.Duration
	minAge   time.Duration
	logger   *slog.Logger
}

// NewScheduler builds a settlement scheduler. minAge is how long a completed
// transaction must rest before it is eligible, so in-flight disputes settle
// against a stable window.
func NewScheduler(service *Service, accounts map[string]string,
	interval, minAge time.Duration, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		service:  service,
		accounts: accounts,
		interval: interval,
		minAge:   minAge,
		logger:   logger,
	}
}

// Run ticks until the context is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-s.minAge)
	for currency, accountID := range s.accounts {
		batch, err := s.service.CreateBatch(ctx, accountID, cutoff, currency)
		if err != nil {
			if errors.Is(err, ErrNothingToSettle) {
				continue
			}
			if s.logger != nil {
				s.logger.Error("settlement run failed", "currency", currency, "error", err)
			}
			continue
		}
		if _, err := s.service.ProcessBatch(ctx, batch.ID); err != nil && s.logger != nil {
			s.logger.Error("settlement processing failed", "batch_id", batch.ID, "error", err)
		}
	}
}
