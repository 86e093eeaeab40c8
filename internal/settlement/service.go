package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/meridian/internal/notification"
	"github.com/meridianpay/meridian/internal/transaction"
)

// Service nets completed transactions into batches against company accounts.
type Service struct {
	repo     Repository
	txs      transaction.Repository
	notifier notification.Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewService builds the settlement batcher.
func NewService(repo Repository, txs transaction.Repository, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{repo: repo, txs: txs, notifier: notifier, logger: logger, now: time.Now}
}

// CreateBatch selects unsettled externally-facing transactions completed
// before the cutoff and persists the batch with all its items atomically.
// The unique item link is the backstop against concurrent runs settling the
// same transaction twice.
func (s *Service) CreateBatch(ctx context.Context, companyAccountID string, cutoff time.Time, currency string) (Batch, error) {
	account, err := s.repo.GetAccount(ctx, companyAccountID)
	if err != nil {
		return Batch{}, err
	}
	if account.Currency != currency {
		return Batch{}, ErrCurrencyMismatch
	}

	candidates, err := s.txs.CompletedBefore(ctx, currency, cutoff)
	if err != nil {
		return Batch{}, err
	}

	settleable := make(map[string]transaction.Transaction, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, tx := range candidates {
		if _, ok := Classify(tx.Type); !ok {
			continue
		}
		settleable[tx.ID] = tx
		ids = append(ids, tx.ID)
	}

	unsettled, err := s.repo.Unsettled(ctx, ids)
	if err != nil {
		return Batch{}, err
	}
	if len(unsettled) == 0 {
		return Batch{}, ErrNothingToSettle
	}

	now := s.now().UTC()
	batch := Batch{
		ID:               uuid.NewString(),
		Reference:        newBatchReference(),
		CompanyAccountID: companyAccountID,
		Currency:         currency,
		CutoffAt:         cutoff.UTC(),
		Status:           BatchPending,
		CreatedAt:        now,
	}

	items := make([]Item, 0, len(unsettled))
	for _, txID := range unsettled {
		tx := settleable[txID]
		direction, _ := Classify(tx.Type)
		amount := tx.Amount
		if direction == DirectionDebit {
			// Money leaving the company account is the net paid out.
			amount = tx.NetAmount
		}
		items = append(items, Item{
			ID:            uuid.NewString(),
			BatchID:       batch.ID,
			TransactionID: txID,
			Amount:        amount,
			Direction:     direction,
		})
		if direction == DirectionCredit {
			batch.TotalCredits += amount
		} else {
			batch.TotalDebits += amount
		}
	}
	batch.NetAmount = batch.TotalCredits - batch.TotalDebits
	batch.ItemCount = len(items)

	if err := s.repo.CreateBatch(ctx, batch, items); err != nil {
		return Batch{}, err
	}

	if s.logger != nil {
		s.logger.Info("settlement batch created",
			"batch_id", batch.ID,
			"currency", currency,
			"items", batch.ItemCount,
			"net_amount", batch.NetAmount,
		)
	}
	return batch, nil
}

// ProcessBatch runs one batch to completion. On any mid-processing error the
// batch is failed with a reason and its items released; the company account
// is only ever mutated by the single atomic completion step.
func (s *Service) ProcessBatch(ctx context.Context, batchID string) (Batch, error) {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return Batch{}, err
	}
	if batch.Status != BatchPending {
		return Batch{}, ErrInvalidBatchState
	}
	if err := s.repo.MarkProcessing(ctx, batchID); err != nil {
		return Batch{}, err
	}

	account, err := s.repo.GetAccount(ctx, batch.CompanyAccountID)
	if err != nil {
		return s.fail(ctx, batchID, fmt.Sprintf("load account: %v", err))
	}

	processedAt := s.now().UTC()
	entry := CompanyLedgerEntry{
		ID:               uuid.NewString(),
		CompanyAccountID: account.ID,
		BatchID:          batch.ID,
		Amount:           batch.NetAmount,
		BalanceBefore:    account.Balance,
		BalanceAfter:     account.Balance + batch.NetAmount,
		Description:      "settlement " + batch.Reference,
		CreatedAt:        processedAt,
	}
	if err := s.repo.CompleteBatch(ctx, batchID, processedAt, entry); err != nil {
		return s.fail(ctx, batchID, fmt.Sprintf("complete batch: %v", err))
	}

	batch.Status = BatchCompleted
	batch.ProcessedAt = &processedAt

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:      notification.KindSettlementCompleted,
			Reference: batch.Reference,
			Body:      fmt.Sprintf("settled %d transactions, net %d %s", batch.ItemCount, batch.NetAmount, batch.Currency),
		})
	}
	return batch, nil
}

// GetBatch fetches one batch.
func (s *Service) GetBatch(ctx context.Context, id string) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

func (s *Service) fail(ctx context.Context, batchID, reason string) (Batch, error) {
	if err := s.repo.FailBatch(ctx, batchID, reason); err != nil {
		return Batch{}, err
	}
	if s.logger != nil {
		s.logger.Error("settlement batch failed", "batch_id", batchID, "reason", reason)
	}
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return Batch{}, err
	}
	return batch, fmt.Errorf("settlement batch failed: %s", reason)
}

func newBatchReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "STL-" + raw[:10]
}
