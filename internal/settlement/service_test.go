package settlement

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/meridian/internal/logging"
	"github.com/meridianpay/meridian/internal/transaction"
)

func seedCompleted(t *testing.T, repo transaction.Repository, txType transaction.Type, amount, net int64, processedAt time.Time) transaction.Transaction {
	t.Helper()
	p := processedAt.UTC()
	tx := transaction.Transaction{
		ID:          uuid.NewString(),
		ReferenceID: "TXN-" + uuid.NewString()[:12],
		Type:        txType,
		Status:      transaction.StatusCompleted,
		SenderID:    uuid.NewString(),
		ReceiverID:  uuid.NewString(),
		Amount:      amount,
		Currency:    "USD",
		Fee:         amount - net,
		NetAmount:   net,
		CreatedAt:   p,
		ProcessedAt: &p,
	}
	if err := repo.Create(context.Background(), tx); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}
	return tx
}

func newSettlementFixture(t *testing.T) (*Service, Repository, transaction.Repository, string) {
	t.Helper()
	repo := NewMemoryRepository()
	txs := transaction.NewMemoryRepository()
	svc := NewService(repo, txs, nil, logging.Discard())

	accountID := uuid.NewString()
	err := repo.CreateAccount(context.Background(), CompanyAccount{
		ID: accountID, Name: "settlement USD", Currency: "USD",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	return svc, repo, txs, accountID
}

func TestCreateAndProcessBatch(t *testing.T) {
	svc, _, txs, accountID := newSettlementFixture(t)
	ctx := context.Background()
	past := time.Now().Add(-2 * time.Hour)

	seedCompleted(t, txs, transaction.TypeDeposit, 10_000, 10_000, past)
	seedCompleted(t, txs, transaction.TypeWithdrawal, 5_000, 4_950, past)
	// Internal movement, must not settle.
	seedCompleted(t, txs, transaction.TypeTransferOut, 3_000, 2_970, past)

	batch, err := svc.CreateBatch(ctx, accountID, time.Now(), "USD")
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if batch.ItemCount != 2 {
		t.Fatalf("item count = %d want 2", batch.ItemCount)
	}
	if batch.TotalCredits != 10_000 || batch.TotalDebits != 4_950 {
		t.Fatalf("totals = %d/%d want 10000/4950", batch.TotalCredits, batch.TotalDebits)
	}
	if batch.NetAmount != 5_050 {
		t.Fatalf("net = %d want 5050", batch.NetAmount)
	}

	processed, err := svc.ProcessBatch(ctx, batch.ID)
	if err != nil {
		t.Fatalf("process batch: %v", err)
	}
	if processed.Status != BatchCompleted {
		t.Fatalf("expected COMPLETED got %s", processed.Status)
	}
}

func TestSecondRunHasNothingToSettle(t *testing.T) {
	svc, _, txs, accountID := newSettlementFixture(t)
	ctx := context.Background()
	seedCompleted(t, txs, transaction.TypeDeposit, 10_000, 10_000, time.Now().Add(-time.Hour))

	if _, err := svc.CreateBatch(ctx, accountID, time.Now(), "USD"); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := svc.CreateBatch(ctx, accountID, time.Now(), "USD"); !errors.Is(err, ErrNothingToSettle) {
		t.Fatalf("expected ErrNothingToSettle got %v", err)
	}
}

func TestCreateBatchSkipsFutureTransactions(t *testing.T) {
	svc, _, txs, accountID := newSettlementFixture(t)
	seedCompleted(t, txs, transaction.TypeDeposit, 10_000, 10_000, time.Now().Add(time.Hour))

	_, err := svc.CreateBatch(context.Background(), accountID, time.Now(), "USD")
	if !errors.Is(err, ErrNothingToSettle) {
		t.Fatalf("expected ErrNothingToSettle got %v", err)
	}
}

func TestCreateBatchCurrencyMismatch(t *testing.T) {
	svc, _, _, accountID := newSettlementFixture(t)
	_, err := svc.CreateBatch(context.Background(), accountID, time.Now(), "EUR")
	if !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("expected ErrCurrencyMismatch got %v", err)
	}
}

func TestFailedBatchReleasesItems(t *testing.T) {
	svc, repo, txs, accountID := newSettlementFixture(t)
	ctx := context.Background()
	seedCompleted(t, txs, transaction.TypeDeposit, 10_000, 10_000, time.Now().Add(-time.Hour))

	batch, err := svc.CreateBatch(ctx, accountID, time.Now(), "USD")
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if err := repo.FailBatch(ctx, batch.ID, "provider rejected file"); err != nil {
		t.Fatalf("fail batch: %v", err)
	}

	retry, err := svc.CreateBatch(ctx, accountID, time.Now(), "USD")
	if err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
	if retry.ItemCount != 1 {
		t.Fatalf("retry item count = %d want 1", retry.ItemCount)
	}
}

func TestProcessBatchRequiresPending(t *testing.T) {
	svc, _, txs, accountID := newSettlementFixture(t)
	ctx := context.Background()
	seedCompleted(t, txs, transaction.TypeDeposit, 10_000, 10_000, time.Now().Add(-time.Hour))

	batch, err := svc.CreateBatch(ctx, accountID, time.Now(), "USD")
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if _, err := svc.ProcessBatch(ctx, batch.ID); err != nil {
		t.Fatalf("process: %v", err)
	}
	if _, err := svc.ProcessBatch(ctx, batch.ID); !errors.Is(err, ErrInvalidBatchState) {
		t.Fatalf("expected ErrInvalidBatchState got %v", err)
	}
}

func TestCompleteBatchUpdatesCompanyAccount(t *testing.T) {
	svc, repo, txs, accountID := newSettlementFixture(t)
	ctx := context.Background()
	seedCompleted(t, txs, transaction.TypeWithdrawal, 5_000, 4_950, time.Now().Add(-time.Hour))

	batch, err := svc.CreateBatch(ctx, accountID, time.Now(), "USD")
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	if _, err := svc.ProcessBatch(ctx, batch.ID); err != nil {
		t.Fatalf("process batch: %v", err)
	}

	account, err := repo.GetAccount(ctx, accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	// Pure debit batch: the company account nets negative.
	if account.Balance != -4_950 {
		t.Fatalf("account balance = %d want -4950", account.Balance)
	}
}

func TestSchedulerTickSettlesEligibleWork(t *testing.T) {
	svc, repo, txs, accountID := newSettlementFixture(t)
	ctx := context.Background()
	seedCompleted(t, txs, transaction.TypeDeposit, 10_000, 10_000, time.Now().Add(-2*time.Hour))

	s := NewScheduler(svc, map[string]string{"USD": accountID}, time.Hour, time.Hour, logging.Discard())
	s.tick(ctx)

	account, err := repo.GetAccount(ctx, accountID)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if account.Balance != 10_000 {
		t.Fatalf("account balance = %d want 10000", account.Balance)
	}

	// A second tick with no new work is a no-op.
	s.tick(ctx)
	account, _ = repo.GetAccount(ctx, accountID)
	if account.Balance != 10_000 {
		t.Fatalf("second tick changed balance: %d", account.Balance)
	}
}
