package dispute

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/meridian/internal/logging"
	"github.com/meridianpay/meridian/internal/notification"
	"github.com/meridianpay/meridian/internal/transaction"
	"github.com/meridianpay/meridian/internal/wallet"
)

type recordingNotifier struct {
	mu       sync.Mutex
	messages []notification.Message
}

func (n *recordingNotifier) Send(_ context.Context, m notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, m)
	return nil
}

func (n *recordingNotifier) kinds() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	for i, m := range n.messages {
		out[i] = m.Kind
	}
	return out
}

type disputeFixture struct {
	service    *Service
	txs        transaction.Repository
	wallets    *wallet.Service
	store      wallet.Store
	notifier   *recordingNotifier
	senderID   string
	receiverID string
	tx         transaction.Transaction
}

// newDisputeFixture sets up a completed 5000 transfer (fee 50, net 4950) with
// the receiver holding receiverFunds.
func newDisputeFixture(t *testing.T, receiverFunds int64) *disputeFixture {
	t.Helper()
	ctx := context.Background()

	store := wallet.NewMemoryStore()
	wallets := wallet.NewService(store)
	txs := transaction.NewMemoryRepository()
	notifier := &recordingNotifier{}
	svc := NewService(NewMemoryRepository(), txs, wallets, notifier, 1_500, logging.Discard())

	senderID := uuid.NewString()
	receiverID := uuid.NewString()
	receiverWallet, err := wallets.GetOrCreate(ctx, receiverID, "USD")
	if err != nil {
		t.Fatalf("create receiver wallet: %v", err)
	}
	if receiverFunds > 0 {
		wallet.SeedBalance(store, receiverWallet.ID, receiverFunds)
	}
	if _, err := wallets.GetOrCreate(ctx, senderID, "USD"); err != nil {
		t.Fatalf("create sender wallet: %v", err)
	}

	processedAt := time.Now().UTC().Add(-time.Hour)
	tx := transaction.Transaction{
		ID:          uuid.NewString(),
		ReferenceID: "TXN-DISPUTED",
		Type:        transaction.TypeTransferOut,
		Status:      transaction.StatusCompleted,
		SenderID:    senderID,
		ReceiverID:  receiverID,
		Amount:      5_000,
		Currency:    "USD",
		Fee:         50,
		NetAmount:   4_950,
		CreatedAt:   processedAt,
		ProcessedAt: &processedAt,
	}
	if err := txs.Create(ctx, tx); err != nil {
		t.Fatalf("seed transaction: %v", err)
	}

	return &disputeFixture{
		service:    svc,
		txs:        txs,
		wallets:    wallets,
		store:      store,
		notifier:   notifier,
		senderID:   senderID,
		receiverID: receiverID,
		tx:         tx,
	}
}

func (f *disputeFixture) walletFor(t *testing.T, ownerID string) wallet.Wallet {
	t.Helper()
	w, err := f.wallets.GetOrCreate(context.Background(), ownerID, "USD")
	if err != nil {
		t.Fatalf("lookup wallet: %v", err)
	}
	return w
}

func TestOpenRequiresCompletedTransaction(t *testing.T) {
	f := newDisputeFixture(t, 10_000)
	ctx := context.Background()

	pending := f.tx
	pending.ID = uuid.NewString()
	pending.ReferenceID = "TXN-PENDING"
	pending.Status = transaction.StatusPending
	if err := f.txs.Create(ctx, pending); err != nil {
		t.Fatalf("seed pending: %v", err)
	}

	if _, err := f.service.Open(ctx, pending.ID, "goods not delivered"); !errors.Is(err, ErrNotDisputable) {
		t.Fatalf("expected ErrNotDisputable got %v", err)
	}
}

func TestOpenIsOncePerTransaction(t *testing.T) {
	f := newDisputeFixture(t, 10_000)
	ctx := context.Background()

	if _, err := f.service.Open(ctx, f.tx.ID, "goods not delivered"); err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.service.Open(ctx, f.tx.ID, "second attempt"); !errors.Is(err, ErrNotDisputable) {
		t.Fatalf("expected ErrNotDisputable on second open got %v", err)
	}
}

func TestResolveRejectedLeavesMoneyAlone(t *testing.T) {
	f := newDisputeFixture(t, 10_000)
	ctx := context.Background()

	d, err := f.service.Open(ctx, f.tx.ID, "goods not delivered")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	resolved, err := f.service.Resolve(ctx, d.ID, OutcomeRejected)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != StatusResolved || resolved.Outcome != OutcomeRejected {
		t.Fatalf("unexpected dispute state: %+v", resolved)
	}

	if got := f.walletFor(t, f.receiverID).Balance; got != 10_000 {
		t.Fatalf("receiver balance changed on rejection: %d", got)
	}
	original, _ := f.txs.Get(ctx, f.tx.ID)
	if original.Status != transaction.StatusCompleted {
		t.Fatalf("original transaction changed: %s", original.Status)
	}
}

func TestResolveUpheldReversesTransfer(t *testing.T) {
	f := newDisputeFixture(t, 10_000)
	ctx := context.Background()

	d, err := f.service.Open(ctx, f.tx.ID, "unauthorized")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	resolved, err := f.service.Resolve(ctx, d.ID, OutcomeUpheld)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Outcome != OutcomeUpheld || resolved.ResolvedAt == nil {
		t.Fatalf("unexpected dispute state: %+v", resolved)
	}

	// Receiver pays back amount + chargeback fee; sender recovers the amount;
	// the fee lands in the platform wallet.
	if got := f.walletFor(t, f.receiverID).Balance; got != 3_500 {
		t.Fatalf("receiver balance = %d want 3500", got)
	}
	if got := f.walletFor(t, f.senderID).Balance; got != 5_000 {
		t.Fatalf("sender balance = %d want 5000", got)
	}
	if got := f.walletFor(t, transaction.PlatformOwnerID).Balance; got != 1_500 {
		t.Fatalf("platform balance = %d want 1500", got)
	}

	original, _ := f.txs.Get(ctx, f.tx.ID)
	if original.Status != transaction.StatusReversed {
		t.Fatalf("original status = %s want REVERSED", original.Status)
	}

	// A compensating REFUND with its own journal entries exists.
	refunds, err := f.txs.List(ctx, f.senderID, transaction.Filter{Type: transaction.TypeRefund})
	if err != nil {
		t.Fatalf("list refunds: %v", err)
	}
	if len(refunds) != 1 || refunds[0].ReferenceID != "TXN-DISPUTED-REV" {
		t.Fatalf("expected one compensating refund, got %+v", refunds)
	}
}

func TestResolveUpheldAllowsNegativeBalance(t *testing.T) {
	f := newDisputeFixture(t, 1_000)
	ctx := context.Background()

	d, err := f.service.Open(ctx, f.tx.ID, "unauthorized")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.service.Resolve(ctx, d.ID, OutcomeUpheld); err != nil {
		t.Fatalf("resolve: %v", err)
	}

	receiver := f.walletFor(t, f.receiverID)
	if receiver.Balance != -5_500 {
		t.Fatalf("receiver balance = %d want -5500", receiver.Balance)
	}
	if !receiver.Collections {
		t.Fatal("expected receiver wallet flagged for collections")
	}

	kinds := f.notifier.kinds()
	foundCollections := false
	for _, k := range kinds {
		if k == notification.KindWalletCollections {
			foundCollections = true
		}
	}
	if !foundCollections {
		t.Fatalf("expected wallet_collections notification, got %v", kinds)
	}
}

func TestResolveTwiceFails(t *testing.T) {
	f := newDisputeFixture(t, 10_000)
	ctx := context.Background()

	d, err := f.service.Open(ctx, f.tx.ID, "unauthorized")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.service.Resolve(ctx, d.ID, OutcomeUpheld); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := f.service.Resolve(ctx, d.ID, OutcomeRejected); !errors.Is(err, ErrAlreadyResolved) {
		t.Fatalf("expected ErrAlreadyResolved got %v", err)
	}
}

func TestResolveValidatesOutcome(t *testing.T) {
	f := newDisputeFixture(t, 10_000)
	ctx := context.Background()

	d, err := f.service.Open(ctx, f.tx.ID, "unauthorized")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := f.service.Resolve(ctx, d.ID, Outcome("MAYBE")); !errors.Is(err, ErrInvalidOutcome) {
		t.Fatalf("expected ErrInvalidOutcome got %v", err)
	}
}
