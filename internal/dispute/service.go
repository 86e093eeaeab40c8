package dispute

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/meridian/internal/notification"
	"github.com/meridianpay/meridian/internal/transaction"
	"github.com/meridianpay/meridian/internal/wallet"
)

// Service is the reversal handler. An upheld dispute claws the money back
// through new compensating ledger entries; the original records are never
// touched beyond the REVERSED status transition.
//
// When the receiver cannot cover the reversal, the debit still lands: the
// wallet goes negative and is flagged for collections. A chargeback is an
// external liability that has already happened, so the ledger follows it.
type Service struct {
	repo          Repository
	txs           transaction.Repository
	wallets       *wallet.Service
	notifier      notification.Notifier
	chargebackFee int64
	logger        *slog.Logger
	now           func() time.Time
}

// NewService wires the reversal handler.
func NewService(repo Repository, txs transaction.Repository, wallets *wallet.Service,
	notifier notification.Notifier, chargebackFee int64, logger *slog.Logger) *Service {
	return &Service{
		repo:          repo,
		txs:           txs,
		wallets:       wallets,
		notifier:      notifier,
		chargebackFee: chargebackFee,
		logger:        logger,
		now:           time.Now,
	}
}

// Open files a dispute against a completed transaction. Each transaction is
// disputable at most once.
func (s *Service) Open(ctx context.Context, transactionID, reason string) (Dispute, error) {
	tx, err := s.txs.Get(ctx, transactionID)
	if err != nil {
		return Dispute{}, err
	}
	if tx.Status != transaction.StatusCompleted {
		return Dispute{}, ErrNotDisputable
	}

	d := Dispute{
		ID:            uuid.NewString(),
		TransactionID: transactionID,
		Reason:        reason,
		Status:        StatusOpen,
		ChargebackFee: s.chargebackFee,
		CreatedAt:     s.now().UTC(),
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return Dispute{}, err
	}
	return d, nil
}

// Get fetches one dispute.
func (s *Service) Get(ctx context.Context, id string) (Dispute, error) {
	return s.repo.Get(ctx, id)
}

// Resolve applies the outcome. REJECTED closes the dispute and nothing moves.
// UPHELD debits the receiver for amount + chargeback fee, refunds the sender,
// transitions the original transaction to REVERSED and emits the reversal
// event.
func (s *Service) Resolve(ctx context.Context, id string, outcome Outcome) (Dispute, error) {
	if outcome != OutcomeUpheld && outcome != OutcomeRejected {
		return Dispute{}, ErrInvalidOutcome
	}

	d, err := s.repo.Get(ctx, id)
	if err != nil {
		return Dispute{}, err
	}
	if d.Status == StatusResolved {
		return Dispute{}, ErrAlreadyResolved
	}

	tx, err := s.txs.Get(ctx, d.TransactionID)
	if err != nil {
		return Dispute{}, err
	}
	if tx.Status != transaction.StatusCompleted {
		return Dispute{}, ErrNotDisputable
	}

	now := s.now().UTC()
	if outcome == OutcomeRejected {
		if err := s.repo.Resolve(ctx, id, outcome, now); err != nil {
			return Dispute{}, err
		}
		d.Status = StatusResolved
		d.Outcome = outcome
		d.ResolvedAt = &now
		return d, nil
	}

	if err := s.reverse(ctx, tx, d); err != nil {
		return Dispute{}, err
	}
	if err := s.repo.Resolve(ctx, id, outcome, now); err != nil {
		return Dispute{}, err
	}
	d.Status = StatusResolved
	d.Outcome = outcome
	d.ResolvedAt = &now
	return d, nil
}

func (s *Service) reverse(ctx context.Context, tx transaction.Transaction, d Dispute) error {
	receiverWallet, err := s.wallets.GetOrCreate(ctx, tx.ReceiverID, tx.Currency)
	if err != nil {
		return err
	}
	senderWallet, err := s.wallets.GetOrCreate(ctx, tx.SenderID, tx.Currency)
	if err != nil {
		return err
	}

	reversalID := uuid.NewString()
	clawback := tx.Amount + d.ChargebackFee
	inputs := []wallet.ApplyInput{
		{WalletID: receiverWallet.ID, Type: wallet.EntryDebit, Amount: clawback,
			TransactionID: reversalID, Description: "chargeback " + tx.ReferenceID,
			AllowNegative: true},
		{WalletID: senderWallet.ID, Type: wallet.EntryCredit, Amount: tx.Amount,
			TransactionID: reversalID, Description: "chargeback refund " + tx.ReferenceID},
	}
	if d.ChargebackFee > 0 {
		feeWallet, err := s.wallets.GetOrCreate(ctx, transaction.PlatformOwnerID, tx.Currency)
		if err != nil {
			return err
		}
		inputs = append(inputs, wallet.ApplyInput{
			WalletID: feeWallet.ID, Type: wallet.EntryCredit, Amount: d.ChargebackFee,
			TransactionID: reversalID, Description: "chargeback fee " + tx.ReferenceID,
		})
	}

	entries, err := s.wallets.ApplyEntries(ctx, inputs)
	if err != nil {
		return err
	}

	processedAt := s.now().UTC()
	compensating := transaction.Transaction{
		ID:          reversalID,
		ReferenceID: tx.ReferenceID + "-REV",
		Type:        transaction.TypeRefund,
		Status:      transaction.StatusCompleted,
		SenderID:    tx.ReceiverID,
		ReceiverID:  tx.SenderID,
		WalletID:    receiverWallet.ID,
		Amount:      tx.Amount,
		Currency:    tx.Currency,
		Fee:         d.ChargebackFee,
		NetAmount:   tx.Amount,
		CreatedAt:   processedAt,
		ProcessedAt: &processedAt,
	}
	if err := s.txs.Create(ctx, compensating); err != nil {
		return err
	}
	if err := s.txs.UpdateStatus(ctx, tx.ID, transaction.StatusReversed, "chargeback_upheld", nil); err != nil {
		return err
	}

	if entries[0].BalanceAfter < 0 {
		s.emit(ctx, notification.KindWalletCollections, tx.ReceiverID, tx.ReferenceID,
			fmt.Sprintf("wallet balance negative after chargeback: %d", entries[0].BalanceAfter))
	}
	s.emit(ctx, notification.KindTransactionReversed, tx.ReceiverID, tx.ReferenceID,
		fmt.Sprintf("transaction reversed, %d %s clawed back", clawback, tx.Currency))
	return nil
}

func (s *Service) emit(ctx context.Context, kind, destination, reference, body string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: destination,
		Reference:   reference,
		Body:        body,
	}); err != nil && s.logger != nil {
		s.logger.Warn("notification send failed", "kind", kind, "error", err)
	}
}
