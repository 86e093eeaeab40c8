package transaction

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridianpay/meridian/internal/identity"
	"github.com/meridianpay/meridian/internal/notification"
	"github.com/meridianpay/meridian/internal/risk"
	"github.com/meridianpay/meridian/internal/wallet"
)

// PlatformOwnerID owns the fee-revenue wallets. One wallet per currency is
// created lazily, like any other.
const PlatformOwnerID = "00000000-0000-0000-0000-000000000001"

// ErrSelfTransfer indicates sender and recipient resolve to the same user.
var ErrSelfTransfer = errors.New("cannot transfer to self")

// Orchestrator owns the transaction lifecycle: idempotency, fee computation,
// the pre-commit risk consult, and atomic two-leg commits against the wallet
// store. It is the only component that transitions transaction status.
type Orchestrator struct {
	repo       Repository
	wallets    *wallet.Service
	fees       *FeeSchedule
	gate       risk.Gate
	identities identity.Provider
	notifier   notification.Notifier
	logger     *slog.Logger

	cancelWindow time.Duration
	now          func() time.Time
}

// NewOrchestrator wires the transaction orchestrator.
func NewOrchestrator(repo Repository, wallets *wallet.Service, fees *FeeSchedule,
	gate risk.Gate, identities identity.Provider, notifier notification.Notifier,
	cancelWindow time.Duration, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		repo:         repo,
		wallets:      wallets,
		fees:         fees,
		gate:         gate,
		identities:   identities,
		notifier:     notifier,
		logger:       logger,
		cancelWindow: cancelWindow,
		now:          time.Now,
	}
}

// TransferRequest captures one transfer intent from the surrounding application.
type TransferRequest struct {
	SenderID       string
	ReceiverRef    string
	Amount         int64
	Currency       string
	IdempotencyKey string
	DeviceID       string
	IP             string
	Country        string
}

// TransferResult is the outcome returned to the caller. Balances are only
// populated when the transfer committed in this call.
type TransferResult struct {
	Transaction     Transaction
	Fee             int64
	NetAmount       int64
	SenderBalance   int64
	ReceiverBalance int64
	Replayed        bool
}

// Quote previews the fee for an amount without moving anything.
func (o *Orchestrator) Quote(t Type, amount int64) (fee, net int64) {
	return o.fees.Quote(t, amount)
}

// Execute runs one transfer end to end. A previously seen idempotency key
// short-circuits to the stored result before any wallet lock is touched.
func (o *Orchestrator) Execute(ctx context.Context, req TransferRequest) (TransferResult, error) {
	if req.IdempotencyKey != "" {
		prev, err := o.repo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return replayResult(prev), nil
		}
		if !errors.Is(err, ErrNotFound) {
			return TransferResult{}, err
		}
	}

	if req.Amount <= 0 {
		return TransferResult{}, ErrInvalidAmount
	}
	if !CurrencySupported(req.Currency) {
		return TransferResult{}, ErrUnsupportedCurrency
	}

	receiverID, err := o.identities.Resolve(ctx, req.ReceiverRef)
	if err != nil {
		return TransferResult{}, err
	}
	if receiverID == req.SenderID {
		return TransferResult{}, ErrSelfTransfer
	}
	recipient, err := o.identities.Lookup(ctx, receiverID)
	if err != nil {
		return TransferResult{}, err
	}
	if !recipient.Active {
		return TransferResult{}, ErrRecipientInactive
	}

	senderWallet, err := o.wallets.GetOrCreate(ctx, req.SenderID, req.Currency)
	if err != nil {
		return TransferResult{}, err
	}
	if !senderWallet.IsActive {
		return TransferResult{}, wallet.ErrWalletInactive
	}

	fee, net := o.fees.Quote(TypeTransferOut, req.Amount)

	// Reject before creating anything when funds are plainly short. The
	// two-leg commit re-checks under lock.
	if senderWallet.AvailableBalance < req.Amount {
		return TransferResult{}, wallet.ErrInsufficientFunds
	}

	now := o.now().UTC()
	tx := Transaction{
		ID:             uuid.NewString(),
		ReferenceID:    newReference(),
		IdempotencyKey: req.IdempotencyKey,
		Type:           TypeTransferOut,
		Status:         StatusPending,
		SenderID:       req.SenderID,
		ReceiverID:     receiverID,
		WalletID:       senderWallet.ID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Fee:            fee,
		NetAmount:      net,
		CreatedAt:      now,
	}
	if err := o.repo.Create(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			prev, ferr := o.repo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
			if ferr != nil {
				return TransferResult{}, ferr
			}
			return replayResult(prev), nil
		}
		return TransferResult{}, err
	}

	// Risk evaluation always completes before the atomic commit section.
	assessment, err := o.gate.Evaluate(ctx, risk.Input{
		TransactionID: tx.ID,
		UserID:        req.SenderID,
		RecipientID:   receiverID,
		Amount:        req.Amount,
		Currency:      req.Currency,
		DeviceID:      req.DeviceID,
		IP:            req.IP,
		Country:       req.Country,
		EmailDomain:   emailDomain(recipient.Email),
	})
	if err != nil {
		return TransferResult{}, err
	}

	switch assessment.Action {
	case risk.ActionBlock:
		if err := o.repo.UpdateStatus(ctx, tx.ID, StatusFailed, "risk_blocked", nil); err != nil {
			return TransferResult{}, err
		}
		o.emit(ctx, notification.KindTransactionFailed, req.SenderID, tx.ReferenceID, "transfer blocked")
		return TransferResult{}, ErrRiskBlocked

	case risk.ActionStepUp:
		if err := o.repo.UpdateStatus(ctx, tx.ID, StatusFailed, "step_up_required", nil); err != nil {
			return TransferResult{}, err
		}
		return TransferResult{}, ErrStepUpRequired

	case risk.ActionReview:
		if err := o.wallets.Hold(ctx, senderWallet.ID, req.Amount); err != nil {
			return TransferResult{}, err
		}
		if err := o.repo.UpdateStatus(ctx, tx.ID, StatusOnHold, "pending_review", nil); err != nil {
			return TransferResult{}, err
		}
		tx.Status = StatusOnHold
		tx.FailureReason = "pending_review"
		o.emit(ctx, notification.KindTransactionOnHold, req.SenderID, tx.ReferenceID, "transfer held for review")
		return TransferResult{Transaction: tx, Fee: fee, NetAmount: net}, nil
	}

	return o.commitTransfer(ctx, tx)
}

// commitTransfer runs the atomic two-leg commit for a PENDING or approved
// transfer: debit sender gross, credit receiver net, credit platform fee.
func (o *Orchestrator) commitTransfer(ctx context.Context, tx Transaction) (TransferResult, error) {
	receiverWallet, err := o.wallets.GetOrCreate(ctx, tx.ReceiverID, tx.Currency)
	if err != nil {
		return TransferResult{}, err
	}

	inputs := []wallet.ApplyInput{
		{WalletID: tx.WalletID, Type: wallet.EntryDebit, Amount: tx.Amount,
			TransactionID: tx.ID, Description: "transfer to " + tx.ReceiverID},
		{WalletID: receiverWallet.ID, Type: wallet.EntryCredit, Amount: tx.NetAmount,
			TransactionID: tx.ID, Description: "transfer from " + tx.SenderID},
	}
	if tx.Fee > 0 {
		feeWallet, err := o.wallets.GetOrCreate(ctx, PlatformOwnerID, tx.Currency)
		if err != nil {
			return TransferResult{}, err
		}
		inputs = append(inputs, wallet.ApplyInput{
			WalletID: feeWallet.ID, Type: wallet.EntryCredit, Amount: tx.Fee,
			TransactionID: tx.ID, Description: "transfer fee " + tx.ReferenceID,
		})
	}

	entries, err := o.wallets.ApplyEntries(ctx, inputs)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientFunds) {
			if uerr := o.repo.UpdateStatus(ctx, tx.ID, StatusFailed, "insufficient_funds", nil); uerr != nil {
				return TransferResult{}, uerr
			}
			return TransferResult{}, err
		}
		return TransferResult{}, err
	}

	processedAt := o.now().UTC()
	if err := o.repo.UpdateStatus(ctx, tx.ID, StatusCompleted, "", &processedAt); err != nil {
		return TransferResult{}, err
	}
	tx.Status = StatusCompleted
	tx.ProcessedAt = &processedAt

	// Mirror record so the receiver sees a TRANSFER_IN in their history.
	mirror := Transaction{
		ID:          uuid.NewString(),
		ReferenceID: tx.ReferenceID + "-IN",
		Type:        TypeTransferIn,
		Status:      StatusCompleted,
		SenderID:    tx.SenderID,
		ReceiverID:  tx.ReceiverID,
		WalletID:    receiverWallet.ID,
		Amount:      tx.NetAmount,
		Currency:    tx.Currency,
		NetAmount:   tx.NetAmount,
		CreatedAt:   processedAt,
		ProcessedAt: &processedAt,
	}
	if err := o.repo.Create(ctx, mirror); err != nil {
		return TransferResult{}, err
	}

	o.emit(ctx, notification.KindTransactionCompleted, tx.ReceiverID, tx.ReferenceID,
		fmt.Sprintf("you received %d %s", tx.NetAmount, tx.Currency))

	return TransferResult{
		Transaction:     tx,
		Fee:             tx.Fee,
		NetAmount:       tx.NetAmount,
		SenderBalance:   entries[0].BalanceAfter,
		ReceiverBalance: entries[1].BalanceAfter,
	}, nil
}

// ResolveHold settles a transaction parked by a REVIEW decision. Approval
// releases the hold and runs the normal two-leg commit; rejection releases
// the hold and fails the transaction. Money only moves on approval.
func (o *Orchestrator) ResolveHold(ctx context.Context, txID string, approve bool) (Transaction, error) {
	tx, err := o.repo.Get(ctx, txID)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Status != StatusOnHold {
		return Transaction{}, ErrInvalidTransition
	}

	if err := o.wallets.ReleaseHold(ctx, tx.WalletID, tx.Amount); err != nil {
		return Transaction{}, err
	}

	if !approve {
		if err := o.repo.UpdateStatus(ctx, tx.ID, StatusFailed, "review_rejected", nil); err != nil {
			return Transaction{}, err
		}
		tx.Status = StatusFailed
		tx.FailureReason = "review_rejected"
		o.emit(ctx, notification.KindTransactionFailed, tx.SenderID, tx.ReferenceID, "transfer rejected after review")
		return tx, nil
	}

	res, err := o.commitTransfer(ctx, tx)
	if err != nil {
		return Transaction{}, err
	}
	return res.Transaction, nil
}

// DepositRequest records funds arriving from the external funds-in boundary.
type DepositRequest struct {
	UserID    string
	Amount    int64
	Currency  string
	Reference string
}

// Deposit credits the user's wallet and records a completed DEPOSIT.
func (o *Orchestrator) Deposit(ctx context.Context, req DepositRequest) (Transaction, error) {
	if req.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if !CurrencySupported(req.Currency) {
		return Transaction{}, ErrUnsupportedCurrency
	}
	w, err := o.wallets.GetOrCreate(ctx, req.UserID, req.Currency)
	if err != nil {
		return Transaction{}, err
	}

	now := o.now().UTC()
	tx := Transaction{
		ID:          uuid.NewString(),
		ReferenceID: newReference(),
		Type:        TypeDeposit,
		Status:      StatusPending,
		ReceiverID:  req.UserID,
		WalletID:    w.ID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		NetAmount:   req.Amount,
		CreatedAt:   now,
	}
	if err := o.repo.Create(ctx, tx); err != nil {
		return Transaction{}, err
	}

	desc := "deposit"
	if req.Reference != "" {
		desc = "deposit " + req.Reference
	}
	if _, err := o.wallets.ApplyEntry(ctx, wallet.ApplyInput{
		WalletID: w.ID, Type: wallet.EntryCredit, Amount: req.Amount,
		TransactionID: tx.ID, Description: desc,
	}); err != nil {
		return Transaction{}, err
	}

	processedAt := o.now().UTC()
	if err := o.repo.UpdateStatus(ctx, tx.ID, StatusCompleted, "", &processedAt); err != nil {
		return Transaction{}, err
	}
	tx.Status = StatusCompleted
	tx.ProcessedAt = &processedAt
	return tx, nil
}

// WithdrawRequest starts a funds-out movement confirmed asynchronously by the
// external boundary.
type WithdrawRequest struct {
	UserID         string
	Amount         int64
	Currency       string
	IdempotencyKey string
}

// Withdraw debits the gross amount immediately, tracks it as pending on the
// wallet, and leaves the transaction PENDING until the funds-out boundary
// confirms or the user cancels inside the window.
func (o *Orchestrator) Withdraw(ctx context.Context, req WithdrawRequest) (Transaction, error) {
	if req.IdempotencyKey != "" {
		prev, err := o.repo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		if err == nil {
			return prev, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return Transaction{}, err
		}
	}
	if req.Amount <= 0 {
		return Transaction{}, ErrInvalidAmount
	}
	if !CurrencySupported(req.Currency) {
		return Transaction{}, ErrUnsupportedCurrency
	}

	w, err := o.wallets.GetOrCreate(ctx, req.UserID, req.Currency)
	if err != nil {
		return Transaction{}, err
	}
	fee, net := o.fees.Quote(TypeWithdrawal, req.Amount)

	now := o.now().UTC()
	tx := Transaction{
		ID:             uuid.NewString(),
		ReferenceID:    newReference(),
		IdempotencyKey: req.IdempotencyKey,
		Type:           TypeWithdrawal,
		Status:         StatusPending,
		SenderID:       req.UserID,
		WalletID:       w.ID,
		Amount:         req.Amount,
		Currency:       req.Currency,
		Fee:            fee,
		NetAmount:      net,
		CreatedAt:      now,
	}
	if err := o.repo.Create(ctx, tx); err != nil {
		if errors.Is(err, ErrDuplicateIdempotencyKey) {
			return o.repo.FindByIdempotencyKey(ctx, req.IdempotencyKey)
		}
		return Transaction{}, err
	}

	if _, err := o.wallets.ApplyEntry(ctx, wallet.ApplyInput{
		WalletID: w.ID, Type: wallet.EntryDebit, Amount: req.Amount,
		TransactionID: tx.ID, Description: "withdrawal " + tx.ReferenceID,
	}); err != nil {
		if uerr := o.repo.UpdateStatus(ctx, tx.ID, StatusFailed, "insufficient_funds", nil); uerr != nil {
			return Transaction{}, uerr
		}
		return Transaction{}, err
	}
	if err := o.wallets.ShiftPending(ctx, w.ID, req.Amount); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// ConfirmWithdrawal completes a pending withdrawal after the funds-out
// boundary reports success. The retained fee becomes platform revenue.
func (o *Orchestrator) ConfirmWithdrawal(ctx context.Context, txID string) (Transaction, error) {
	tx, err := o.repo.Get(ctx, txID)
	if err != nil {
		return Transaction{}, err
	}
	if tx.Type != TypeWithdrawal || tx.Status != StatusPending {
		return Transaction{}, ErrInvalidTransition
	}

	if err := o.wallets.ShiftPending(ctx, tx.WalletID, -tx.Amount); err != nil {
		return Transaction{}, err
	}
	if tx.Fee > 0 {
		feeWallet, err := o.wallets.GetOrCreate(ctx, PlatformOwnerID, tx.Currency)
		if err != nil {
			return Transaction{}, err
		}
		if _, err := o.wallets.ApplyEntry(ctx, wallet.ApplyInput{
			WalletID: feeWallet.ID, Type: wallet.EntryCredit, Amount: tx.Fee,
			TransactionID: tx.ID, Description: "withdrawal fee " + tx.ReferenceID,
		}); err != nil {
			return Transaction{}, err
		}
	}

	processedAt := o.now().UTC()
	if err := o.repo.UpdateStatus(ctx, tx.ID, StatusCompleted, "", &processedAt); err != nil {
		return Transaction{}, err
	}
	tx.Status = StatusCompleted
	tx.ProcessedAt = &processedAt
	o.emit(ctx, notification.KindTransactionCompleted, tx.SenderID, tx.ReferenceID, "withdrawal completed")
	return tx, nil
}

// Cancel aborts a still-PENDING transaction inside the cancellation window.
// The compensating credit only applies to types that debit the wallet at
// creation (withdrawals, payouts); a pending transfer has not moved funds
// yet, so it flips to CANCELLED without a ledger entry. Completed transfers
// are never cancellable; they go through the dispute path instead.
func (o *Orchestrator) Cancel(ctx context.Context, txID, requestorID string) (Transaction, error) {
	tx, err := o.repo.Get(ctx, txID)
	if err != nil {
		return Transaction{}, err
	}
	if requestorID != "" && tx.SenderID != requestorID {
		return Transaction{}, ErrNotOwner
	}
	if tx.Status != StatusPending {
		return Transaction{}, ErrNotCancellable
	}
	if o.now().UTC().Sub(tx.CreatedAt) > o.cancelWindow {
		return Transaction{}, ErrCancelWindowElapsed
	}

	if debitsAtCreation(tx.Type) {
		if _, err := o.wallets.ApplyEntry(ctx, wallet.ApplyInput{
			WalletID: tx.WalletID, Type: wallet.EntryCredit, Amount: tx.Amount,
			TransactionID: tx.ID, Description: "cancellation " + tx.ReferenceID,
		}); err != nil {
			return Transaction{}, err
		}
		if err := o.wallets.ShiftPending(ctx, tx.WalletID, -tx.Amount); err != nil {
			return Transaction{}, err
		}
	}
	if err := o.repo.UpdateStatus(ctx, tx.ID, StatusCancelled, "user_cancelled", nil); err != nil {
		return Transaction{}, err
	}
	tx.Status = StatusCancelled
	tx.FailureReason = "user_cancelled"
	o.emit(ctx, notification.KindTransactionCancelled, tx.SenderID, tx.ReferenceID, "transaction cancelled")
	return tx, nil
}

// debitsAtCreation reports whether the type debits its wallet when the
// transaction is created rather than at commit, so cancellation owes a
// compensating credit.
func debitsAtCreation(t Type) bool {
	return t == TypeWithdrawal || t == TypePayout
}

// Get fetches one transaction.
func (o *Orchestrator) Get(ctx context.Context, id string) (Transaction, error) {
	return o.repo.Get(ctx, id)
}

// List returns an owner's transactions through the repository filters.
func (o *Orchestrator) List(ctx context.Context, ownerID string, f Filter) ([]Transaction, error) {
	return o.repo.List(ctx, ownerID, f)
}

func (o *Orchestrator) emit(ctx context.Context, kind, destination, reference, body string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Send(ctx, notification.Message{
		Kind:        kind,
		Destination: destination,
		Reference:   reference,
		Body:        body,
	}); err != nil && o.logger != nil {
		o.logger.Warn("notification send failed", "kind", kind, "error", err)
	}
}

func replayResult(tx Transaction) TransferResult {
	return TransferResult{Transaction: tx, Fee: tx.Fee, NetAmount: tx.NetAmount, Replayed: true}
}

func newReference() string {
	raw := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return "TXN-" + raw[:12]
}

func emailDomain(email string) string {
	if at := strings.LastIndex(email, "@"); at >= 0 {
		return strings.ToLower(email[at+1:])
	}
	return ""
}
