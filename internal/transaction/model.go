package transaction

import (
	"errors"
	"time"
)

// Type enumerates the money-movement intents the engine records.
type Type string

const (
	TypeTransferIn  Type = "TRANSFER_IN"
	TypeTransferOut Type = "TRANSFER_OUT"
	TypeDeposit     Type = "DEPOSIT"
	TypeWithdrawal  Type = "WITHDRAWAL"
	TypePayment     Type = "PAYMENT"
	TypeRefund      Type = "REFUND"
	TypePayout      Type = "PAYOUT"
	TypeFee         Type = "FEE"
	TypeAdjustment  Type = "ADJUSTMENT"
	TypeHold        Type = "HOLD"
	TypeRelease     Type = "RELEASE"
)

// Status is a node in the transaction state machine.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusOnHold    Status = "ON_HOLD"
	StatusCancelled Status = "CANCELLED"
	StatusReversed  Status = "REVERSED"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusCompleted, StatusFailed, StatusOnHold, StatusCancelled},
	StatusOnHold:    {StatusCompleted, StatusFailed},
	StatusCompleted: {StatusReversed},
}

// CanTransitionTo reports whether the state machine allows moving to next.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is possible.
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

var (
	// ErrNotFound indicates no transaction exists for the identifier.
	ErrNotFound = errors.New("transaction not found")
	// ErrDuplicateReference indicates the reference id is already taken.
	ErrDuplicateReference = errors.New("duplicate reference id")
	// ErrDuplicateIdempotencyKey indicates the idempotency key was seen before.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnsupportedCurrency indicates the currency is not handled.
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("amount must be positive")
	// ErrRecipientInactive indicates the recipient cannot receive funds.
	ErrRecipientInactive = errors.New("recipient inactive")
	// ErrRiskBlocked indicates the risk gate rejected the transfer.
	ErrRiskBlocked = errors.New("blocked by risk policy")
	// ErrStepUpRequired indicates secondary authentication is needed before retry.
	ErrStepUpRequired = errors.New("step-up authentication required")
	// ErrNotCancellable indicates the transaction is not in a cancellable state.
	ErrNotCancellable = errors.New("transaction not cancellable")
	// ErrCancelWindowElapsed indicates the bounded cancellation window has passed.
	ErrCancelWindowElapsed = errors.New("cancellation window elapsed")
	// ErrNotOwner indicates the caller does not own the transaction.
	ErrNotOwner = errors.New("not owner of transaction")
)

// Transaction is one money-movement intent. After creation the status is the
// only field that changes.
type Transaction struct {
	ID             string
	ReferenceID    string
	IdempotencyKey string
	Type           Type
	Status         Status
	SenderID       string
	ReceiverID     string
	WalletID       string
	Amount         int64
	Currency       string
	Fee            int64
	NetAmount      int64
	FailureReason  string
	CreatedAt      time.Time
	ProcessedAt    *time.Time
}

// Filter narrows transaction listings.
type Filter struct {
	Status Status
	Type   Type
	From   time.Time
	To     time.Time
	Limit  int
	Offset int
}

var supportedCurrencies = map[string]bool{
	"USD": true,
	"EUR": true,
	"GBP": true,
	"XAF": true,
	"NGN": true,
}

// CurrencySupported reports whether the engine moves money in the currency.
func CurrencySupported(code string) bool {
	return supportedCurrencies[code]
}

// Currencies lists the supported currency codes.
func Currencies() []string {
	out := make([]string, 0, len(supportedCurrencies))
	for code := range supportedCurrencies {
		out = append(out, code)
	}
	return out
}
