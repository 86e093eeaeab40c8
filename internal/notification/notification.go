package notification

import (
	"context"
	"log/slog"
)

// Event kinds emitted by the money-movement engine. The downstream
// notification service decides channel and rendering.
const (
	KindTransactionCompleted = "transaction_completed"
	KindTransactionFailed    = "transaction_failed"
	KindTransactionOnHold    = "transaction_on_hold"
	KindTransactionCancelled = "transaction_cancelled"
	KindTransactionReversed  = "transaction_reversed"
	KindSettlementCompleted  = "settlement_completed"
	KindWalletCollections    = "wallet_collections"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Reference   string
	Body        string
}

// Notifier delivers notifications to downstream systems. Delivery is
// fire-and-forget: senders ignore errors beyond logging.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier is a stub implementation that writes notifications to the logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier stub.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"reference", message.Reference,
		"body", message.Body,
	)
	return nil
}
