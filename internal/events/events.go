// Package events publishes settlement lifecycle notifications.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/domain"
)

// Routing keys on the settlement exchange.
const (
	PaymentCreated = "payment.created"
	PaymentPaid    = "payment.paid"
	PaymentFailed  = "payment.failed"
	PaymentDeleted = "payment.deleted"
	PaymentFlagged = "payment.flagged"
)

// Publisher delivers an event body under a routing key.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
	Close()
}

// PaymentEvent is the JSON body of every payment.* event.
type PaymentEvent struct {
	PaymentID     string               `json:"payment_id"`
	PublisherID   string               `json:"publisher_id"`
	Status        domain.PaymentStatus `json:"status"`
	Amount        decimal.Decimal      `json:"amount"`
	Currency      string               `json:"currency"`
	FinalAmount   decimal.NullDecimal  `json:"final_amount"`
	FinalCurrency string               `json:"final_currency,omitempty"`
	Reason        string               `json:"reason,omitempty"`
	OccurredAt    time.Time            `json:"occurred_at"`
}

// NewPaymentEvent snapshots p for publishing.
func NewPaymentEvent(p *domain.Payment, reason string, at time.Time) PaymentEvent {
	return PaymentEvent{
		PaymentID:     p.ID,
		PublisherID:   p.PublisherID,
		Status:        p.Status,
		Amount:        p.Amount,
		Currency:      p.Currency,
		FinalAmount:   p.FinalAmount,
		FinalCurrency: p.FinalCurrency,
		Reason:        reason,
		OccurredAt:    at,
	}
}

// Emit publishes and logs a failure instead of returning it. Notifications
// never roll back a committed ledger change.
func Emit(ctx context.Context, pub Publisher, routingKey string, body any) {
	if pub == nil {
		return
	}
	if err := pub.Publish(ctx, routingKey, body); err != nil {
		slog.Warn("event publish failed", "routing_key", routingKey, "error", err)
	}
}

// LogPublisher is used when no broker is configured. It only logs.
type LogPublisher struct{}

func (LogPublisher) Publish(_ context.Context, routingKey string, _ any) error {
	slog.Debug("event publish skipped, no broker configured", "routing_key", routingKey)
	return nil
}

func (LogPublisher) Close() {}
