package fraud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/events"
)

// PaymentStore is the slice of the ledger the reviewer needs.
type PaymentStore interface {
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	ListByPublisher(ctx context.Context, publisherID string) ([]domain.Payment, error)
	ListByStatus(ctx context.Context, status domain.PaymentStatus) ([]domain.Payment, error)
	SetFraudVerdict(ctx context.Context, id string, v domain.FraudVerdict) error
}

// Reviewer runs the evaluator over ledger entries and stores the verdicts.
type Reviewer struct {
	evaluator *Evaluator
	payments  PaymentStore
	events    events.Publisher
	nowFn     func() time.Time
}

func NewReviewer(evaluator *Evaluator, payments PaymentStore, pub events.Publisher) *Reviewer {
	return &Reviewer{
		evaluator: evaluator,
		payments:  payments,
		events:    pub,
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// ReviewSummary reports a ReviewPending run.
type ReviewSummary struct {
	Reviewed int `json:"reviewed"`
	Flagged  int `json:"flagged"`
}

// Review evaluates one payment against every other payment of its publisher
// and annotates it with the verdict.
func (r *Reviewer) Review(ctx context.Context, paymentID string) (*domain.Payment, Verdict, error) {
	p, err := r.payments.GetByID(ctx, paymentID)
	if err != nil {
		return nil, Verdict{}, err
	}

	all, err := r.payments.ListByPublisher(ctx, p.PublisherID)
	if err != nil {
		return nil, Verdict{}, fmt.Errorf("load history: %w", err)
	}
	history := make([]HistoricalPayment, 0, len(all))
	for _, h := range all {
		if h.ID == p.ID {
			continue
		}
		history = append(history, HistoricalPayment{Amount: h.Amount, Currency: h.Currency, Date: paymentDate(&h)})
	}

	verdict := r.evaluator.Evaluate(ctx, Candidate{
		PublisherID: p.PublisherID,
		Amount:      p.Amount,
		Currency:    p.Currency,
		Date:        paymentDate(p),
	}, history)

	checked := r.nowFn()
	if err := r.payments.SetFraudVerdict(ctx, p.ID, domain.FraudVerdict{
		Flagged:   verdict.Flagged,
		Reason:    verdict.Reason,
		CheckedAt: checked,
	}); err != nil {
		return nil, Verdict{}, err
	}
	p.FraudFlagged = verdict.Flagged
	p.FraudReason = verdict.Reason
	p.FraudCheckedAt = &checked

	if verdict.Flagged {
		slog.Warn("payment flagged for review", "payment_id", p.ID, "publisher_id", p.PublisherID, "reason", verdict.Reason)
		events.Emit(ctx, r.events, events.PaymentFlagged, events.NewPaymentEvent(p, verdict.Reason, checked))
	}
	return p, verdict, nil
}

// ReviewPending reviews every pending payment in creation order.
func (r *Reviewer) ReviewPending(ctx context.Context) (ReviewSummary, error) {
	pending, err := r.payments.ListByStatus(ctx, domain.PaymentPending)
	if err != nil {
		return ReviewSummary{}, fmt.Errorf("list pending: %w", err)
	}

	var sum ReviewSummary
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		_, v, err := r.Review(ctx, p.ID)
		if err != nil {
			return sum, fmt.Errorf("review %s: %w", p.ID, err)
		}
		sum.Reviewed++
		if v.Flagged {
			sum.Flagged++
		}
	}
	slog.Info("pending payments reviewed", "reviewed", sum.Reviewed, "flagged", sum.Flagged)
	return sum, nil
}

// paymentDate is when the payment was paid, or created if it is still open.
func paymentDate(p *domain.Payment) time.Time {
	if p.PaidAt != nil {
		return *p.PaidAt
	}
	return p.CreatedAt
}
