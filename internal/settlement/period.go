package settlement

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/events"
)

// PeriodResult summarises one period close.
type PeriodResult struct {
	From            time.Time        `json:"from"`
	To              time.Time        `json:"to"`
	CreatedPayments []domain.Payment `json:"created_payments"`
	// SkippedPublishers lists publisher ids referenced by leads in the range
	// that did not receive a payment: unknown publishers and publishers whose
	// leads added up to zero.
	SkippedPublishers []string        `json:"skipped_publishers"`
	SkippedLeads      int             `json:"skipped_leads"`
	TotalAmount       decimal.Decimal `json:"total_amount"`
}

// publisherBatch accumulates the leads of one publisher during a close.
type publisherBatch struct {
	publisher domain.Publisher
	leads     []domain.Lead
	payouts   []decimal.Decimal
	amount    decimal.Decimal
}

// ClosePeriod bills every lead dated within [from, to] (whole days, both
// inclusive). It creates one pending payment per publisher with a positive
// total and commits all of them atomically. An empty period is not an error.
func (s *Service) ClosePeriod(ctx context.Context, from, to time.Time) (*PeriodResult, error) {
	if from.IsZero() || to.IsZero() {
		return nil, fmt.Errorf("%w: from and to are required", domain.ErrValidation)
	}
	from, to = domain.Day(from), domain.Day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: period end %s is before start %s",
			domain.ErrValidation, to.Format(domain.DateLayout), from.Format(domain.DateLayout))
	}

	result := &PeriodResult{
		From:              from,
		To:                to,
		CreatedPayments:   []domain.Payment{},
		SkippedPublishers: []string{},
	}

	leads, err := s.leads.ListInRange(ctx, from, to, s.skipSettled)
	if err != nil {
		s.metrics.PeriodCloses.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("list leads: %w", err)
	}

	offers, publishers, err := s.resolveReferences(ctx, leads)
	if err != nil {
		s.metrics.PeriodCloses.WithLabelValues("error").Inc()
		return nil, err
	}

	batches := make(map[string]*publisherBatch)
	seen := make(map[string]bool)
	for _, l := range leads {
		seen[l.PublisherID] = true

		if l.Count <= 0 {
			s.skipLead(result, "zero_count")
			continue
		}
		offer, ok := offers[l.OfferID]
		if !ok {
			s.skipLead(result, "unknown_offer")
			continue
		}
		pub, ok := publishers[l.PublisherID]
		if !ok {
			s.skipLead(result, "unknown_publisher")
			continue
		}

		b, ok := batches[pub.ID]
		if !ok {
			b = &publisherBatch{publisher: pub}
			batches[pub.ID] = b
		}
		b.leads = append(b.leads, l)
		b.payouts = append(b.payouts, offer.Payout)
		b.amount = b.amount.Add(offer.Payout.Mul(decimal.NewFromInt(int64(l.Count))))
	}

	now := s.nowFn()
	var payments []domain.Payment
	var items []domain.PaymentItem
	for _, b := range batches {
		if !b.amount.IsPositive() {
			continue
		}
		p := domain.Payment{
			ID:            s.newID(),
			PublisherID:   b.publisher.ID,
			Amount:        b.amount,
			Currency:      domain.CurrencyUSD,
			PaymentMethod: b.publisher.PaymentMethod,
			Status:        domain.PaymentPending,
			CreatedAt:     now,
			Notes:         periodNotes(from, to, len(b.leads)),
			PeriodFrom:    from,
			PeriodTo:      to,
			LeadCount:     len(b.leads),
		}
		payments = append(payments, p)
		for i, l := range b.leads {
			items = append(items, domain.PaymentItem{
				PaymentID: p.ID,
				LeadID:    l.ID,
				OfferID:   l.OfferID,
				Count:     l.Count,
				Payout:    b.payouts[i],
				Subtotal:  b.payouts[i].Mul(decimal.NewFromInt(int64(l.Count))),
			})
		}
	}
	sort.Slice(payments, func(i, j int) bool { return payments[i].PublisherID < payments[j].PublisherID })

	paid := make(map[string]bool, len(payments))
	for _, p := range payments {
		paid[p.PublisherID] = true
	}
	for id := range seen {
		if !paid[id] {
			result.SkippedPublishers = append(result.SkippedPublishers, id)
		}
	}
	sort.Strings(result.SkippedPublishers)

	if len(payments) == 0 {
		s.metrics.PeriodCloses.WithLabelValues("empty").Inc()
		slog.Info("period close found nothing to settle",
			"from", from.Format(domain.DateLayout), "to", to.Format(domain.DateLayout),
			"leads", len(leads), "skipped_leads", result.SkippedLeads)
		return result, nil
	}

	if err := s.ledger.CreateBatch(ctx, payments, items); err != nil {
		s.metrics.PeriodCloses.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("commit settlement batch: %w", err)
	}

	for _, p := range payments {
		result.TotalAmount = result.TotalAmount.Add(p.Amount)
	}
	result.CreatedPayments = payments

	s.metrics.PeriodCloses.WithLabelValues("ok").Inc()
	s.metrics.PaymentsCreated.Add(float64(len(payments)))
	s.metrics.AmountBilled.Add(result.TotalAmount.InexactFloat64())

	slog.Info("period closed",
		"from", from.Format(domain.DateLayout), "to", to.Format(domain.DateLayout),
		"payments", len(payments), "total_usd", result.TotalAmount.StringFixed(2),
		"skipped_leads", result.SkippedLeads, "skipped_publishers", len(result.SkippedPublishers))

	for i := range payments {
		events.Emit(ctx, s.events, events.PaymentCreated, events.NewPaymentEvent(&payments[i], "", now))
	}
	return result, nil
}

func (s *Service) resolveReferences(ctx context.Context, leads []domain.Lead) (map[string]domain.Offer, map[string]domain.Publisher, error) {
	offerIDs := make(map[string]struct{})
	pubIDs := make(map[string]struct{})
	for _, l := range leads {
		if l.Count <= 0 {
			continue
		}
		offerIDs[l.OfferID] = struct{}{}
		pubIDs[l.PublisherID] = struct{}{}
	}

	offers, err := s.offers.OffersByID(ctx, keys(offerIDs))
	if err != nil {
		return nil, nil, fmt.Errorf("load offers: %w", err)
	}
	publishers, err := s.publishers.PublishersByID(ctx, keys(pubIDs))
	if err != nil {
		return nil, nil, fmt.Errorf("load publishers: %w", err)
	}
	return offers, publishers, nil
}

func (s *Service) skipLead(result *PeriodResult, reason string) {
	result.SkippedLeads++
	s.metrics.LeadsSkipped.WithLabelValues(reason).Inc()
}

func periodNotes(from, to time.Time, leads int) string {
	return fmt.Sprintf("Payment generated by period close %s..%s. Includes %d lead records.",
		from.Format(domain.DateLayout), to.Format(domain.DateLayout), leads)
}

func keys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
