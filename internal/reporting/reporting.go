// Package reporting builds read-only views over the ledger: per-publisher
// statements and the dashboard summary.
package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/repository"
)

const topPublishers = 5

type Service struct {
	leadRepo      *repository.LeadRepo
	offerRepo     *repository.OfferRepo
	publisherRepo *repository.PublisherRepo
	paymentRepo   *repository.PaymentRepo
}

func NewService(
	leadRepo *repository.LeadRepo,
	offerRepo *repository.OfferRepo,
	publisherRepo *repository.PublisherRepo,
	paymentRepo *repository.PaymentRepo,
) *Service {
	return &Service{
		leadRepo:      leadRepo,
		offerRepo:     offerRepo,
		publisherRepo: publisherRepo,
		paymentRepo:   paymentRepo,
	}
}

// OfferLine is one offer's share of a statement.
type OfferLine struct {
	OfferID   string          `json:"offer_id"`
	OfferName string          `json:"offer_name"`
	Payout    decimal.Decimal `json:"payout"`
	Records   int             `json:"records"`
	Leads     int             `json:"leads"`
	Amount    decimal.Decimal `json:"amount"`
}

type Statement struct {
	Publisher   domain.Publisher `json:"publisher"`
	From        string           `json:"from"`
	To          string           `json:"to"`
	Offers      []OfferLine      `json:"offers"`
	TotalLeads  int              `json:"total_leads"`
	TotalAmount decimal.Decimal  `json:"total_amount"`
	Payments    []domain.Payment `json:"payments"`
}

// PublisherStatement groups a publisher's leads in [from, to] by offer and
// prices them at the current payout. Zero counts are listed but add nothing.
// Payments whose period overlaps the range are attached.
func (s *Service) PublisherStatement(ctx context.Context, publisherID string, from, to time.Time) (*Statement, error) {
	from, to = domain.Day(from), domain.Day(to)
	if to.Before(from) {
		return nil, fmt.Errorf("%w: period end is before start", domain.ErrValidation)
	}

	pub, err := s.publisherRepo.GetByID(ctx, publisherID)
	if err != nil {
		return nil, err
	}

	leads, err := s.leadRepo.ListByPublisher(ctx, publisherID, from, to)
	if err != nil {
		return nil, err
	}

	lines := make(map[string]*OfferLine)
	var offerIDs []string
	for _, l := range leads {
		line, ok := lines[l.OfferID]
		if !ok {
			line = &OfferLine{OfferID: l.OfferID}
			lines[l.OfferID] = line
			offerIDs = append(offerIDs, l.OfferID)
		}
		line.Records++
		if l.Count > 0 {
			line.Leads += l.Count
		}
	}

	offers, err := s.offerRepo.OffersByID(ctx, offerIDs)
	if err != nil {
		return nil, err
	}

	st := &Statement{
		Publisher: *pub,
		From:      from.Format(domain.DateLayout),
		To:        to.Format(domain.DateLayout),
		Offers:    make([]OfferLine, 0, len(lines)),
		Payments:  []domain.Payment{},
	}
	sort.Strings(offerIDs)
	for _, id := range offerIDs {
		line := lines[id]
		if o, ok := offers[id]; ok {
			line.OfferName = o.Name
			line.Payout = o.Payout
			line.Amount = o.Payout.Mul(decimal.NewFromInt(int64(line.Leads)))
		}
		st.TotalLeads += line.Leads
		st.TotalAmount = st.TotalAmount.Add(line.Amount)
		st.Offers = append(st.Offers, *line)
	}

	payments, err := s.paymentRepo.ListByPublisher(ctx, publisherID)
	if err != nil {
		return nil, err
	}
	for _, p := range payments {
		if !p.PeriodFrom.After(to) && !p.PeriodTo.Before(from) {
			st.Payments = append(st.Payments, p)
		}
	}
	return st, nil
}

type TopPublisher struct {
	PublisherID string          `json:"publisher_id"`
	Name        string          `json:"name"`
	Payments    int             `json:"payments"`
	Amount      decimal.Decimal `json:"amount"`
}

type Dashboard struct {
	Offers     int `json:"offers"`
	Publishers int `json:"publishers"`
	Leads      int `json:"leads"`
	Payments   struct {
		Total   int `json:"total"`
		Pending int `json:"pending"`
		Paid    int `json:"paid"`
		Failed  int `json:"failed"`
		Flagged int `json:"flagged"`
	} `json:"payments"`
	Amounts struct {
		TotalRevenue decimal.Decimal `json:"total_revenue"`
		Pending      decimal.Decimal `json:"pending"`
		Paid         decimal.Decimal `json:"paid"`
		Failed       decimal.Decimal `json:"failed"`
	} `json:"amounts_usd"`
	TopPublishers []TopPublisher `json:"top_publishers"`
}

func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var d Dashboard
	var err error

	if d.Offers, err = s.offerRepo.Count(ctx); err != nil {
		return nil, fmt.Errorf("count offers: %w", err)
	}
	if d.Publishers, err = s.publisherRepo.Count(ctx); err != nil {
		return nil, fmt.Errorf("count publishers: %w", err)
	}
	if d.Leads, err = s.leadRepo.Count(ctx); err != nil {
		return nil, fmt.Errorf("count leads: %w", err)
	}

	stats, totals, err := s.paymentRepo.GetStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("payment stats: %w", err)
	}
	d.Payments.Total = stats.Total
	d.Payments.Pending = stats.ByStatus[domain.PaymentPending]
	d.Payments.Paid = stats.ByStatus[domain.PaymentPaid]
	d.Payments.Failed = stats.ByStatus[domain.PaymentFailed]
	d.Payments.Flagged = stats.Flagged
	d.Amounts.TotalRevenue = stats.TotalAmount
	d.Amounts.Pending = stats.AmountByStatus[domain.PaymentPending]
	d.Amounts.Paid = stats.AmountByStatus[domain.PaymentPaid]
	d.Amounts.Failed = stats.AmountByStatus[domain.PaymentFailed]

	if len(totals) > topPublishers {
		totals = totals[:topPublishers]
	}
	ids := make([]string, len(totals))
	for i, t := range totals {
		ids[i] = t.PublisherID
	}
	pubs, err := s.publisherRepo.PublishersByID(ctx, ids)
	if err != nil {
		return nil, err
	}

	d.TopPublishers = make([]TopPublisher, 0, len(totals))
	for _, t := range totals {
		d.TopPublishers = append(d.TopPublishers, TopPublisher{
			PublisherID: t.PublisherID,
			Name:        pubs[t.PublisherID].Name,
			Payments:    t.Payments,
			Amount:      t.Amount,
		})
	}
	return &d, nil
}
