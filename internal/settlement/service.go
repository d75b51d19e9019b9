// Package settlement turns lead counts into payments and drives each payment
// through its pending, paid and failed states.
package settlement

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/events"
	"github.com/wakala/payouts/internal/metrics"
)

type LeadSource interface {
	ListInRange(ctx context.Context, from, to time.Time, unsettledOnly bool) ([]domain.Lead, error)
}

type OfferCatalog interface {
	OffersByID(ctx context.Context, ids []string) (map[string]domain.Offer, error)
}

type PublisherDirectory interface {
	PublishersByID(ctx context.Context, ids []string) (map[string]domain.Publisher, error)
}

// Ledger is the payment store. MarkPaid and MarkFailed must only apply to
// rows that are still pending and report domain.ErrStateConflict otherwise.
type Ledger interface {
	CreateBatch(ctx context.Context, payments []domain.Payment, items []domain.PaymentItem) error
	GetByID(ctx context.Context, id string) (*domain.Payment, error)
	MarkPaid(ctx context.Context, id string, s domain.Settlement) error
	MarkFailed(ctx context.Context, id, reason string) error
	Delete(ctx context.Context, id string) error
}

type RateSource interface {
	GetRates(ctx context.Context) (domain.RateConfig, error)
}

// Deps are the collaborators of a Service. Events and Metrics are required;
// use events.LogPublisher{} and metrics.New() when nothing else is wired.
type Deps struct {
	Leads      LeadSource
	Offers     OfferCatalog
	Publishers PublisherDirectory
	Ledger     Ledger
	Rates      RateSource
	Events     events.Publisher
	Metrics    *metrics.Metrics
}

type Options struct {
	// SkipSettledLeads leaves leads already folded into a payment out of
	// later period closes.
	SkipSettledLeads bool
	Now              func() time.Time
	NewID            func() string
}

type Service struct {
	leads      LeadSource
	offers     OfferCatalog
	publishers PublisherDirectory
	ledger     Ledger
	rates      RateSource
	events     events.Publisher
	metrics    *metrics.Metrics

	skipSettled bool
	nowFn       func() time.Time
	newID       func() string
}

func NewService(deps Deps, opts Options) *Service {
	s := &Service{
		leads:       deps.Leads,
		offers:      deps.Offers,
		publishers:  deps.Publishers,
		ledger:      deps.Ledger,
		rates:       deps.Rates,
		events:      deps.Events,
		metrics:     deps.Metrics,
		skipSettled: opts.SkipSettledLeads,
		nowFn:       opts.Now,
		newID:       opts.NewID,
	}
	if s.nowFn == nil {
		s.nowFn = func() time.Time { return time.Now().UTC() }
	}
	if s.newID == nil {
		s.newID = func() string { return uuid.New().String() }
	}
	return s
}
