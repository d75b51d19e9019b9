// Package fraud asks an external scoring oracle whether a payment looks
// anomalous against the publisher's history. The check is advisory: an
// unreachable oracle never blocks settlement.
package fraud

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/metrics"
)

// Candidate is the payment under review.
type Candidate struct {
	PublisherID string
	Amount      decimal.Decimal
	Currency    string
	Date        time.Time
}

// HistoricalPayment is one earlier payment of the same publisher.
type HistoricalPayment struct {
	Amount   decimal.Decimal
	Currency string
	Date     time.Time
}

type Verdict struct {
	Flagged bool   `json:"flagged"`
	Reason  string `json:"reason,omitempty"`
}

// ScoreRequest is the oracle's input document. Dates are YYYY-MM-DD.
type ScoreRequest struct {
	PublisherID           string         `json:"publisherId"`
	PaymentAmount         float64        `json:"paymentAmount"`
	PaymentCurrency       string         `json:"paymentCurrency"`
	PaymentDate           string         `json:"paymentDate"`
	HistoricalPaymentData []HistoryEntry `json:"historicalPaymentData"`
}

type HistoryEntry struct {
	PaymentAmount   float64 `json:"paymentAmount"`
	PaymentCurrency string  `json:"paymentCurrency"`
	PaymentDate     string  `json:"paymentDate"`
}

type ScoreResponse struct {
	IsPotentiallyFraudulent bool   `json:"isPotentiallyFraudulent"`
	FraudulentReason        string `json:"fraudulentReason,omitempty"`
}

// Scorer is the external judgement. Implementations own the heuristic.
type Scorer interface {
	Score(ctx context.Context, req ScoreRequest) (ScoreResponse, error)
}

// Evaluator marshals candidates for a Scorer and applies the fail-open
// policy.
type Evaluator struct {
	scorer  Scorer
	timeout time.Duration
	metrics *metrics.Metrics
}

func NewEvaluator(scorer Scorer, timeout time.Duration, m *metrics.Metrics) *Evaluator {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Evaluator{scorer: scorer, timeout: timeout, metrics: m}
}

// Evaluate never returns an error. Oracle failures and timeouts yield an
// unflagged verdict.
func (e *Evaluator) Evaluate(ctx context.Context, c Candidate, history []HistoricalPayment) Verdict {
	req := BuildRequest(c, history)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	resp, err := e.score(ctx, req)
	e.metrics.OracleLatency.Observe(time.Since(start).Seconds())

	if err != nil {
		e.metrics.FraudChecks.WithLabelValues("unavailable").Inc()
		slog.Warn("fraud check skipped", "publisher_id", c.PublisherID, "error", err)
		return Verdict{}
	}

	if !resp.IsPotentiallyFraudulent {
		e.metrics.FraudChecks.WithLabelValues("clear").Inc()
		return Verdict{}
	}
	e.metrics.FraudChecks.WithLabelValues("flagged").Inc()
	return Verdict{Flagged: true, Reason: resp.FraudulentReason}
}

// score runs the scorer and folds every failure into ErrOracleUnavailable.
func (e *Evaluator) score(ctx context.Context, req ScoreRequest) (ScoreResponse, error) {
	resp, err := e.scorer.Score(ctx, req)
	if err == nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	if err != nil && !errors.Is(err, domain.ErrOracleUnavailable) {
		err = fmt.Errorf("%w: %v", domain.ErrOracleUnavailable, err)
	}
	return resp, err
}

// BuildRequest normalizes dates to calendar days and converts amounts to the
// oracle's numeric form.
func BuildRequest(c Candidate, history []HistoricalPayment) ScoreRequest {
	req := ScoreRequest{
		PublisherID:           c.PublisherID,
		PaymentAmount:         c.Amount.InexactFloat64(),
		PaymentCurrency:       c.Currency,
		PaymentDate:           domain.Day(c.Date).Format(domain.DateLayout),
		HistoricalPaymentData: make([]HistoryEntry, 0, len(history)),
	}
	for _, h := range history {
		req.HistoricalPaymentData = append(req.HistoricalPaymentData, HistoryEntry{
			PaymentAmount:   h.Amount.InexactFloat64(),
			PaymentCurrency: h.Currency,
			PaymentDate:     domain.Day(h.Date).Format(domain.DateLayout),
		})
	}
	return req
}
