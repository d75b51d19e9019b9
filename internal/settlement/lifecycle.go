package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/currency"
	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/events"
)

// ConfirmPayment marks a pending payment as paid at paidAt (now when zero).
//
// Bank transfers are converted at rate, or at the configured rate for the
// payment's country when rate is nil. A missing or non-positive rate is a
// validation error and leaves the payment pending. USD methods settle the
// billed amount as is and ignore rate.
func (s *Service) ConfirmPayment(ctx context.Context, id string, paidAt time.Time, rate *decimal.Decimal) (*domain.Payment, error) {
	if rate != nil && !rate.IsPositive() {
		s.countTransition(domain.PaymentPaid, domain.ErrValidation)
		return nil, fmt.Errorf("%w: exchange rate must be positive, got %s", domain.ErrValidation, rate)
	}

	p, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		s.countTransition(domain.PaymentPaid, err)
		return nil, err
	}
	if p.Status != domain.PaymentPending {
		err := fmt.Errorf("%w: payment %s is %s", domain.ErrStateConflict, id, p.Status)
		s.countTransition(domain.PaymentPaid, err)
		return nil, err
	}

	if paidAt.IsZero() {
		paidAt = s.nowFn()
	}
	settle, err := s.settlementFor(ctx, p, paidAt, rate)
	if err != nil {
		s.countTransition(domain.PaymentPaid, err)
		return nil, err
	}

	if err := s.ledger.MarkPaid(ctx, id, settle); err != nil {
		s.countTransition(domain.PaymentPaid, err)
		return nil, err
	}
	s.countTransition(domain.PaymentPaid, nil)

	p.Status = domain.PaymentPaid
	p.PaidAt = &settle.PaidAt
	p.ExchangeRate = settle.ExchangeRate
	p.FinalAmount = decimal.NewNullDecimal(settle.FinalAmount)
	p.FinalCurrency = settle.FinalCurrency

	slog.Info("payment confirmed",
		"payment_id", p.ID, "publisher_id", p.PublisherID, "amount_usd", p.Amount.StringFixed(2),
		"final_amount", settle.FinalAmount.StringFixed(2), "final_currency", settle.FinalCurrency)
	events.Emit(ctx, s.events, events.PaymentPaid, events.NewPaymentEvent(p, "", s.nowFn()))
	return p, nil
}

// settlementFor computes the conversion fields for p. The type switch covers
// every PaymentMethod.
func (s *Service) settlementFor(ctx context.Context, p *domain.Payment, paidAt time.Time, rate *decimal.Decimal) (domain.Settlement, error) {
	switch m := p.PaymentMethod.(type) {
	case domain.PayPalMethod, domain.CryptoMethod:
		return domain.Settlement{
			PaidAt:        paidAt,
			FinalAmount:   p.Amount,
			FinalCurrency: domain.CurrencyUSD,
		}, nil

	case domain.LocalBankMethod:
		code, err := currency.ForCountry(m.Country)
		if err != nil {
			return domain.Settlement{}, err
		}

		var applied decimal.Decimal
		if rate != nil {
			applied = *rate
		} else {
			cfg, err := s.rates.GetRates(ctx)
			if err != nil {
				return domain.Settlement{}, fmt.Errorf("read rates: %w", err)
			}
			configured, ok := currency.Rate(cfg, code)
			if !ok {
				return domain.Settlement{}, fmt.Errorf("%w: no USD to %s rate configured and none supplied",
					domain.ErrValidation, code)
			}
			applied = configured
		}

		final, err := currency.FromUSD(p.Amount, applied)
		if err != nil {
			return domain.Settlement{}, err
		}
		return domain.Settlement{
			PaidAt:        paidAt,
			ExchangeRate:  decimal.NewNullDecimal(applied),
			FinalAmount:   final,
			FinalCurrency: code,
		}, nil

	default:
		return domain.Settlement{}, fmt.Errorf("%w: payment %s has no usable payment method", domain.ErrValidation, p.ID)
	}
}

// FailPayment marks a pending payment as failed. Conversion fields are left
// untouched.
func (s *Service) FailPayment(ctx context.Context, id, reason string) (*domain.Payment, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		s.countTransition(domain.PaymentFailed, domain.ErrValidation)
		return nil, fmt.Errorf("%w: a failure reason is required", domain.ErrValidation)
	}

	if err := s.ledger.MarkFailed(ctx, id, reason); err != nil {
		s.countTransition(domain.PaymentFailed, err)
		return nil, err
	}
	s.countTransition(domain.PaymentFailed, nil)

	p, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	slog.Info("payment failed", "payment_id", p.ID, "publisher_id", p.PublisherID, "reason", reason)
	events.Emit(ctx, s.events, events.PaymentFailed, events.NewPaymentEvent(p, reason, s.nowFn()))
	return p, nil
}

// DeletePayment removes a payment in any state and releases the leads it
// settled. The log line is the only record left behind.
func (s *Service) DeletePayment(ctx context.Context, id string) error {
	p, err := s.ledger.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.ledger.Delete(ctx, id); err != nil {
		return err
	}

	slog.Warn("payment deleted",
		"payment_id", p.ID, "publisher_id", p.PublisherID, "status", p.Status,
		"amount_usd", p.Amount.StringFixed(2), "leads", p.LeadCount)
	events.Emit(ctx, s.events, events.PaymentDeleted, events.NewPaymentEvent(p, "deleted", s.nowFn()))
	return nil
}

func (s *Service) countTransition(to domain.PaymentStatus, err error) {
	result := "ok"
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation):
		result = "invalid"
	case errors.Is(err, domain.ErrStateConflict):
		result = "conflict"
	case errors.Is(err, domain.ErrNotFound):
		result = "not_found"
	default:
		result = "error"
	}
	s.metrics.Transitions.WithLabelValues(string(to), result).Inc()
}
