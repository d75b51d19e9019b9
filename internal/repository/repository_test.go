package repository

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/payouts/internal/domain"
)

func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func day(s string) time.Time {
	t, _ := time.Parse(domain.DateLayout, s)
	return t
}

func seedLead(t *testing.T, repo *LeadRepo, id, pub, offer, date string, count int) {
	t.Helper()
	require.NoError(t, repo.Upsert(context.Background(), &domain.Lead{
		ID: id, PublisherID: pub, OfferID: offer, Date: day(date), Count: count, CreatedAt: time.Now(),
	}))
}

func pendingPayment(id, pub string) domain.Payment {
	return domain.Payment{
		ID:            id,
		PublisherID:   pub,
		Amount:        decimal.RequireFromString("35.00"),
		Currency:      domain.CurrencyUSD,
		PaymentMethod: domain.PayPalMethod{Email: pub + "@example.com"},
		Status:        domain.PaymentPending,
		CreatedAt:     time.Now(),
		PeriodFrom:    day("2024-03-01"),
		PeriodTo:      day("2024-03-31"),
		LeadCount:     1,
	}
}

func TestLeadRepoListInRangeIsInclusive(t *testing.T) {
	ctx := context.Background()
	leads := NewLeadRepo(newTestDB(t))

	seedLead(t, leads, "L0", "P1", "O1", "2024-02-29", 1)
	seedLead(t, leads, "L1", "P1", "O1", "2024-03-01", 1)
	seedLead(t, leads, "L2", "P1", "O1", "2024-03-31", 1)
	seedLead(t, leads, "L3", "P1", "O1", "2024-04-01", 1)

	got, err := leads.ListInRange(ctx, day("2024-03-01"), day("2024-03-31"), false)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "L1", got[0].ID)
	assert.Equal(t, "L2", got[1].ID)
}

func TestPaymentRepoCreateBatchMarksLeads(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	leads := NewLeadRepo(db)
	payments := NewPaymentRepo(db)

	seedLead(t, leads, "L1", "P1", "O1", "2024-03-05", 10)
	seedLead(t, leads, "L2", "P2", "O1", "2024-03-05", 4)

	items := []domain.PaymentItem{{
		PaymentID: "PAY1", LeadID: "L1", OfferID: "O1", Count: 10,
		Payout: decimal.RequireFromString("3.5"), Subtotal: decimal.RequireFromString("35"),
	}}
	require.NoError(t, payments.CreateBatch(ctx, []domain.Payment{pendingPayment("PAY1", "P1")}, items))

	open, err := leads.ListInRange(ctx, day("2024-03-01"), day("2024-03-31"), true)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, "L2", open[0].ID)

	stored, err := payments.Items(ctx, "PAY1")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Subtotal.Equal(decimal.NewFromInt(35)))

	// A settled lead can no longer be edited.
	err = leads.Upsert(ctx, &domain.Lead{ID: "L1", PublisherID: "P1", OfferID: "O1", Date: day("2024-03-05"), Count: 99})
	assert.True(t, errors.Is(err, domain.ErrStateConflict))
}

func TestPaymentRepoTransitionsAreConditional(t *testing.T) {
	ctx := context.Background()
	payments := NewPaymentRepo(newTestDB(t))
	require.NoError(t, payments.CreateBatch(ctx, []domain.Payment{pendingPayment("PAY1", "P1")}, nil))

	paidAt := time.Date(2024, 4, 2, 15, 0, 0, 0, time.UTC)
	require.NoError(t, payments.MarkPaid(ctx, "PAY1", domain.Settlement{
		PaidAt:        paidAt,
		FinalAmount:   decimal.RequireFromString("35.00"),
		FinalCurrency: domain.CurrencyUSD,
	}))

	err := payments.MarkFailed(ctx, "PAY1", "bounced")
	assert.True(t, errors.Is(err, domain.ErrStateConflict), "got %v", err)

	err = payments.MarkPaid(ctx, "missing", domain.Settlement{PaidAt: paidAt})
	assert.True(t, errors.Is(err, domain.ErrNotFound), "got %v", err)

	p, err := payments.GetByID(ctx, "PAY1")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentPaid, p.Status)
	require.NotNil(t, p.PaidAt)
	assert.True(t, p.PaidAt.Equal(paidAt))
	assert.False(t, p.ExchangeRate.Valid)
	assert.Empty(t, p.FailureReason)
	_, isPayPal := p.PaymentMethod.(domain.PayPalMethod)
	assert.True(t, isPayPal)
}

func TestPaymentRepoDeleteReleasesLeads(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	leads := NewLeadRepo(db)
	payments := NewPaymentRepo(db)

	seedLead(t, leads, "L1", "P1", "O1", "2024-03-05", 10)
	items := []domain.PaymentItem{{PaymentID: "PAY1", LeadID: "L1", OfferID: "O1", Count: 10}}
	require.NoError(t, payments.CreateBatch(ctx, []domain.Payment{pendingPayment("PAY1", "P1")}, items))

	require.NoError(t, payments.Delete(ctx, "PAY1"))

	_, err := payments.GetByID(ctx, "PAY1")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	open, err := leads.ListInRange(ctx, day("2024-03-01"), day("2024-03-31"), true)
	require.NoError(t, err)
	assert.Len(t, open, 1)

	assert.True(t, errors.Is(payments.Delete(ctx, "PAY1"), domain.ErrNotFound))
}

func TestPaymentRepoStats(t *testing.T) {
	ctx := context.Background()
	payments := NewPaymentRepo(newTestDB(t))

	a := pendingPayment("PAY1", "P1")
	b := pendingPayment("PAY2", "P2")
	b.Amount = decimal.RequireFromString("100.10")
	b.FraudFlagged = true
	require.NoError(t, payments.CreateBatch(ctx, []domain.Payment{a, b}, nil))

	stats, top, err := payments.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Flagged)
	assert.Equal(t, "135.1", stats.TotalAmount.String())
	require.Len(t, top, 2)
	assert.Equal(t, "P2", top[0].PublisherID)
}

func TestRateRepoRoundTrip(t *testing.T) {
	ctx := context.Background()
	rates := NewRateRepo(newTestDB(t))

	cfg, err := rates.GetRates(ctx)
	require.NoError(t, err)
	assert.False(t, cfg.USDToVES.Valid)
	assert.False(t, cfg.USDToCOP.Valid)

	require.NoError(t, rates.SaveRates(ctx, domain.RateConfig{
		USDToVES:  decimal.NewNullDecimal(decimal.RequireFromString("36.5")),
		UpdatedAt: time.Now(),
	}))
	cfg, err = rates.GetRates(ctx)
	require.NoError(t, err)
	assert.Equal(t, "36.5", cfg.USDToVES.Decimal.String())
	assert.False(t, cfg.USDToCOP.Valid)
}

func TestPublisherRepoResolvesMethods(t *testing.T) {
	ctx := context.Background()
	pubs := NewPublisherRepo(newTestDB(t))

	require.NoError(t, pubs.Insert(ctx, &domain.Publisher{
		ID: "P1", Name: "Ana", Email: "ana@example.com", CreatedAt: time.Now(),
		PaymentMethod: domain.LocalBankMethod{Country: domain.CountryCO},
	}))

	got, err := pubs.PublishersByID(ctx, []string{"P1", "ghost"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	bank, ok := got["P1"].PaymentMethod.(domain.LocalBankMethod)
	require.True(t, ok)
	assert.Equal(t, domain.CountryCO, bank.Country)
}
