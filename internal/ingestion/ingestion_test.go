package ingestion

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/payouts/internal/domain"
	"github.com/wakala/payouts/internal/metrics"
	"github.com/wakala/payouts/internal/repository"
)

func newService(t *testing.T) (*Service, *repository.LeadRepo, *repository.PaymentRepo, *metrics.Metrics) {
	t.Helper()
	db, err := repository.InitDB(filepath.Join(t.TempDir(), "ingest.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	leads := repository.NewLeadRepo(db)
	offers := repository.NewOfferRepo(db)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for id, status := range map[string]domain.OfferStatus{
		"O1": domain.OfferActive,
		"O2": domain.OfferActive,
		"OP": domain.OfferPaused,
		"OR": domain.OfferRemoved,
	} {
		require.NoError(t, offers.Insert(context.Background(), &domain.Offer{
			ID: id, Name: "Offer " + id, Payout: decimal.NewFromInt(2), Status: status, CreatedAt: now, UpdatedAt: now,
		}))
	}

	m := metrics.New()
	return NewService(leads, offers, m), leads, repository.NewPaymentRepo(db), m
}

func TestParseLeadsCSV(t *testing.T) {
	data := []byte("date,publisher_id,offer_id,count\n" +
		"2024-03-01,P1,O1,10\n" +
		"\n" +
		"2024-03-02, P2 ,O1,0\n")

	rows, err := ParseLeadsCSV(data)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, LeadRow{Line: 2, Date: "2024-03-01", PublisherID: "P1", OfferID: "O1", Count: 10}, rows[0])
	assert.Equal(t, "P2", rows[1].PublisherID)
	assert.Equal(t, 4, rows[1].Line)
}

func TestParseLeadsCSVErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad header", "day,publisher,offer,count\n", "column 1"},
		{"short row", "date,publisher_id,offer_id,count\n2024-03-01,P1,O1,1\n2024-03-02,P1\n", "line 3"},
		{"bad count", "date,publisher_id,offer_id,count\n2024-03-01,P1,O1,ten\n", "line 2 count"},
		{"negative count", "date,publisher_id,offer_id,count\n2024-03-01,P1,O1,-1\n", "line 2"},
		{"bad date", "date,publisher_id,offer_id,count\n03/01/2024,P1,O1,1\n", "line 2 date"},
		{"missing publisher", "date,publisher_id,offer_id,count\n2024-03-01,,O1,1\n", "line 2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLeadsCSV([]byte(tt.data))
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestParseLeadsJSON(t *testing.T) {
	rows, err := ParseLeadsJSON([]byte(`[
		{"date":"2024-03-01","publisher_id":"P1","offer_id":"O1","count":3},
		{"date":"2024-03-02T00:00:00Z","publisher_id":"P1","offer_id":"O2","count":0}
	]`))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 3, rows[0].Count)
	assert.Equal(t, 2, rows[1].Line)

	_, err = ParseLeadsJSON([]byte(`[{"date":"2024-03-01","publisher_id":"P1","offer_id":"O1"}]`))
	assert.ErrorContains(t, err, "record 1: count is required")

	_, err = ParseLeadsJSON([]byte(`{"not":"an array"}`))
	assert.True(t, errors.Is(err, domain.ErrValidation))
}

func TestImportLeadsIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc, leads, _, m := newService(t)

	data := []byte("date,publisher_id,offer_id,count\n2024-03-01,P1,O1,10\n2024-03-01,P2,O1,4\n")

	first, err := svc.ImportLeads(ctx, data, "CSV")
	require.NoError(t, err)
	assert.False(t, first.AlreadyImported)
	assert.Equal(t, 2, first.RecordsParsed)
	assert.Equal(t, 2, first.LeadsInserted)
	assert.NotEmpty(t, first.ImportID)

	second, err := svc.ImportLeads(ctx, data, "csv")
	require.NoError(t, err)
	assert.True(t, second.AlreadyImported)
	assert.Zero(t, second.LeadsInserted)

	n, err := leads.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LeadsImported))
}

func TestImportLeadsRejectsBadFileWithoutWriting(t *testing.T) {
	ctx := context.Background()
	svc, leads, _, _ := newService(t)

	_, err := svc.ImportLeads(ctx, []byte("date,publisher_id,offer_id,count\n2024-03-01,P1,O1,x\n"), FormatCSV)
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = svc.ImportLeads(ctx, []byte("[]"), "xml")
	assert.True(t, errors.Is(err, domain.ErrValidation))

	n, err := leads.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSetLeadCountOverwritesOpenLead(t *testing.T) {
	ctx := context.Background()
	svc, _, _, _ := newService(t)
	date := time.Date(2024, 3, 5, 17, 30, 0, 0, time.UTC)

	first, err := svc.SetLeadCount(ctx, LeadInput{PublisherID: "P1", OfferID: "O1", Date: date, Count: 5})
	require.NoError(t, err)
	second, err := svc.SetLeadCount(ctx, LeadInput{PublisherID: "P1", OfferID: "O1", Date: date, Count: 8})
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 8, second.Count)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), second.Date)
}

func TestSetLeadCountOpensNewLeadAfterSettlement(t *testing.T) {
	ctx := context.Background()
	svc, _, payments, _ := newService(t)
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	settled, err := svc.SetLeadCount(ctx, LeadInput{PublisherID: "P1", OfferID: "O1", Date: date, Count: 5})
	require.NoError(t, err)

	require.NoError(t, payments.CreateBatch(ctx, []domain.Payment{{
		ID:            "PAY1",
		PublisherID:   "P1",
		Amount:        decimal.NewFromInt(10),
		Currency:      domain.CurrencyUSD,
		PaymentMethod: domain.PayPalMethod{Email: "p1@example.com"},
		Status:        domain.PaymentPending,
		CreatedAt:     time.Now(),
		PeriodFrom:    date,
		PeriodTo:      date,
		LeadCount:     1,
	}}, []domain.PaymentItem{{
		PaymentID: "PAY1", LeadID: settled.ID, OfferID: "O1", Count: 5,
		Payout: decimal.NewFromInt(2), Subtotal: decimal.NewFromInt(10),
	}}))

	fresh, err := svc.SetLeadCount(ctx, LeadInput{PublisherID: "P1", OfferID: "O1", Date: date, Count: 3})
	require.NoError(t, err)
	assert.NotEqual(t, settled.ID, fresh.ID)

	all, total, err := svc.ListLeads(ctx, repository.LeadFilter{PublisherID: "P1"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, all, 2)
}

func TestSetLeadCountValidation(t *testing.T) {
	svc, _, _, _ := newService(t)
	ctx := context.Background()

	for _, in := range []LeadInput{
		{OfferID: "O1", Date: time.Now(), Count: 1},
		{PublisherID: "P1", OfferID: "O1", Count: 1},
		{PublisherID: "P1", OfferID: "O1", Date: time.Now(), Count: -2},
	} {
		_, err := svc.SetLeadCount(ctx, in)
		assert.True(t, errors.Is(err, domain.ErrValidation), "%+v", in)
	}
}

func TestSetLeadCountRequiresActiveOffer(t *testing.T) {
	ctx := context.Background()
	svc, leads, _, _ := newService(t)
	date := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)

	for _, offerID := range []string{"OP", "OR", "MISSING"} {
		t.Run(offerID, func(t *testing.T) {
			_, err := svc.SetLeadCount(ctx, LeadInput{PublisherID: "P1", OfferID: offerID, Date: date, Count: 3})
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
			assert.Contains(t, err.Error(), offerID)
		})
	}

	n, err := leads.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestImportLeadsRequiresActiveOffers(t *testing.T) {
	ctx := context.Background()
	svc, leads, _, m := newService(t)

	tests := []struct {
		name string
		data string
		want string
	}{
		{"paused offer", "date,publisher_id,offer_id,count\n2024-03-01,P1,O1,10\n2024-03-01,P1,OP,4\n", "OP is paused"},
		{"unknown offer", "date,publisher_id,offer_id,count\n2024-03-01,P1,O1,10\n2024-03-02,P2,NOPE,1\n", "unknown offer NOPE"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ImportLeads(ctx, []byte(tt.data), FormatCSV)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrValidation), "got %v", err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	n, err := leads.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, testutil.ToFloat64(m.LeadsImported))

	// A rejected file is not remembered, so a corrected retry goes through.
	res, err := svc.ImportLeads(ctx, []byte(`[{"date":"2024-03-01","publisher_id":"P1","offer_id":"O2","count":6}]`), FormatJSON)
	require.NoError(t, err)
	assert.Equal(t, 1, res.LeadsInserted)
}
