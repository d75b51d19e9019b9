package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentItem records one lead folded into a payment together with the
// payout it was priced at.
type PaymentItem struct {
	PaymentID string          `json:"payment_id"`
	LeadID    string          `json:"lead_id"`
	OfferID   string          `json:"offer_id"`
	Count     int             `json:"count"`
	Payout    decimal.Decimal `json:"payout"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

// LeadImport is the record of an ingested lead file, keyed by its hash.
type LeadImport struct {
	ID          string    `json:"id"`
	Format      string    `json:"format"`
	FileHash    string    `json:"file_hash"`
	RecordCount int       `json:"record_count"`
	ImportedAt  time.Time `json:"imported_at"`
}
