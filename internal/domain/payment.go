package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
	PaymentFailed  PaymentStatus = "failed"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentPending, PaymentPaid, PaymentFailed:
		return true
	}
	return false
}

// Terminal reports whether no further transition is allowed.
func (s PaymentStatus) Terminal() bool {
	return s == PaymentPaid || s == PaymentFailed
}

const CurrencyUSD = "USD"

// Payment is the settlement unit owed to one publisher for one period.
// Amount is fixed at creation; only the state machine fields change later.
type Payment struct {
	ID             string              `json:"id"`
	PublisherID    string              `json:"publisher_id"`
	Amount         decimal.Decimal     `json:"amount"`
	Currency       string              `json:"currency"`
	PaymentMethod  PaymentMethod       `json:"-"`
	Status         PaymentStatus       `json:"status"`
	CreatedAt      time.Time           `json:"created_at"`
	PaidAt         *time.Time          `json:"paid_at,omitempty"`
	ExchangeRate   decimal.NullDecimal `json:"exchange_rate"`
	FinalAmount    decimal.NullDecimal `json:"final_amount"`
	FinalCurrency  string              `json:"final_currency,omitempty"`
	Notes          string              `json:"notes"`
	FailureReason  string              `json:"failure_reason,omitempty"`
	PeriodFrom     time.Time           `json:"period_from"`
	PeriodTo       time.Time           `json:"period_to"`
	LeadCount      int                 `json:"lead_count"`
	FraudFlagged   bool                `json:"fraud_flagged"`
	FraudReason    string              `json:"fraud_reason,omitempty"`
	FraudCheckedAt *time.Time          `json:"fraud_checked_at,omitempty"`
}

func (p Payment) MarshalJSON() ([]byte, error) {
	type alias Payment
	return json.Marshal(struct {
		alias
		PaymentMethod MethodSpec `json:"payment_method"`
	}{alias(p), SpecOf(p.PaymentMethod)})
}

// Settlement holds the fields written by a successful confirmation.
type Settlement struct {
	PaidAt        time.Time
	ExchangeRate  decimal.NullDecimal
	FinalAmount   decimal.Decimal
	FinalCurrency string
}

// FraudVerdict is the advisory annotation stored on a payment.
type FraudVerdict struct {
	Flagged   bool
	Reason    string
	CheckedAt time.Time
}
