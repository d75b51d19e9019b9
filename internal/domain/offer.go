package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OfferStatus string

const (
	OfferActive  OfferStatus = "active"
	OfferPaused  OfferStatus = "paused"
	OfferRemoved OfferStatus = "removed"
)

func (s OfferStatus) Valid() bool {
	switch s {
	case OfferActive, OfferPaused, OfferRemoved:
		return true
	}
	return false
}

// Offer is a catalog entry paying a fixed USD amount per lead.
type Offer struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Payout    decimal.Decimal `json:"payout"`
	Status    OfferStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (o Offer) Validate() error {
	if strings.TrimSpace(o.Name) == "" {
		return fmt.Errorf("%w: offer name is required", ErrValidation)
	}
	if o.Payout.IsNegative() {
		return fmt.Errorf("%w: payout must not be negative", ErrValidation)
	}
	if !o.Status.Valid() {
		return fmt.Errorf("%w: unknown offer status %q", ErrValidation, o.Status)
	}
	return nil
}
