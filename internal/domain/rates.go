package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateConfig is the process-wide table of USD to local currency rates.
// It keeps no history.
type RateConfig struct {
	USDToVES  decimal.NullDecimal `json:"usd_to_ves_rate"`
	USDToCOP  decimal.NullDecimal `json:"usd_to_cop_rate"`
	UpdatedAt time.Time           `json:"updated_at"`
}
