package currency

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/wakala/payouts/internal/domain"
)

const (
	VES = "VES" // Venezuelan bolivar
	COP = "COP" // Colombian peso
)

// countryCurrency maps a bank transfer country to the currency it settles in.
var countryCurrency = map[domain.Country]string{
	domain.CountryVE: VES,
	domain.CountryCO: COP,
}

// ForCountry returns the local currency a bank transfer in country pays out.
func ForCountry(country domain.Country) (string, error) {
	code, ok := countryCurrency[country]
	if !ok {
		return "", fmt.Errorf("%w: unsupported country: %s", domain.ErrValidation, country)
	}
	return code, nil
}

// Rate returns the configured USD rate for a local currency. The second
// return is false when no positive rate is configured.
func Rate(cfg domain.RateConfig, code string) (decimal.Decimal, bool) {
	var rate decimal.NullDecimal
	switch code {
	case VES:
		rate = cfg.USDToVES
	case COP:
		rate = cfg.USDToCOP
	default:
		return decimal.Zero, false
	}
	if !rate.Valid || !rate.Decimal.IsPositive() {
		return decimal.Zero, false
	}
	return rate.Decimal, true
}

// FromUSD converts a USD amount to local currency at rate units per USD.
func FromUSD(usdAmount, rate decimal.Decimal) (decimal.Decimal, error) {
	if !rate.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: exchange rate must be positive, got %s", domain.ErrValidation, rate)
	}
	return usdAmount.Mul(rate), nil
}
