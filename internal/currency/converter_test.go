package currency

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wakala/payouts/internal/domain"
)

func TestFromUSD(t *testing.T) {
	got, err := FromUSD(decimal.NewFromInt(100), decimal.RequireFromString("36.5"))
	require.NoError(t, err)
	assert.True(t, got.Equal(decimal.NewFromInt(3650)), "got %s", got)

	for _, rate := range []string{"0", "-1.5"} {
		_, err := FromUSD(decimal.NewFromInt(100), decimal.RequireFromString(rate))
		assert.True(t, errors.Is(err, domain.ErrValidation), "rate %s", rate)
	}
}

func TestRate(t *testing.T) {
	cfg := domain.RateConfig{
		USDToVES: decimal.NewNullDecimal(decimal.RequireFromString("36.5")),
		USDToCOP: decimal.NewNullDecimal(decimal.Zero),
	}

	rate, ok := Rate(cfg, VES)
	assert.True(t, ok)
	assert.Equal(t, "36.5", rate.String())

	_, ok = Rate(cfg, COP)
	assert.False(t, ok, "zero rate counts as unset")

	_, ok = Rate(domain.RateConfig{}, VES)
	assert.False(t, ok)
}

func TestForCountry(t *testing.T) {
	code, err := ForCountry(domain.CountryCO)
	require.NoError(t, err)
	assert.Equal(t, COP, code)

	_, err = ForCountry("BR")
	assert.True(t, errors.Is(err, domain.ErrValidation))
}
