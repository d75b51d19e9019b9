package domain

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMethodSpecValidation(t *testing.T) {
	tests := []struct {
		name string
		spec MethodSpec
	}{
		{"paypal without email", MethodSpec{Kind: MethodPayPal}},
		{"crypto without wallet", MethodSpec{Kind: MethodCrypto, Exchange: "binance"}},
		{"bank in unsupported country", MethodSpec{Kind: MethodLocalBank, Country: "AR"}},
		{"unknown kind", MethodSpec{Kind: "cheque"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.spec.Method()
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}
}

func TestDecodeMethodKeepsBankDetails(t *testing.T) {
	raw, err := EncodeMethod(LocalBankMethod{
		Country:     CountryVE,
		BankDetails: map[string]string{"bank": "Banesco", "account": "0134"},
	})
	require.NoError(t, err)

	m, err := DecodeMethod(raw)
	require.NoError(t, err)

	bank, ok := m.(LocalBankMethod)
	require.True(t, ok, "expected LocalBankMethod, got %T", m)
	assert.Equal(t, CountryVE, bank.Country)
	assert.Equal(t, "Banesco", bank.BankDetails["bank"])
}

func TestPublisherJSONIncludesMethod(t *testing.T) {
	p := Publisher{ID: "P1", Name: "Ana", PaymentMethod: CryptoMethod{Exchange: "binance", Wallet: "0xabc"}}

	b, err := json.Marshal(p)
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal(b, &out))
	method, ok := out["payment_method"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "crypto", method["kind"])
	assert.Equal(t, "0xabc", method["wallet"])
}
