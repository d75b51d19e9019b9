package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

type MethodKind string

const (
	MethodPayPal    MethodKind = "paypal"
	MethodCrypto    MethodKind = "crypto"
	MethodLocalBank MethodKind = "local_bank"
)

// Country selects the local currency of a bank transfer.
type Country string

const (
	CountryVE Country = "VE"
	CountryCO Country = "CO"
)

// PaymentMethod is one of PayPalMethod, CryptoMethod or LocalBankMethod.
// The unexported marker keeps the set closed so type switches over it are
// exhaustive.
type PaymentMethod interface {
	Kind() MethodKind
	paymentMethod()
}

type PayPalMethod struct {
	Email string
}

type CryptoMethod struct {
	Exchange string
	Wallet   string
}

// LocalBankMethod settles in the local currency of Country. BankDetails are
// carried through untouched.
type LocalBankMethod struct {
	Country     Country
	BankDetails map[string]string
}

func (PayPalMethod) Kind() MethodKind    { return MethodPayPal }
func (CryptoMethod) Kind() MethodKind    { return MethodCrypto }
func (LocalBankMethod) Kind() MethodKind { return MethodLocalBank }

func (PayPalMethod) paymentMethod()    {}
func (CryptoMethod) paymentMethod()    {}
func (LocalBankMethod) paymentMethod() {}

// MethodSpec is the flat JSON form of a PaymentMethod, used on the wire and
// in the database.
type MethodSpec struct {
	Kind        MethodKind        `json:"kind" validate:"required,oneof=paypal crypto local_bank"`
	Email       string            `json:"email,omitempty"`
	Exchange    string            `json:"exchange,omitempty"`
	Wallet      string            `json:"wallet,omitempty"`
	Country     Country           `json:"country,omitempty"`
	BankDetails map[string]string `json:"bank_details,omitempty"`
}

// Method converts the spec into its concrete PaymentMethod.
func (s MethodSpec) Method() (PaymentMethod, error) {
	switch s.Kind {
	case MethodPayPal:
		if strings.TrimSpace(s.Email) == "" {
			return nil, fmt.Errorf("%w: paypal method requires an email", ErrValidation)
		}
		return PayPalMethod{Email: s.Email}, nil
	case MethodCrypto:
		if s.Exchange == "" || s.Wallet == "" {
			return nil, fmt.Errorf("%w: crypto method requires exchange and wallet", ErrValidation)
		}
		return CryptoMethod{Exchange: s.Exchange, Wallet: s.Wallet}, nil
	case MethodLocalBank:
		if s.Country != CountryVE && s.Country != CountryCO {
			return nil, fmt.Errorf("%w: unsupported bank country %q", ErrValidation, s.Country)
		}
		return LocalBankMethod{Country: s.Country, BankDetails: s.BankDetails}, nil
	default:
		return nil, fmt.Errorf("%w: unknown payment method %q", ErrValidation, s.Kind)
	}
}

// SpecOf flattens m. A nil method yields the zero spec.
func SpecOf(m PaymentMethod) MethodSpec {
	switch v := m.(type) {
	case PayPalMethod:
		return MethodSpec{Kind: MethodPayPal, Email: v.Email}
	case CryptoMethod:
		return MethodSpec{Kind: MethodCrypto, Exchange: v.Exchange, Wallet: v.Wallet}
	case LocalBankMethod:
		return MethodSpec{Kind: MethodLocalBank, Country: v.Country, BankDetails: v.BankDetails}
	}
	return MethodSpec{}
}

// EncodeMethod and DecodeMethod move a PaymentMethod in and out of its
// stored JSON column.
func EncodeMethod(m PaymentMethod) (string, error) {
	b, err := json.Marshal(SpecOf(m))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func DecodeMethod(raw string) (PaymentMethod, error) {
	var spec MethodSpec
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("decode payment method: %w", err)
	}
	return spec.Method()
}

// Publisher is the payee settled by the engine.
type Publisher struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Email         string        `json:"email"`
	AvatarURL     string        `json:"avatar_url,omitempty"`
	PaymentMethod PaymentMethod `json:"-"`
	CreatedAt     time.Time     `json:"created_at"`
}

func (p Publisher) MarshalJSON() ([]byte, error) {
	type alias Publisher
	return json.Marshal(struct {
		alias
		PaymentMethod MethodSpec `json:"payment_method"`
	}{alias(p), SpecOf(p.PaymentMethod)})
}

func (p Publisher) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("%w: publisher name is required", ErrValidation)
	}
	if p.PaymentMethod == nil {
		return fmt.Errorf("%w: publisher payment method is required", ErrValidation)
	}
	return nil
}
