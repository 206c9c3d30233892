package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Money is an amount in the smallest currency unit (cents) with an ISO 4217 code
type Money struct {
	amount   int64
	currency string
}

var (
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNegativeMoney    = errors.New("money amount cannot be negative")
	ErrDivisionByZero   = errors.New("division by zero")
)

// NewMoney creates a Money value; amount is in minor units
func NewMoney(amount int64, currency string) (Money, error) {
	if amount < 0 {
		return Money{}, ErrNegativeMoney
	}
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	return Money{amount: amount, currency: currency}, nil
}

// MustMoney is NewMoney for literals known to be valid
func MustMoney(amount int64, currency string) Money {
	m, err := NewMoney(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// ZeroMoney creates a zero money value
func ZeroMoney(currency string) Money {
	return Money{currency: currency}
}

// Amount returns the amount in minor units
func (m Money) Amount() int64 { return m.amount }

// Currency returns the ISO 4217 currency code
func (m Money) Currency() string { return m.currency }

// IsZero returns true if the amount is zero
func (m Money) IsZero() bool { return m.amount == 0 }

// Add adds two money values of the same currency
func (m Money) Add(other Money) (Money, error) {
	if m.currency != other.currency {
		return Money{}, ErrCurrencyMismatch
	}
	return Money{amount: m.amount + other.amount, currency: m.currency}, nil
}

// Multiply multiplies the amount by a whole quantity
func (m Money) Multiply(qty int) Money {
	return Money{amount: m.amount * int64(qty), currency: m.currency}
}

// MultiplyQuantity scales the amount by a fractional quantity, rounding half
// away from zero to the minor unit
func (m Money) MultiplyQuantity(qty float64) Money {
	return Money{amount: int64(math.Round(float64(m.amount) * qty)), currency: m.currency}
}

// DivideBy divides the amount by n, rounding to the nearest minor unit
func (m Money) DivideBy(n int) (Money, error) {
	if n <= 0 {
		return Money{}, ErrDivisionByZero
	}
	return Money{amount: int64(math.Round(float64(m.amount) / float64(n))), currency: m.currency}, nil
}

// Equals checks if two money values are equal (amount and currency)
func (m Money) Equals(other Money) bool {
	return m.amount == other.amount && m.currency == other.currency
}

// String formats the amount with two decimals
func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", float64(m.amount)/100.0, m.currency)
}

type moneyJSON struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// MarshalJSON implements json.Marshaler
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(moneyJSON{Amount: m.amount, Currency: m.currency})
}

// UnmarshalJSON implements json.Unmarshaler
func (m *Money) UnmarshalJSON(data []byte) error {
	var v moneyJSON
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	m.amount, m.currency = v.Amount, v.Currency
	return nil
}

// MarshalBSONValue implements bson.ValueMarshaler
func (m Money) MarshalBSONValue() (bsontype.Type, []byte, error) {
	return bson.MarshalValue(primitive.D{
		{Key: "amount", Value: m.amount},
		{Key: "currency", Value: m.currency},
	})
}

// UnmarshalBSONValue implements bson.ValueUnmarshaler
func (m *Money) UnmarshalBSONValue(t bsontype.Type, data []byte) error {
	var doc struct {
		Amount   int64  `bson:"amount"`
		Currency string `bson:"currency"`
	}
	if err := bson.UnmarshalValue(t, data, &doc); err != nil {
		return err
	}
	m.amount, m.currency = doc.Amount, doc.Currency
	return nil
}
