package orders

import (
	"fmt"
	"math"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Money is a decimal amount in major currency units (baht). It is stored as a
// DynamoDB number and rendered as a bare JSON number.
type Money struct {
	decimal.Decimal
}

// MustMoney parses a decimal string and panics on malformed input. Meant for
// constants and tests.
func MustMoney(s string) Money { return Money{Decimal: decimal.RequireFromString(s)} }

// ParseMoney parses a non-negative decimal amount such as "49.50".
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, fmt.Errorf("parse money %q: %w", s, err)
	}
	if d.IsNegative() {
		return Money{}, fmt.Errorf("parse money %q: negative amount", s)
	}
	return Money{Decimal: d}, nil
}

var (
	maxMinor = decimal.NewFromInt(math.MaxInt64)
	minMinor = decimal.NewFromInt(math.MinInt64)
)

// MinorUnits rounds the amount to satang (1/100), half away from zero. ok is
// false when the result does not fit in an int64.
func (m Money) MinorUnits() (minor int64, ok bool) {
	d := m.Decimal.Mul(hundred).Round(0)
	if d.Cmp(maxMinor) > 0 || d.Cmp(minMinor) < 0 {
		return 0, false
	}
	return d.IntPart(), true
}

// MoneyFromMinor converts a gateway amount in minor units back to major units.
func MoneyFromMinor(minor int64) Money {
	return Money{Decimal: decimal.New(minor, -2)}
}

// Mul multiplies by an integer quantity.
func (m Money) Mul(qty int) Money {
	return Money{Decimal: m.Decimal.Mul(decimal.NewFromInt(int64(qty)))}
}

// Add returns m + o.
func (m Money) Add(o Money) Money {
	return Money{Decimal: m.Decimal.Add(o.Decimal)}
}

// Equal reports numeric equality regardless of exponent.
func (m Money) Equal(o Money) bool { return m.Decimal.Equal(o.Decimal) }

func (m Money) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	return &types.AttributeValueMemberN{Value: m.Decimal.String()}, nil
}

func (m *Money) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	switch v := av.(type) {
	case *types.AttributeValueMemberN:
		d, err := decimal.NewFromString(v.Value)
		if err != nil {
			return fmt.Errorf("decode money %q: %w", v.Value, err)
		}
		m.Decimal = d
		return nil
	case *types.AttributeValueMemberNULL:
		m.Decimal = decimal.Zero
		return nil
	default:
		return fmt.Errorf("decode money: unexpected attribute type %T", av)
	}
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal.String()), nil
}

func (m *Money) UnmarshalJSON(b []byte) error {
	return m.Decimal.UnmarshalJSON(b)
}
