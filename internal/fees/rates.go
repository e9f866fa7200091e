package fees

import (
	"encoding/json"
	"fmt"
	"math"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Rate is an exchange rate record with the time it was observed.
type Rate struct {
	Rate      float64   `json:"rate" mapstructure:"rate"`
	Timestamp time.Time `json:"timestamp" mapstructure:"timestamp"`
}

// RateTable maps a currency code to its USD conversion rate. A value is either
// a bare number or a record carrying a "rate" field.
type RateTable map[string]any

// NewRateTable copies raw into a RateTable with upper-cased currency codes.
func NewRateTable(raw map[string]any) RateTable {
	t := make(RateTable, len(raw))
	for k, v := range raw {
		t[strings.ToUpper(k)] = v
	}
	return t
}

// USDOnly is the rate table used when every amount is already in USD.
func USDOnly() RateTable {
	return RateTable{"USD": 1.0}
}

// Resolve returns the numeric rate for a currency.
func (t RateTable) Resolve(currency string) (decimal.Decimal, error) {
	v, ok := t[strings.ToUpper(currency)]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrMissingRate, currency)
	}
	switch r := v.(type) {
	case Rate:
		v = r.Rate
	case *Rate:
		if r == nil {
			return decimal.Zero, fmt.Errorf("%w: %s is nil", ErrInvalidRate, currency)
		}
		v = r.Rate
	case map[string]any:
		if inner, ok := r["rate"]; ok {
			v = inner
		}
	case map[any]any:
		if inner, ok := r["rate"]; ok {
			v = inner
		}
	}
	d, ok := numeric(v)
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s has rate %v", ErrInvalidRate, currency, v)
	}
	return d, nil
}

func numeric(v any) (decimal.Decimal, bool) {
	switch n := v.(type) {
	case float64:
		if math.IsNaN(n) || math.IsInf(n, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(n), true
	case float32:
		if f := float64(n); math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(n), true
	case int:
		return decimal.NewFromInt(int64(n)), true
	case int8:
		return decimal.NewFromInt(int64(n)), true
	case int16:
		return decimal.NewFromInt(int64(n)), true
	case int32:
		return decimal.NewFromInt32(n), true
	case int64:
		return decimal.NewFromInt(n), true
	case uint:
		return fromUint64(uint64(n)), true
	case uint8:
		return fromUint64(uint64(n)), true
	case uint16:
		return fromUint64(uint64(n)), true
	case uint32:
		return fromUint64(uint64(n)), true
	case uint64:
		return fromUint64(n), true
	case decimal.Decimal:
		return n, true
	case json.Number:
		d, err := decimal.NewFromString(n.String())
		return d, err == nil
	}
	return decimal.Zero, false
}

func fromUint64(n uint64) decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(n), 0)
}
