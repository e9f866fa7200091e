package exchange

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

var (
	// ErrMissingExchange is returned when an exchange has no fee structure in the schedule.
	ErrMissingExchange = errors.New("exchange not found in fee schedule")
	// ErrMissingWithdrawalFee is returned when an exchange has no fiat withdrawal methods for a currency.
	ErrMissingWithdrawalFee = errors.New("withdrawal fee not found")

	errExchangeNameIsEmpty = errors.New("exchange name is empty")
	errDuplicateExchange   = errors.New("duplicate exchange in fee schedule")
	errNegativeFee         = errors.New("fee cannot be negative")
	errNonFiniteFee        = errors.New("fee must be a finite number")
	errNotMapping          = errors.New("withdrawal methods must be a mapping")
)

// FeeStructure holds the fee rates and withdrawal fees for one exchange.
// Rates are fractions, e.g. 0.1% == 0.001.
type FeeStructure struct {
	TradingFeeBuy  float64        `yaml:"trading_fee_buy" json:"trading_fee_buy"`
	TradingFeeSell float64        `yaml:"trading_fee_sell" json:"trading_fee_sell"`
	SpreadFeeBuy   float64        `yaml:"spread_fee_buy" json:"spread_fee_buy"`
	SpreadFeeSell  float64        `yaml:"spread_fee_sell" json:"spread_fee_sell"`
	PaymentFee     float64        `yaml:"payment_fee" json:"payment_fee"`
	WithdrawalFee  WithdrawalFees `yaml:"withdrawal_fee" json:"withdrawal_fee"`
}

// WithdrawalFees splits flat withdrawal fees into crypto and fiat tables.
type WithdrawalFees struct {
	// Crypto maps an asset symbol to a flat fee in units of that asset.
	Crypto map[string]float64 `yaml:"crypto" json:"crypto"`
	// Fiat maps a currency code to its withdrawal methods, each a flat fee in
	// that currency.
	Fiat map[string]MethodFees `yaml:"fiat" json:"fiat"`
}

// MethodFee is a named fiat withdrawal method.
type MethodFee struct {
	Method string  `json:"method"`
	Fee    float64 `json:"fee"`
}

// MethodFees keeps withdrawal methods in the order they are declared.
type MethodFees []MethodFee

// UnmarshalYAML decodes a method -> fee mapping while preserving key order.
func (m *MethodFees) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: %w", node.Line, errNotMapping)
	}
	out := make(MethodFees, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var fee float64
		if err := node.Content[i+1].Decode(&fee); err != nil {
			return fmt.Errorf("method %q: %w", node.Content[i].Value, err)
		}
		out = append(out, MethodFee{Method: node.Content[i].Value, Fee: fee})
	}
	*m = out
	return nil
}

// First returns the first declared withdrawal method.
func (m MethodFees) First() (MethodFee, bool) {
	if len(m) == 0 {
		return MethodFee{}, false
	}
	return m[0], true
}

func checkFee(v float64) error {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return errNonFiniteFee
	case v < 0:
		return errNegativeFee
	}
	return nil
}

func (f FeeStructure) validate() error {
	for name, v := range map[string]float64{
		"trading_fee_buy":  f.TradingFeeBuy,
		"trading_fee_sell": f.TradingFeeSell,
		"spread_fee_buy":   f.SpreadFeeBuy,
		"spread_fee_sell":  f.SpreadFeeSell,
		"payment_fee":      f.PaymentFee,
	} {
		if err := checkFee(v); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	for sym, v := range f.WithdrawalFee.Crypto {
		if err := checkFee(v); err != nil {
			return fmt.Errorf("crypto withdrawal %s: %w", sym, err)
		}
	}
	for cur, methods := range f.WithdrawalFee.Fiat {
		for _, m := range methods {
			if err := checkFee(m.Fee); err != nil {
				return fmt.Errorf("fiat withdrawal %s/%s: %w", cur, m.Method, err)
			}
		}
	}
	return nil
}

// normalise upper-cases currency keys so lookups are case-insensitive.
func (f FeeStructure) normalise() FeeStructure {
	crypto := make(map[string]float64, len(f.WithdrawalFee.Crypto))
	for k, v := range f.WithdrawalFee.Crypto {
		crypto[strings.ToUpper(k)] = v
	}
	fiat := make(map[string]MethodFees, len(f.WithdrawalFee.Fiat))
	for k, v := range f.WithdrawalFee.Fiat {
		fiat[strings.ToUpper(k)] = slices.Clone(v)
	}
	f.WithdrawalFee = WithdrawalFees{Crypto: crypto, Fiat: fiat}
	return f
}

// CryptoFee returns the flat withdrawal fee for an asset, or zero when the
// exchange does not list it.
func (f FeeStructure) CryptoFee(symbol string) float64 {
	return f.WithdrawalFee.Crypto[strings.ToUpper(symbol)]
}

// FiatMethod returns the first declared withdrawal method for a fiat currency.
func (f FeeStructure) FiatMethod(currency string) (MethodFee, error) {
	m, ok := f.WithdrawalFee.Fiat[strings.ToUpper(currency)].First()
	if !ok {
		return MethodFee{}, fmt.Errorf("%w: no fiat withdrawal method for %s", ErrMissingWithdrawalFee, currency)
	}
	return m, nil
}

// Schedule is a read-only table of fee structures keyed by lower-case exchange
// name. It is safe for concurrent use once built.
type Schedule struct {
	fees map[string]FeeStructure
}

// NewSchedule validates the given fee structures and builds a Schedule.
func NewSchedule(fees map[string]FeeStructure) (*Schedule, error) {
	s := &Schedule{fees: make(map[string]FeeStructure, len(fees))}
	for name, f := range fees {
		key := strings.ToLower(strings.TrimSpace(name))
		if key == "" {
			return nil, errExchangeNameIsEmpty
		}
		if _, ok := s.fees[key]; ok {
			return nil, fmt.Errorf("%w: %s", errDuplicateExchange, key)
		}
		if err := f.validate(); err != nil {
			return nil, fmt.Errorf("exchange %s: %w", key, err)
		}
		s.fees[key] = f.normalise()
	}
	return s, nil
}

// Lookup returns the fee structure for an exchange. Names are matched
// case-insensitively.
func (s *Schedule) Lookup(name string) (FeeStructure, error) {
	f, ok := s.fees[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return FeeStructure{}, fmt.Errorf("%w: %s", ErrMissingExchange, name)
	}
	return f, nil
}

// Exchanges returns the sorted exchange names in the schedule.
func (s *Schedule) Exchanges() []string {
	names := make([]string, 0, len(s.fees))
	for k := range s.fees {
		names = append(names, k)
	}
	slices.Sort(names)
	return names
}
