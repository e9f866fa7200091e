package arbitrage

import (
	"errors"
	"fmt"
	"strings"
)

// NoProfitableArbitrage is the strategy label for rows with no profit after fees.
const NoProfitableArbitrage = "No profitable arbitrage"

const (
	buyPrefix  = "BUY@"
	sellPrefix = "SELL@"
	legArrow   = "->"
)

// ErrStrategyFormat is wrapped by every StrategyFormatError.
var ErrStrategyFormat = errors.New("invalid strategy format")

// StrategyFormatError reports the part of a strategy label that could not be parsed.
type StrategyFormatError struct {
	Strategy string
	Part     string
	Expected string
}

func (e *StrategyFormatError) Error() string {
	return fmt.Sprintf("failed to parse strategy %q: invalid part %q, expected %s", e.Strategy, e.Part, e.Expected)
}

func (e *StrategyFormatError) Unwrap() error {
	return ErrStrategyFormat
}

// FormatStrategy builds the label for buying on one exchange and selling on another.
func FormatStrategy(buyExchange, sellExchange string) string {
	return buyPrefix + buyExchange + legArrow + sellPrefix + sellExchange
}

// ParseStrategy extracts the exchanges from a BUY@X->SELL@Y label. The
// NoProfitableArbitrage label yields ok == false and no error. Exchange names
// are not checked against the fee schedule.
func ParseStrategy(strategy string) (buyExchange, sellExchange string, ok bool, err error) {
	if strategy == NoProfitableArbitrage {
		return "", "", false, nil
	}
	parts := strings.Split(strategy, legArrow)
	if len(parts) != 2 {
		return "", "", false, &StrategyFormatError{Strategy: strategy, Part: strategy, Expected: "'BUY@EXCHANGE1->SELL@EXCHANGE2'"}
	}

	buyPart := strings.TrimSpace(parts[0])
	buyExchange, found := strings.CutPrefix(buyPart, buyPrefix)
	if !found {
		return "", "", false, &StrategyFormatError{Strategy: strategy, Part: buyPart, Expected: "'BUY@EXCHANGE'"}
	}
	sellPart := strings.TrimSpace(parts[1])
	sellExchange, found = strings.CutPrefix(sellPart, sellPrefix)
	if !found {
		return "", "", false, &StrategyFormatError{Strategy: strategy, Part: sellPart, Expected: "'SELL@EXCHANGE'"}
	}
	return buyExchange, sellExchange, true, nil
}
