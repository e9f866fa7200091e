package arbitrage

import (
	"github.com/shopspring/decimal"

	"arbfee/internal/fees"
	"arbfee/internal/metrics"
	"arbfee/internal/model"
)

// Simulator replays a strategy label against new prices.
type Simulator struct {
	calc *fees.Calculator
}

// NewSimulator creates a Simulator.
func NewSimulator(calc *fees.Calculator) *Simulator {
	return &Simulator{calc: calc}
}

// Simulate returns the arbitrage after fees of buying one BTC at buyPrice and
// selling at sellPrice on the exchanges named by strategy, withdrawing USD. The
// NoProfitableArbitrage label scores zero.
func (s *Simulator) Simulate(strategy string, buyPrice, sellPrice decimal.Decimal) (decimal.Decimal, error) {
	buy, sell, ok, err := ParseStrategy(strategy)
	if err != nil {
		return decimal.Zero, err
	}
	if !ok {
		return decimal.Zero, nil
	}
	metrics.SimulationsTotal.Inc()

	b, err := s.calc.Calculate(model.Trade{
		BuyExchange:        buy,
		SellExchange:       sell,
		Crypto:             "BTC",
		Amount:             unitSize,
		BuyPrice:           buyPrice,
		SellPrice:          sellPrice,
		WithdrawalCurrency: "USD",
	}, fees.USDOnly())
	if err != nil {
		return decimal.Zero, err
	}
	return b.ArbitrageAfterFees, nil
}
