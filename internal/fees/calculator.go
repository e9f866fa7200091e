package fees

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"arbfee/internal/exchange"
	"arbfee/internal/metrics"
	"arbfee/internal/model"
)

var (
	// ErrMissingExchange is returned when a trade leg names an exchange that is
	// absent from the fee schedule.
	ErrMissingExchange = exchange.ErrMissingExchange
	// ErrMissingWithdrawalFee is returned when the sell exchange has no fiat
	// withdrawal method for the withdrawal currency.
	ErrMissingWithdrawalFee = exchange.ErrMissingWithdrawalFee
	// ErrMissingRate is returned when a fiat withdrawal needs a rate that is
	// not in the rate table.
	ErrMissingRate = errors.New("exchange rate not found")
	// ErrInvalidRate is returned when a resolved rate is not numeric.
	ErrInvalidRate = errors.New("exchange rate is not a valid number")
	// ErrInvalidAmount is returned for trades with a non-positive amount.
	ErrInvalidAmount = errors.New("crypto amount must be positive")
)

// Calculator computes the fees of a buy/sell round trip against a fixed fee
// schedule. It holds no mutable state and is safe for concurrent use.
type Calculator struct {
	schedule *exchange.Schedule
}

// NewCalculator creates a Calculator bound to schedule.
func NewCalculator(schedule *exchange.Schedule) *Calculator {
	return &Calculator{schedule: schedule}
}

// Schedule returns the fee schedule the calculator reads from.
func (c *Calculator) Schedule() *exchange.Schedule {
	return c.schedule
}

// Calculate returns the fee breakdown for trade. Payment and spread fees are
// reported or held in the schedule but are not part of TotalFees.
func (c *Calculator) Calculate(trade model.Trade, rates RateTable) (model.FeeBreakdown, error) {
	metrics.FeeCalculationsTotal.Inc()
	b, err := c.calculate(trade, rates)
	if err != nil {
		metrics.FeeCalculationErrors.WithLabelValues(reason(err)).Inc()
		return model.FeeBreakdown{}, err
	}
	return b, nil
}

func (c *Calculator) calculate(trade model.Trade, rates RateTable) (model.FeeBreakdown, error) {
	if !trade.Amount.IsPositive() {
		return model.FeeBreakdown{}, fmt.Errorf("%w: %s", ErrInvalidAmount, trade.Amount)
	}
	buy, err := c.schedule.Lookup(trade.BuyExchange)
	if err != nil {
		return model.FeeBreakdown{}, fmt.Errorf("buy leg: %w", err)
	}
	sell, err := c.schedule.Lookup(trade.SellExchange)
	if err != nil {
		return model.FeeBreakdown{}, fmt.Errorf("sell leg: %w", err)
	}

	buyNotional := trade.Amount.Mul(trade.BuyPrice)
	sellNotional := trade.Amount.Mul(trade.SellPrice)

	tradingFeeBuy := buyNotional.Mul(decimal.NewFromFloat(buy.TradingFeeBuy))
	paymentFee := buyNotional.Mul(decimal.NewFromFloat(buy.PaymentFee))
	tradingFeeSell := sellNotional.Mul(decimal.NewFromFloat(sell.TradingFeeSell))

	withdrawalFee, err := withdrawalFee(sell, trade, rates)
	if err != nil {
		return model.FeeBreakdown{}, fmt.Errorf("withdrawal from %s: %w", trade.SellExchange, err)
	}

	total := tradingFeeBuy.Add(tradingFeeSell).Add(withdrawalFee)
	priceArbitrage := trade.SellPrice.Sub(trade.BuyPrice)
	return model.FeeBreakdown{
		TradingFeeBuy:      tradingFeeBuy,
		PaymentFee:         paymentFee,
		TradingFeeSell:     tradingFeeSell,
		WithdrawalFee:      withdrawalFee,
		TotalFees:          total,
		PriceArbitrage:     priceArbitrage,
		ArbitrageAfterFees: priceArbitrage.Sub(total),
	}, nil
}

// withdrawalFee values the sell exchange's withdrawal fee in USD. Crypto fees
// are priced at the sell price; fiat fees use the first declared method and
// the currency's rate.
func withdrawalFee(sell exchange.FeeStructure, trade model.Trade, rates RateTable) (decimal.Decimal, error) {
	if strings.EqualFold(trade.WithdrawalCurrency, trade.Crypto) {
		return decimal.NewFromFloat(sell.CryptoFee(trade.WithdrawalCurrency)).Mul(trade.SellPrice), nil
	}
	method, err := sell.FiatMethod(trade.WithdrawalCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	rate, err := rates.Resolve(trade.WithdrawalCurrency)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(method.Fee).Mul(rate), nil
}

func reason(err error) string {
	switch {
	case errors.Is(err, ErrMissingExchange):
		return "missing_exchange"
	case errors.Is(err, ErrMissingRate):
		return "missing_rate"
	case errors.Is(err, ErrInvalidRate):
		return "invalid_rate"
	case errors.Is(err, ErrMissingWithdrawalFee):
		return "missing_withdrawal_fee"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	default:
		return "other"
	}
}
