package arbitrage

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"arbfee/internal/config"
	"arbfee/internal/fees"
	"arbfee/internal/model"
)

// USDColumnSuffix tags a column as a USD price for the exchange named before it.
const USDColumnSuffix = "_USD"

var (
	// ErrNoPriceColumns is returned for rows without any usable USD price column.
	ErrNoPriceColumns = errors.New("row has no USD price columns")
	// ErrInvalidPrice is returned when a USD price cell is not a number.
	ErrInvalidPrice = errors.New("invalid price")
	// ErrZeroPrice is returned when the lowest price is zero and the spread
	// percentage is undefined.
	ErrZeroPrice = errors.New("lowest price is zero")
)

var (
	hundred  = decimal.NewFromInt(100)
	unitSize = decimal.NewFromInt(1)
)

type quote struct {
	exchange string
	price    decimal.Decimal
}

// Scanner finds the widest cross-exchange spread in a price row and prices it
// net of fees for one unit of the configured crypto asset.
type Scanner struct {
	logger             *slog.Logger
	calc               *fees.Calculator
	crypto             string
	withdrawalCurrency string
	rates              fees.RateTable
}

// NewScanner creates a Scanner. Empty settings fall back to BTC, USD
// withdrawals and a USD-only rate table.
func NewScanner(logger *slog.Logger, calc *fees.Calculator, cfg config.ScanConfig) *Scanner {
	s := &Scanner{
		logger:             logger,
		calc:               calc,
		crypto:             cfg.Crypto,
		withdrawalCurrency: cfg.WithdrawalCurrency,
		rates:              fees.NewRateTable(cfg.Rates),
	}
	if s.crypto == "" {
		s.crypto = "BTC"
	}
	if s.withdrawalCurrency == "" {
		s.withdrawalCurrency = "USD"
	}
	if len(s.rates) == 0 {
		s.rates = fees.USDOnly()
	}
	return s
}

// Scan prices the buy-lowest / sell-highest pair of row.
func (s *Scanner) Scan(row model.PriceRow) (model.ScanResult, error) {
	quotes, err := usdQuotes(row)
	if err != nil {
		return model.ScanResult{}, err
	}
	low, high := minMax(quotes)
	if low.price.IsZero() {
		return model.ScanResult{}, fmt.Errorf("%w: %s", ErrZeroPrice, low.exchange)
	}
	pct := high.price.Sub(low.price).Div(low.price).Mul(hundred)

	b, err := s.calc.Calculate(model.Trade{
		BuyExchange:        low.exchange,
		SellExchange:       high.exchange,
		Crypto:             s.crypto,
		Amount:             unitSize,
		BuyPrice:           low.price,
		SellPrice:          high.price,
		WithdrawalCurrency: s.withdrawalCurrency,
	}, s.rates)
	if err != nil {
		return model.ScanResult{}, err
	}

	strategy := NoProfitableArbitrage
	if b.ArbitrageAfterFees.IsPositive() {
		strategy = FormatStrategy(low.exchange, high.exchange)
		s.logger.Debug("Profitable arbitrage opportunity found",
			"buyExchange", low.exchange,
			"sellExchange", high.exchange,
			"buyPrice", low.price,
			"sellPrice", high.price,
			"netProfit", b.ArbitrageAfterFees,
		)
	}
	return model.ScanResult{
		Strategy:           strategy,
		ArbitragePct:       pct,
		TotalFees:          b.TotalFees,
		ArbitrageAfterFees: b.ArbitrageAfterFees,
		BuyExchange:        low.exchange,
		BuyPrice:           low.price,
		SellExchange:       high.exchange,
		SellPrice:          high.price,
	}, nil
}

// usdQuotes returns the USD prices of row in column order. Blank and NaN cells
// are skipped.
func usdQuotes(row model.PriceRow) ([]quote, error) {
	var quotes []quote
	for _, c := range row {
		if !strings.HasSuffix(c.Column, USDColumnSuffix) {
			continue
		}
		v := strings.TrimSpace(c.Value)
		if v == "" || strings.EqualFold(v, "nan") {
			continue
		}
		price, err := decimal.NewFromString(v)
		if err != nil {
			return nil, fmt.Errorf("%w: column %s: %q", ErrInvalidPrice, c.Column, c.Value)
		}
		name, _, _ := strings.Cut(c.Column, USDColumnSuffix)
		quotes = append(quotes, quote{exchange: name, price: price})
	}
	if len(quotes) == 0 {
		return nil, ErrNoPriceColumns
	}
	return quotes, nil
}

// minMax returns the lowest and highest quotes; the first occurrence wins ties.
func minMax(quotes []quote) (low, high quote) {
	low, high = quotes[0], quotes[0]
	for _, q := range quotes[1:] {
		if q.price.LessThan(low.price) {
			low = q
		}
		if q.price.GreaterThan(high.price) {
			high = q
		}
	}
	return low, high
}
