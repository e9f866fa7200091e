package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Trade describes one buy leg and one sell leg of an arbitrage round trip.
type Trade struct {
	BuyExchange        string
	SellExchange       string
	Crypto             string
	Amount             decimal.Decimal
	BuyPrice           decimal.Decimal
	SellPrice          decimal.Decimal
	WithdrawalCurrency string
}

// FeeBreakdown is the result of a fee calculation. All values are USD-equivalent.
type FeeBreakdown struct {
	TradingFeeBuy      decimal.Decimal `json:"trading_fee_buy"`
	PaymentFee         decimal.Decimal `json:"payment_fee"`
	TradingFeeSell     decimal.Decimal `json:"trading_fee_sell"`
	WithdrawalFee      decimal.Decimal `json:"withdrawal_fee"`
	TotalFees          decimal.Decimal `json:"total_fees"`
	PriceArbitrage     decimal.Decimal `json:"price_arbitrage"`
	ArbitrageAfterFees decimal.Decimal `json:"arbitrage_after_fees"`
}

// BreakdownLine is a single labelled value of a FeeBreakdown.
type BreakdownLine struct {
	Name  string
	Value decimal.Decimal
}

// Lines returns the breakdown values in display order.
func (f FeeBreakdown) Lines() []BreakdownLine {
	return []BreakdownLine{
		{Name: "trading_fee_buy", Value: f.TradingFeeBuy},
		{Name: "payment_fee", Value: f.PaymentFee},
		{Name: "trading_fee_sell", Value: f.TradingFeeSell},
		{Name: "withdrawal_fee", Value: f.WithdrawalFee},
		{Name: "total_fees", Value: f.TotalFees},
		{Name: "price_arbitrage", Value: f.PriceArbitrage},
		{Name: "arbitrage_after_fees", Value: f.ArbitrageAfterFees},
	}
}

// Cell is one column of a price snapshot.
type Cell struct {
	Column string `json:"column"`
	Value  string `json:"value"`
}

// PriceRow is a single price snapshot. Cells keep the column order of the source.
type PriceRow []Cell

// ScanResult is the outcome of scanning one PriceRow.
type ScanResult struct {
	Strategy           string          `json:"strategy"`
	ArbitragePct       decimal.Decimal `json:"arbitrage_pct"`
	TotalFees          decimal.Decimal `json:"total_fees"`
	ArbitrageAfterFees decimal.Decimal `json:"arbitrage_after_fees"`
	BuyExchange        string          `json:"buy_exchange"`
	BuyPrice           decimal.Decimal `json:"buy_price"`
	SellExchange       string          `json:"sell_exchange"`
	SellPrice          decimal.Decimal `json:"sell_price"`
}

// Profitable reports whether the scanned pair is profitable after fees.
func (r ScanResult) Profitable() bool {
	return r.ArbitrageAfterFees.IsPositive()
}

// ScanRecord ties a ScanResult to its row in a batch run.
type ScanRecord struct {
	ID        int64     `db:"id"`
	RunID     string    `db:"run_id"`
	Row       int       `db:"row_index"`
	ScannedAt time.Time `db:"scanned_at"`
	Result    ScanResult
}
