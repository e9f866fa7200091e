package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"arbfee/internal/model"
)

const createScanResultsSQL = `
CREATE TABLE IF NOT EXISTS scan_results (
	id SERIAL PRIMARY KEY,
	run_id VARCHAR(64) NOT NULL,
	row_index INTEGER NOT NULL,
	scanned_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	strategy VARCHAR(128) NOT NULL,
	buy_exchange VARCHAR(50) NOT NULL,
	sell_exchange VARCHAR(50) NOT NULL,
	buy_price NUMERIC(30, 12) NOT NULL,
	sell_price NUMERIC(30, 12) NOT NULL,
	arbitrage_pct NUMERIC(30, 12) NOT NULL,
	total_fees NUMERIC(30, 12) NOT NULL,
	arbitrage_after_fees NUMERIC(30, 12) NOT NULL,
	UNIQUE (run_id, row_index)
);`

// PostgresRepository stores scan results in PostgreSQL.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// NewPostgresRepository connects to the database at dsn.
func NewPostgresRepository(ctx context.Context, dsn string) (*PostgresRepository, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &PostgresRepository{Pool: pool}, nil
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.Pool.Close()
}

// Migrate creates the scan_results table if it does not exist.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	_, err := r.Pool.Exec(ctx, createScanResultsSQL)
	return err
}

// SaveScanResult inserts rec, replacing any earlier result for the same run and row.
func (r *PostgresRepository) SaveScanResult(ctx context.Context, rec model.ScanRecord) error {
	res := rec.Result
	_, err := r.Pool.Exec(ctx, `
		INSERT INTO scan_results (run_id, row_index, scanned_at, strategy, buy_exchange, sell_exchange,
			buy_price, sell_price, arbitrage_pct, total_fees, arbitrage_after_fees)
		VALUES ($1, $2, $3, $4, $5, $6, $7::numeric, $8::numeric, $9::numeric, $10::numeric, $11::numeric)
		ON CONFLICT (run_id, row_index) DO UPDATE SET
			scanned_at = EXCLUDED.scanned_at,
			strategy = EXCLUDED.strategy,
			buy_exchange = EXCLUDED.buy_exchange,
			sell_exchange = EXCLUDED.sell_exchange,
			buy_price = EXCLUDED.buy_price,
			sell_price = EXCLUDED.sell_price,
			arbitrage_pct = EXCLUDED.arbitrage_pct,
			total_fees = EXCLUDED.total_fees,
			arbitrage_after_fees = EXCLUDED.arbitrage_after_fees`,
		rec.RunID, rec.Row, rec.ScannedAt, res.Strategy, res.BuyExchange, res.SellExchange,
		res.BuyPrice.String(), res.SellPrice.String(), res.ArbitragePct.Round(12).String(),
		res.TotalFees.String(), res.ArbitrageAfterFees.String(),
	)
	if err != nil {
		return fmt.Errorf("insert scan result %s/%d: %w", rec.RunID, rec.Row, err)
	}
	return nil
}

// ListByRun returns the results of one batch run ordered by row.
func (r *PostgresRepository) ListByRun(ctx context.Context, runID string) ([]model.ScanRecord, error) {
	rows, err := r.Pool.Query(ctx, `
		SELECT id, run_id, row_index, scanned_at, strategy, buy_exchange, sell_exchange,
			buy_price::text, sell_price::text, arbitrage_pct::text, total_fees::text, arbitrage_after_fees::text
		FROM scan_results WHERE run_id = $1 ORDER BY row_index`, runID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRecord)
}

func scanRecord(row pgx.CollectableRow) (model.ScanRecord, error) {
	var (
		rec                                  model.ScanRecord
		buy, sell, pct, totalFees, afterFees string
	)
	err := row.Scan(&rec.ID, &rec.RunID, &rec.Row, &rec.ScannedAt, &rec.Result.Strategy,
		&rec.Result.BuyExchange, &rec.Result.SellExchange, &buy, &sell, &pct, &totalFees, &afterFees)
	if err != nil {
		return rec, err
	}
	for _, f := range []struct {
		dst *decimal.Decimal
		src string
	}{
		{&rec.Result.BuyPrice, buy},
		{&rec.Result.SellPrice, sell},
		{&rec.Result.ArbitragePct, pct},
		{&rec.Result.TotalFees, totalFees},
		{&rec.Result.ArbitrageAfterFees, afterFees},
	} {
		if *f.dst, err = decimal.NewFromString(f.src); err != nil {
			return rec, fmt.Errorf("parse numeric column: %w", err)
		}
	}
	return rec, nil
}
