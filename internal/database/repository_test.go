package database

import (
	"context"
	"flag"
	"log"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"arbfee/internal/model"
)

var (
	pool *pgxpool.Pool
)

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}
	ctx := context.Background()

	// Define the PostgreSQL container request
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "testuser",
			"POSTGRES_PASSWORD": "testpassword",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForListeningPort("5432/tcp"),
	}

	pgContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		log.Fatalf("could not start postgres container: %s", err)
	}

	host, err := pgContainer.Host(ctx)
	if err != nil {
		log.Fatalf("could not get container host: %s", err)
	}
	port, err := pgContainer.MappedPort(ctx, "5432")
	if err != nil {
		log.Fatalf("could not get mapped port: %s", err)
	}

	connStr := "postgres://testuser:testpassword@" + host + ":" + port.Port() + "/testdb"

	repo, err := NewPostgresRepository(ctx, connStr)
	if err != nil {
		log.Fatalf("could not connect to database: %s", err)
	}
	pool = repo.Pool
	if err := repo.Migrate(ctx); err != nil {
		log.Fatalf("could not create table: %s", err)
	}

	code := m.Run()

	pool.Close()
	if err := pgContainer.Terminate(ctx); err != nil {
		log.Printf("could not stop postgres container: %s", err)
	}
	os.Exit(code)
}

func TestPostgresRepository_SaveScanResult(t *testing.T) {
	if testing.Short() {
		t.Skip("requires docker")
	}
	ctx := context.Background()
	repo := &PostgresRepository{Pool: pool}

	rec := model.ScanRecord{
		RunID:     "run-1",
		Row:       3,
		ScannedAt: time.Now().UTC().Truncate(time.Millisecond),
		Result: model.ScanResult{
			Strategy:           "BUY@kraken->SELL@binance",
			ArbitragePct:       decimal.RequireFromString("7.142857142857"),
			TotalFees:          decimal.RequireFromString("240.7"),
			ArbitrageAfterFees: decimal.RequireFromString("259.3"),
			BuyExchange:        "kraken",
			BuyPrice:           decimal.RequireFromString("100000"),
			SellExchange:       "binance",
			SellPrice:          decimal.RequireFromString("100500"),
		},
	}

	require.NoError(t, repo.SaveScanResult(ctx, rec))

	// Saving the same row again replaces it
	rec.Result.Strategy = "No profitable arbitrage"
	require.NoError(t, repo.SaveScanResult(ctx, rec))

	got, err := repo.ListByRun(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 3, got[0].Row)
	assert.Equal(t, "No profitable arbitrage", got[0].Result.Strategy)
	assert.Equal(t, "kraken", got[0].Result.BuyExchange)
	assert.True(t, rec.Result.TotalFees.Equal(got[0].Result.TotalFees))
	assert.True(t, rec.Result.ArbitrageAfterFees.Equal(got[0].Result.ArbitrageAfterFees))

	none, err := repo.ListByRun(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
}
