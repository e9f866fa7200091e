package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"arbfee/internal/api"
	"arbfee/internal/arbitrage"
	"arbfee/internal/batch"
	"arbfee/internal/config"
	"arbfee/internal/database"
	"arbfee/internal/exchange"
	"arbfee/internal/fees"
	"arbfee/internal/metrics"
	"arbfee/internal/model"
	"arbfee/internal/notify"
)

var (
	configDir    string
	schedulePath string
)

// app bundles what every command needs.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	calc   *fees.Calculator
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, opts))
}

func setup() (*app, error) {
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("cannot load config: %w", err)
	}
	if schedulePath != "" {
		cfg.FeeSchedulePath = schedulePath
	}
	logger := newLogger(cfg.Log)
	schedule, err := exchange.LoadSchedule(cfg.FeeSchedulePath)
	if err != nil {
		return nil, err
	}
	logger.Debug("Fee schedule loaded", "path", cfg.FeeSchedulePath, "exchanges", schedule.Exchanges())
	return &app{cfg: cfg, logger: logger, calc: fees.NewCalculator(schedule)}, nil
}

func decimalFlag(c *cli.Context, name string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.String(name))
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: %w", name, err)
	}
	return d, nil
}

// newApp builds the command-line application. Output goes to app.Writer.
func newApp() *cli.App {
	cliApp := cli.NewApp()
	cliApp.Name = "arbfee"
	cliApp.Usage = "estimate cross-exchange crypto arbitrage net of fees"
	cliApp.EnableBashCompletion = true
	cliApp.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Value:       ".",
			Usage:       "directory containing config.yaml",
			Destination: &configDir,
		},
		&cli.StringFlag{
			Name:        "fee-schedule",
			Usage:       "fee schedule YAML file, overrides fee_schedule_path",
			Destination: &schedulePath,
		},
	}
	cliApp.Commands = []*cli.Command{
		feesCommand,
		scanCommand,
		simulateCommand,
		serveCommand,
	}
	return cliApp
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

// lazyFile creates its file on the first write, so an aborted scan leaves no
// output behind.
type lazyFile struct {
	path string
	f    *os.File
}

func (l *lazyFile) Write(p []byte) (int, error) {
	if l.f == nil {
		f, err := os.Create(l.path)
		if err != nil {
			return 0, err
		}
		l.f = f
	}
	return l.f.Write(p)
}

func (l *lazyFile) Close() error {
	if l.f == nil {
		return nil
	}
	return l.f.Close()
}

var feesCommand = &cli.Command{
	Name:  "fees",
	Usage: "print the fee breakdown of a single trade",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "buy-exchange", Required: true},
		&cli.StringFlag{Name: "sell-exchange", Required: true},
		&cli.StringFlag{Name: "crypto", Value: "BTC"},
		&cli.StringFlag{Name: "amount", Value: "1"},
		&cli.StringFlag{Name: "buy-price", Required: true},
		&cli.StringFlag{Name: "sell-price", Required: true},
		&cli.StringFlag{Name: "withdraw", Value: "USD", Usage: "withdrawal currency; the crypto symbol selects a crypto withdrawal"},
	},
	Action: func(c *cli.Context) error {
		a, err := setup()
		if err != nil {
			return err
		}
		trade := model.Trade{
			BuyExchange:        c.String("buy-exchange"),
			SellExchange:       c.String("sell-exchange"),
			Crypto:             c.String("crypto"),
			WithdrawalCurrency: c.String("withdraw"),
		}
		if trade.Amount, err = decimalFlag(c, "amount"); err != nil {
			return err
		}
		if trade.BuyPrice, err = decimalFlag(c, "buy-price"); err != nil {
			return err
		}
		if trade.SellPrice, err = decimalFlag(c, "sell-price"); err != nil {
			return err
		}
		b, err := a.calc.Calculate(trade, fees.NewRateTable(a.cfg.Scan.Rates))
		if err != nil {
			return err
		}
		fmt.Fprintln(c.App.Writer, "Fee Breakdown:")
		for _, l := range b.Lines() {
			fmt.Fprintf(c.App.Writer, "%s: $%s\n", l.Name, l.Value.StringFixed(2))
		}
		return nil
	},
}

var scanCommand = &cli.Command{
	Name:  "scan",
	Usage: "append the best strategy and its fees to every row of a price CSV",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "in", Required: true, Usage: "input CSV with <exchange>_USD price columns"},
		&cli.StringFlag{Name: "out", Required: true, Usage: "output CSV"},
	},
	Action: func(c *cli.Context) error {
		a, err := setup()
		if err != nil {
			return err
		}
		var opts []batch.Option
		if a.cfg.Database.Enabled {
			repo, err := database.NewPostgresRepository(c.Context, a.cfg.Database.DSN())
			if err != nil {
				return err
			}
			defer repo.Close()
			if err := repo.Migrate(c.Context); err != nil {
				return fmt.Errorf("migrate: %w", err)
			}
			opts = append(opts, batch.WithRepository(repo))
		}
		if a.cfg.RabbitMQ.Enabled {
			conn, ch, err := notify.SetupConn(a.logger, a.cfg.RabbitMQ.URL, a.cfg.RabbitMQ.Exchange, 5)
			if err != nil {
				return err
			}
			defer conn.Close()
			defer ch.Close()
			opts = append(opts, batch.WithPublisher(notify.NewRabbitPublisher(ch, a.cfg.RabbitMQ.Exchange)))
		}

		in, err := os.Open(c.String("in"))
		if err != nil {
			return err
		}
		defer in.Close()

		scanner := arbitrage.NewScanner(a.logger, a.calc, a.cfg.Scan)
		runner := batch.NewRunner(a.logger, scanner, a.cfg.Batch, opts...)
		out := &lazyFile{path: c.String("out")}
		summary, err := runner.Run(c.Context, in, out)
		if cerr := out.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return err
		}
		a.logger.Info("Scan complete", "runID", summary.RunID, "rows", summary.Rows,
			"profitable", summary.Profitable, "failed", summary.Failed, "out", c.String("out"))
		return nil
	},
}

var simulateCommand = &cli.Command{
	Name:  "simulate",
	Usage: "replay a strategy label against new prices",
	Flags: []cli.Flag{
		&cli.StringFlag{Name: "strategy", Required: true, Usage: "BUY@<exchange>->SELL@<exchange>"},
		&cli.StringFlag{Name: "buy-price", Required: true},
		&cli.StringFlag{Name: "sell-price", Required: true},
	},
	Action: func(c *cli.Context) error {
		a, err := setup()
		if err != nil {
			return err
		}
		buyPrice, err := decimalFlag(c, "buy-price")
		if err != nil {
			return err
		}
		sellPrice, err := decimalFlag(c, "sell-price")
		if err != nil {
			return err
		}
		got, err := arbitrage.NewSimulator(a.calc).Simulate(c.String("strategy"), buyPrice, sellPrice)
		if err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "Arbitrage after fees: $%s\n", got.StringFixed(2))
		if got.IsPositive() {
			fmt.Fprintln(c.App.Writer, "This strategy is profitable!")
		} else {
			fmt.Fprintln(c.App.Writer, "This strategy is not profitable.")
		}
		return nil
	},
}

var serveCommand = &cli.Command{
	Name:  "serve",
	Usage: "serve fee, scan and simulation queries over HTTP",
	Action: func(c *cli.Context) error {
		a, err := setup()
		if err != nil {
			return err
		}
		var repo database.Repository
		if a.cfg.Database.Enabled {
			pg, err := database.NewPostgresRepository(c.Context, a.cfg.Database.DSN())
			if err != nil {
				return err
			}
			defer pg.Close()
			repo = pg
		}

		srv := api.NewServer(a.logger, a.calc,
			arbitrage.NewScanner(a.logger, a.calc, a.cfg.Scan),
			arbitrage.NewSimulator(a.calc),
			metrics.NewRegistry(a.logger),
			repo,
		)
		httpServer := &http.Server{
			Addr:         a.cfg.Server.Addr,
			Handler:      srv.Router(),
			ReadTimeout:  a.cfg.Server.ReadTimeout,
			WriteTimeout: a.cfg.Server.WriteTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			a.logger.Info("HTTP server listening", "addr", a.cfg.Server.Addr)
			errCh <- httpServer.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			return err
		case <-c.Context.Done():
			a.logger.Info("Shutting down HTTP server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return httpServer.Shutdown(shutdownCtx)
		}
	},
}
