package batch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"arbfee/internal/config"
	"arbfee/internal/database"
	"arbfee/internal/dataset"
	"arbfee/internal/metrics"
	"arbfee/internal/model"
	"arbfee/internal/notify"
)

// RowScanner prices a single price row.
type RowScanner interface {
	Scan(row model.PriceRow) (model.ScanResult, error)
}

// Outcome is the scan result or error of one input row.
type Outcome struct {
	Row    int
	Result model.ScanResult
	Err    error
}

// Summary describes a finished run.
type Summary struct {
	RunID      string
	Rows       int
	Profitable int
	Failed     int
}

// Runner drives a Scanner over every row of a price table.
type Runner struct {
	logger    *slog.Logger
	scanner   RowScanner
	cfg       config.BatchConfig
	repo      database.Repository
	publisher notify.Publisher
	now       func() time.Time
}

// Option configures optional Runner sinks.
type Option func(*Runner)

// WithRepository stores every scanned row.
func WithRepository(repo database.Repository) Option {
	return func(r *Runner) { r.repo = repo }
}

// WithPublisher announces every profitable row.
func WithPublisher(p notify.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

// NewRunner creates a Runner.
func NewRunner(logger *slog.Logger, scanner RowScanner, cfg config.BatchConfig, opts ...Option) *Runner {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.ProgressEvery < 1 {
		cfg.ProgressEvery = 1000
	}
	if cfg.OnError == "" {
		cfg.OnError = config.OnErrorAbort
	}
	r := &Runner{logger: logger, scanner: scanner, cfg: cfg, now: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run reads a price CSV from in, scans every row and writes the enriched CSV
// to out. Nothing is written when the run aborts.
func (r *Runner) Run(ctx context.Context, in io.Reader, out io.Writer) (Summary, error) {
	tbl, err := dataset.Read(in)
	if err != nil {
		return Summary{}, err
	}
	outcomes, summary, err := r.Process(ctx, tbl)
	if err != nil {
		return summary, err
	}
	r.logger.Info("Saving results to CSV", "rows", len(outcomes))
	if err := WriteOutcomes(out, tbl, outcomes); err != nil {
		return summary, fmt.Errorf("write results: %w", err)
	}
	return summary, nil
}

// WriteOutcomes writes the rows of tbl with their scan results appended.
func WriteOutcomes(w io.Writer, tbl *dataset.Table, outcomes []Outcome) error {
	header := append(append([]string{}, tbl.Header...), dataset.ResultColumns...)
	rows := make([][]string, len(outcomes))
	for i, o := range outcomes {
		row := append([]string{}, tbl.Rows[o.Row]...)
		if o.Err != nil {
			rows[i] = append(row, dataset.InvalidCells(o.Err)...)
			continue
		}
		rows[i] = append(row, dataset.ResultCells(o.Result)...)
	}
	return dataset.Write(w, header, rows)
}

// Process scans every row of tbl. Outcomes are returned in input order
// regardless of the worker count. With on_error=abort the run fails with the
// error of the lowest-indexed failing row; with on_error=skip the failure is
// kept in its Outcome.
func (r *Runner) Process(ctx context.Context, tbl *dataset.Table) ([]Outcome, Summary, error) {
	total := tbl.Len()
	summary := Summary{RunID: uuid.NewString(), Rows: total}
	outcomes := make([]Outcome, total)
	r.logger.Info("Processing rows", "runID", summary.RunID, "rows", total, "workers", r.cfg.Workers)

	abort := r.cfg.OnError == config.OnErrorAbort
	// Lowest failing row so far. Rows above it cannot change the abort error
	// and are not started; rows below it always finish.
	var firstFailed atomic.Int64
	firstFailed.Store(int64(total))

	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i := 0; i < total; i++ {
		if ctx.Err() != nil || (abort && int64(i) > firstFailed.Load()) {
			break
		}
		i := i // per-iteration copy (Go <1.22 loop semantics)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if abort && int64(i) > firstFailed.Load() {
				return nil
			}
			if i%r.cfg.ProgressEvery == 0 {
				r.logger.Info("Processing row", "row", i, "total", total,
					"percent", fmt.Sprintf("%.1f%%", float64(i)/float64(total)*100))
			}
			res, err := r.scanner.Scan(tbl.PriceRow(i))
			metrics.RowsScannedTotal.Inc()
			outcomes[i] = Outcome{Row: i, Result: res, Err: err}
			if err != nil {
				metrics.RowsFailedTotal.Inc()
				if abort {
					lowerFirstFailed(&firstFailed, int64(i))
					return nil
				}
				r.logger.Warn("Skipping invalid row", "row", i, "error", err)
				return nil
			}
			metrics.ArbitrageAfterFees.Observe(res.ArbitrageAfterFees.InexactFloat64())
			if res.Profitable() {
				metrics.RowsProfitableTotal.Inc()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, summary, err
	}
	if err := ctx.Err(); err != nil {
		return nil, summary, err
	}
	if first := int(firstFailed.Load()); abort && first < total {
		return nil, summary, fmt.Errorf("row %d: %w", first, outcomes[first].Err)
	}

	for _, o := range outcomes {
		if o.Err != nil {
			summary.Failed++
			continue
		}
		if o.Result.Profitable() {
			summary.Profitable++
		}
		r.sink(ctx, summary.RunID, o)
	}
	r.logger.Info("Processing complete", "runID", summary.RunID, "rows", summary.Rows,
		"profitable", summary.Profitable, "failed", summary.Failed)
	return outcomes, summary, nil
}

func lowerFirstFailed(first *atomic.Int64, row int64) {
	for {
		cur := first.Load()
		if row >= cur || first.CompareAndSwap(cur, row) {
			return
		}
	}
}

// sink forwards a successful outcome to the configured repository and
// publisher. Sink failures are logged and do not fail the run.
func (r *Runner) sink(ctx context.Context, runID string, o Outcome) {
	if r.repo == nil && r.publisher == nil {
		return
	}
	rec := model.ScanRecord{RunID: runID, Row: o.Row, ScannedAt: r.now().UTC(), Result: o.Result}
	if r.repo != nil {
		if err := r.repo.SaveScanResult(ctx, rec); err != nil {
			r.logger.Error("Failed to save scan result", "row", o.Row, "error", err)
		}
	}
	if r.publisher != nil && o.Result.Profitable() {
		if err := r.publisher.Publish(ctx, rec); err != nil {
			r.logger.Error("Failed to publish opportunity", "row", o.Row, "error", err)
		}
	}
}
