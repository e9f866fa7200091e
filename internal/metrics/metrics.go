package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FeeCalculationsTotal = prometheus.NewCounter(prometheus.CounterOpts{Name: "fee_calculations_total", Help: "Fee calculations attempted"})
	FeeCalculationErrors = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "fee_calculation_errors_total", Help: "Failed fee calculations by reason"}, []string{"reason"})
	RowsScannedTotal     = prometheus.NewCounter(prometheus.CounterOpts{Name: "rows_scanned_total", Help: "Price rows scanned"})
	RowsProfitableTotal  = prometheus.NewCounter(prometheus.CounterOpts{Name: "rows_profitable_total", Help: "Price rows with a profitable strategy after fees"})
	RowsFailedTotal      = prometheus.NewCounter(prometheus.CounterOpts{Name: "rows_failed_total", Help: "Price rows that could not be scanned"})
	ArbitrageAfterFees   = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "arbitrage_after_fees_usd", Help: "Arbitrage after fees per scanned row", Buckets: prometheus.LinearBuckets(-500, 50, 21)})
	SimulationsTotal     = prometheus.NewCounter(prometheus.CounterOpts{Name: "strategy_simulations_total", Help: "Strategy replays"})
)

// NewRegistry registers every collector on a fresh registry.
func NewRegistry(logger *slog.Logger) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	toRegister := []prometheus.Collector{
		FeeCalculationsTotal, FeeCalculationErrors,
		RowsScannedTotal, RowsProfitableTotal, RowsFailedTotal, ArbitrageAfterFees,
		SimulationsTotal,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	}
	for _, c := range toRegister {
		if err := reg.Register(c); err != nil {
			logger.Warn("Failed to register collector", "error", err)
		}
	}
	logger.Debug("Prometheus metrics initialised")
	return reg
}

// Handler exposes a registry over HTTP.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
