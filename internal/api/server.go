package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"

	"arbfee/internal/arbitrage"
	"arbfee/internal/database"
	"arbfee/internal/fees"
	"arbfee/internal/metrics"
)

// Route binds a handler to a method and path.
type Route struct {
	Name        string
	Method      string
	Pattern     string
	HandlerFunc http.HandlerFunc
}

// Server answers ad-hoc fee, scan and simulation queries.
type Server struct {
	logger    *slog.Logger
	calc      *fees.Calculator
	scanner   *arbitrage.Scanner
	simulator *arbitrage.Simulator
	repo      database.Repository
	registry  *prometheus.Registry
	upgrader  websocket.Upgrader
}

// NewServer creates a Server. repo may be nil when results are not stored.
func NewServer(logger *slog.Logger, calc *fees.Calculator, scanner *arbitrage.Scanner, simulator *arbitrage.Simulator, registry *prometheus.Registry, repo database.Repository) *Server {
	return &Server{
		logger:    logger,
		calc:      calc,
		scanner:   scanner,
		simulator: simulator,
		repo:      repo,
		registry:  registry,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Router returns the HTTP routes of the server.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter().StrictSlash(true)
	routes := []Route{
		{"CalculateFees", http.MethodPost, "/v1/fees", s.handleFees},
		{"ScanRow", http.MethodPost, "/v1/scan", s.handleScan},
		{"SimulateStrategy", http.MethodPost, "/v1/simulate", s.handleSimulate},
		{"ListExchanges", http.MethodGet, "/v1/exchanges", s.handleExchanges},
		{"GetExchange", http.MethodGet, "/v1/exchanges/{name}", s.handleExchange},
		{"GetRun", http.MethodGet, "/v1/runs/{runID}", s.handleRun},
		{"ScanStream", http.MethodGet, "/ws/scan", s.handleScanStream},
	}
	for _, route := range routes {
		router.
			Methods(route.Method).
			Path(route.Pattern).
			Name(route.Name).
			Handler(s.requestLogger(route.HandlerFunc, route.Name))
	}
	router.Methods(http.MethodGet).Path("/metrics").Name("Metrics").Handler(metrics.Handler(s.registry))
	return router
}

// requestLogger logs each request after it has been served.
func (s *Server) requestLogger(inner http.Handler, name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		inner.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"uri", r.RequestURI,
			"route", name,
			"duration", time.Since(start),
		)
	})
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

// domainStatus maps calculation and parsing errors to HTTP status codes.
func domainStatus(err error) int {
	for _, target := range []error{
		fees.ErrMissingExchange,
		fees.ErrMissingRate,
		fees.ErrInvalidRate,
		fees.ErrMissingWithdrawalFee,
		fees.ErrInvalidAmount,
		arbitrage.ErrStrategyFormat,
		arbitrage.ErrNoPriceColumns,
		arbitrage.ErrInvalidPrice,
		arbitrage.ErrZeroPrice,
	} {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity
		}
	}
	return http.StatusInternalServerError
}
