package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"arbfee/internal/fees"
	"arbfee/internal/model"
)

var errNoRepository = errors.New("scan results are not stored")

// FeesRequest is the body of POST /v1/fees.
type FeesRequest struct {
	BuyExchange        string          `json:"buy_exchange"`
	SellExchange       string          `json:"sell_exchange"`
	Crypto             string          `json:"crypto"`
	Amount             decimal.Decimal `json:"amount"`
	BuyPrice           decimal.Decimal `json:"buy_price"`
	SellPrice          decimal.Decimal `json:"sell_price"`
	WithdrawalCurrency string          `json:"withdrawal_currency"`
	Rates              map[string]any  `json:"rates"`
}

// SimulateRequest is the body of POST /v1/simulate.
type SimulateRequest struct {
	Strategy  string          `json:"strategy"`
	BuyPrice  decimal.Decimal `json:"buy_price"`
	SellPrice decimal.Decimal `json:"sell_price"`
}

// SimulateResponse is returned by POST /v1/simulate.
type SimulateResponse struct {
	Strategy           string          `json:"strategy"`
	ArbitrageAfterFees decimal.Decimal `json:"arbitrage_after_fees"`
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func (s *Server) handleFees(w http.ResponseWriter, r *http.Request) {
	var req FeesRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	rates := fees.USDOnly()
	if len(req.Rates) > 0 {
		rates = fees.NewRateTable(req.Rates)
	}
	b, err := s.calc.Calculate(model.Trade{
		BuyExchange:        req.BuyExchange,
		SellExchange:       req.SellExchange,
		Crypto:             req.Crypto,
		Amount:             req.Amount,
		BuyPrice:           req.BuyPrice,
		SellPrice:          req.SellPrice,
		WithdrawalCurrency: req.WithdrawalCurrency,
	}, rates)
	if err != nil {
		writeError(w, domainStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var row model.PriceRow
	if err := decode(r, &row); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	res, err := s.scanner.Scan(row)
	if err != nil {
		writeError(w, domainStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	var req SimulateRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	got, err := s.simulator.Simulate(req.Strategy, req.BuyPrice, req.SellPrice)
	if err != nil {
		writeError(w, domainStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, SimulateResponse{Strategy: req.Strategy, ArbitrageAfterFees: got})
}

func (s *Server) handleExchanges(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.calc.Schedule().Exchanges())
}

func (s *Server) handleExchange(w http.ResponseWriter, r *http.Request) {
	f, err := s.calc.Schedule().Lookup(mux.Vars(r)["name"])
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, f)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.repo == nil {
		writeError(w, http.StatusNotFound, errNoRepository)
		return
	}
	recs, err := s.repo.ListByRun(r.Context(), mux.Vars(r)["runID"])
	if err != nil {
		s.logger.Error("Failed to list scan results", "error", err)
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	if recs == nil {
		recs = []model.ScanRecord{}
	}
	writeJSON(w, http.StatusOK, recs)
}

// handleScanStream scans every price row received as a websocket text frame
// and replies with the scan result or an error object.
func (s *Server) handleScanStream(w http.ResponseWriter, r *http.Request) {
	c, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("Websocket upgrade failed", "error", err)
		return
	}
	defer c.Close()

	for {
		_, message, err := c.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Websocket read failed", "error", err)
			}
			return
		}

		var reply any
		var row model.PriceRow
		if err := json.Unmarshal(message, &row); err != nil {
			reply = errorResponse{Error: fmt.Sprintf("invalid price row: %v", err)}
		} else if res, err := s.scanner.Scan(row); err != nil {
			reply = errorResponse{Error: err.Error()}
		} else {
			reply = res
		}

		if err := c.WriteJSON(reply); err != nil {
			s.logger.Warn("Websocket write failed", "error", err)
			return
		}
	}
}
