package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/tradechartjp/tradechart/internal/alerting"
	"github.com/tradechartjp/tradechart/internal/analysis/technical"
	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/internal/store"
	"github.com/tradechartjp/tradechart/pkg/models"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

// ============================================================
// Request / Response types
// ============================================================

// APIResponse is the standard JSON envelope.
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// CreateAlertRequest is the body for POST /api/v1/alerts.
type CreateAlertRequest struct {
	Ticker    string  `json:"ticker"`
	Type      string  `json:"type,omitempty"` // default "RSI"
	Threshold float64 `json:"threshold"`
	Note      string  `json:"note,omitempty"`
}

// UpsertHoldingRequest is the body for POST /api/v1/portfolio.
type UpsertHoldingRequest struct {
	Ticker string  `json:"ticker"`
	Shares float64 `json:"shares"`
}

// ============================================================
// Market data handlers
// ============================================================

func (s *Server) handlePrices(w http.ResponseWriter, r *http.Request) {
	ticker := utils.NormalizeTicker(chi.URLParam(r, "ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	priceRange := r.URL.Query().Get("range")
	if priceRange == "" {
		priceRange = s.cfg.Market.DefaultRange
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	params := provider.QueryParams{
		provider.ParamSymbol: ticker,
		provider.ParamPeriod: priceRange,
	}
	if p := r.URL.Query().Get("provider"); p != "" {
		params[provider.ParamProvider] = p
	}

	result, err := s.registry.FetchWithFallback(ctx, provider.ModelEquityHistorical, params)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	candles, ok := result.Data.([]models.OHLCV)
	if !ok || len(candles) == 0 {
		writeError(w, http.StatusNotFound, "no price data for "+ticker)
		return
	}

	series := models.PriceSeries{
		Ticker:  ticker,
		Source:  result.Provider,
		Candles: candles,
		RSI:     technical.RSI(candles, s.cfg.Alerts.RSIPeriod),
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: series})
}

func (s *Server) handleQuote(w http.ResponseWriter, r *http.Request) {
	ticker := utils.NormalizeTicker(chi.URLParam(r, "ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	result, err := s.registry.FetchWithFallback(ctx, provider.ModelEquityQuote, provider.QueryParams{
		provider.ParamSymbol: ticker,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result.Data})
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	ticker := utils.NormalizeTicker(chi.URLParam(r, "ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 15*time.Second)
	defer cancel()

	result, err := s.registry.FetchWithFallback(ctx, provider.ModelEquityLabel, provider.QueryParams{
		provider.ParamSymbol: ticker,
	})
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result.Data})
}

// ============================================================
// Financials / filings handlers
// ============================================================

func (s *Server) handleFinancials(w http.ResponseWriter, r *http.Request) {
	ticker := utils.NormalizeTicker(chi.URLParam(r, "ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	params := provider.QueryParams{provider.ParamSymbol: ticker}
	if years := r.URL.Query().Get("years"); years != "" {
		params[provider.ParamYears] = years
	}
	if p := r.URL.Query().Get("provider"); p != "" {
		params[provider.ParamProvider] = p
	}

	result, err := s.registry.FetchWithFallback(ctx, provider.ModelAnnualFinancials, params)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result.Data})
}

func (s *Server) handleFilings(w http.ResponseWriter, r *http.Request) {
	ticker := utils.NormalizeTicker(chi.URLParam(r, "ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	params := provider.QueryParams{provider.ParamSymbol: ticker}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		params[provider.ParamLimit] = limit
	}

	result, err := s.registry.FetchWithFallback(ctx, provider.ModelFilingDocuments, params)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result.Data})
}

func (s *Server) handleDisclosures(w http.ResponseWriter, r *http.Request) {
	code := utils.NormalizeTicker(chi.URLParam(r, "code"))
	if code == "" {
		writeError(w, http.StatusBadRequest, "code is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	params := provider.QueryParams{provider.ParamSymbol: code}
	if days := r.URL.Query().Get("days"); days != "" {
		params[provider.ParamDays] = days
	}

	result, err := s.registry.FetchWithFallback(ctx, provider.ModelDisclosureEvents, params)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result.Data})
}

func (s *Server) handleNews(w http.ResponseWriter, r *http.Request) {
	ticker := utils.NormalizeTicker(chi.URLParam(r, "ticker"))
	if ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	params := provider.QueryParams{provider.ParamSymbol: ticker}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		params[provider.ParamLimit] = limit
	}

	result, err := s.registry.FetchWithFallback(ctx, provider.ModelCompanyNews, params)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: result.Data})
}

// ============================================================
// Alert handlers
// ============================================================

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.ListAlerts(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: alerts})
}

func (s *Server) handleCreateAlert(w http.ResponseWriter, r *http.Request) {
	var req CreateAlertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	if req.Threshold <= 0 {
		writeError(w, http.StatusBadRequest, "threshold must be positive")
		return
	}

	alert, err := s.store.AddAlert(r.Context(), models.Alert{
		Ticker:    req.Ticker,
		Type:      req.Type,
		Threshold: req.Threshold,
		Note:      req.Note,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: alert})
}

func (s *Server) handleDeleteAlert(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "alert id is required")
		return
	}

	if err := s.store.DeleteAlert(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "alert not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"deleted": id}})
}

// handleRunAlerts evaluates all alerts immediately. Matches are broadcast
// to WebSocket clients and, when a notifier is configured, pushed to LINE.
func (s *Server) handleRunAlerts(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Minute)
	defer cancel()

	matches, err := s.evaluator.Run(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if len(matches) > 0 {
		s.wsHub.Broadcast(WSMessage{Type: "alerts_triggered", Data: matches})
		if s.notifier != nil {
			if err := s.notifier.Send(ctx, alerting.FormatAlertMessage(matches)); err != nil {
				log.Warn().Err(err).Msg("line notification failed")
			}
		}
	}

	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: matches})
}

// ============================================================
// Portfolio handlers
// ============================================================

func (s *Server) handlePortfolio(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Minute)
	defer cancel()

	holdings, err := s.store.ListHoldings(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	valuation := s.valuePortfolio(ctx, holdings)
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: valuation})
}

// valuePortfolio prices each holding at its latest quote. Share counts and
// prices multiply as decimals so totals do not accumulate float error. A
// holding that cannot be priced keeps a zero market value and is still
// listed.
func (s *Server) valuePortfolio(ctx context.Context, holdings []models.Holding) models.PortfolioValuation {
	valuation := models.PortfolioValuation{Holdings: []models.HoldingValuation{}}
	total := decimal.Zero

	for _, h := range holdings {
		hv := models.HoldingValuation{
			Holding:     h,
			LastPrice:   "0",
			MarketValue: "0",
		}

		result, err := s.registry.FetchWithFallback(ctx, provider.ModelEquityQuote, provider.QueryParams{
			provider.ParamSymbol: h.Ticker,
		})
		if err != nil {
			log.Warn().Err(err).Str("ticker", h.Ticker).Msg("portfolio quote unavailable")
			valuation.Holdings = append(valuation.Holdings, hv)
			continue
		}

		if quote, ok := result.Data.(*models.Quote); ok && quote != nil {
			price := decimal.NewFromFloat(quote.LastPrice)
			value := price.Mul(decimal.NewFromFloat(h.Shares))
			hv.Name = quote.Name
			hv.Currency = quote.Currency
			hv.LastPrice = price.String()
			hv.MarketValue = value.String()
			if valuation.Currency == "" {
				valuation.Currency = quote.Currency
			}
			total = total.Add(value)
		}
		valuation.Holdings = append(valuation.Holdings, hv)
	}

	valuation.TotalValue = total.String()
	return valuation
}

func (s *Server) handleUpsertHolding(w http.ResponseWriter, r *http.Request) {
	var req UpsertHoldingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Ticker == "" {
		writeError(w, http.StatusBadRequest, "ticker is required")
		return
	}
	if req.Shares <= 0 {
		writeError(w, http.StatusBadRequest, "shares must be positive")
		return
	}

	holding, err := s.store.UpsertHolding(r.Context(), req.Ticker, req.Shares)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, APIResponse{Success: true, Data: holding})
}

func (s *Server) handleDeleteHolding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "holding id is required")
		return
	}

	if err := s.store.DeleteHolding(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "holding not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, APIResponse{Success: true, Data: map[string]string{"deleted": id}})
}

// ============================================================
// Provider handlers
// ============================================================

func (s *Server) handleProviders(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data: map[string]interface{}{
			"providers": s.registry.List(),
			"coverage":  s.registry.ModelCoverage(),
		},
	})
}

// ============================================================
// Helpers
// ============================================================

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, APIResponse{
		Success: false,
		Error:   msg,
	})
}
