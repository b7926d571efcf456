// Package alerting evaluates RSI alerts against latest price history and
// delivers matches through the notifier.
package alerting

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/tradechartjp/tradechart/internal/analysis/technical"
	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/internal/store"
	"github.com/tradechartjp/tradechart/pkg/models"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

// DefaultWatchlist is evaluated when no alerts are registered.
var DefaultWatchlist = []string{"285A", "6857", "6525", "3110", "6871", "5803", "4062", "7011", "5805"}

const maxConcurrentChecks = 4

// Evaluator checks each alert's ticker against its RSI threshold.
type Evaluator struct {
	registry         *provider.Registry
	store            store.Store
	defaultThreshold float64
	watchlist        []string
	rsiPeriod        int
}

// NewEvaluator wires an evaluator to a provider registry and alert store.
// defaultThreshold applies to watchlist tickers that have no registered alert.
func NewEvaluator(registry *provider.Registry, st store.Store, defaultThreshold float64) *Evaluator {
	return &Evaluator{
		registry:         registry,
		store:            st,
		defaultThreshold: defaultThreshold,
		watchlist:        DefaultWatchlist,
		rsiPeriod:        14,
	}
}

// SetWatchlist replaces the fallback ticker list used when no alerts exist.
func (e *Evaluator) SetWatchlist(tickers []string) {
	if len(tickers) > 0 {
		e.watchlist = tickers
	}
}

// Run evaluates every registered alert (or the watchlist when none are
// registered) and returns the tickers whose latest RSI is at or below
// threshold, sorted by ticker. A ticker that cannot be priced is logged
// and skipped.
func (e *Evaluator) Run(ctx context.Context) ([]models.AlertMatch, error) {
	thresholds, err := e.thresholds(ctx)
	if err != nil {
		return nil, err
	}

	tickers := make([]string, 0, len(thresholds))
	for ticker := range thresholds {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	var mu sync.Mutex
	var matches []models.AlertMatch

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentChecks)
	for _, ticker := range tickers {
		ticker := ticker
		threshold := thresholds[ticker]
		g.Go(func() error {
			match, err := e.checkTicker(gctx, ticker, threshold)
			if err != nil {
				log.Warn().Err(err).Str("ticker", ticker).Msg("skipping alert check")
				return nil
			}
			if match != nil {
				mu.Lock()
				matches = append(matches, *match)
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Ticker < matches[j].Ticker })
	return matches, nil
}

// thresholds maps each ticker to its evaluation threshold. Registered
// alerts win; when none exist the watchlist is used with the default.
func (e *Evaluator) thresholds(ctx context.Context) (map[string]float64, error) {
	alerts, err := e.store.ListAlerts(ctx)
	if err != nil {
		return nil, fmt.Errorf("load alerts: %w", err)
	}

	thresholds := map[string]float64{}
	for _, a := range alerts {
		ticker := utils.NormalizeTicker(a.Ticker)
		if ticker == "" {
			continue
		}
		thresholds[ticker] = a.Threshold
	}
	if len(thresholds) == 0 {
		for _, t := range e.watchlist {
			thresholds[utils.NormalizeTicker(t)] = e.defaultThreshold
		}
	}
	return thresholds, nil
}

func (e *Evaluator) checkTicker(ctx context.Context, ticker string, threshold float64) (*models.AlertMatch, error) {
	result, err := e.registry.FetchWithFallback(ctx, provider.ModelEquityHistorical, provider.QueryParams{
		provider.ParamSymbol: ticker,
	})
	if err != nil {
		return nil, fmt.Errorf("fetch price history: %w", err)
	}
	candles, ok := result.Data.([]models.OHLCV)
	if !ok || len(candles) == 0 {
		return nil, fmt.Errorf("no price data for %s", ticker)
	}

	rsiVals := technical.RSI(candles, e.rsiPeriod)
	if rsiVals == nil {
		return nil, fmt.Errorf("not enough history to compute RSI for %s", ticker)
	}
	rsi := rsiVals[len(rsiVals)-1]

	last := candles[len(candles)-1]
	if rsi > threshold {
		log.Debug().Str("ticker", ticker).Float64("rsi", rsi).Float64("threshold", threshold).
			Msg("rsi above threshold")
		return nil, nil
	}
	return &models.AlertMatch{
		Ticker:    ticker,
		RSI:       rsi,
		Price:     last.Close,
		Threshold: threshold,
		Date:      last.Timestamp.In(utils.JST).Format("2006-01-02"),
	}, nil
}
