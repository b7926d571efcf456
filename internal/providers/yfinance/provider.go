// Package yfinance implements the Yahoo Finance data provider.
// It wraps Yahoo Finance's public APIs (v7 quote, v8 chart, the
// fundamentals-timeseries endpoint) plus the Yahoo Finance Japan quote
// pages into the standard provider/fetcher framework.
//
// Yahoo Finance is a free, no-API-key provider that covers both the
// Tokyo Stock Exchange (via the .T suffix) and US-listed equities.
package yfinance

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/tradechartjp/tradechart/internal/infra"
	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

const providerName = "yfinance"

// Base URLs are variables so tests can point fetchers at a local server.
var (
	queryBaseURL = "https://query1.finance.yahoo.com"
	jpQuoteURL   = "https://finance.yahoo.co.jp/quote/"
)

// Provider implements provider.Provider for Yahoo Finance.
type Provider struct {
	provider.BaseProvider
}

// New creates a new YFinance provider and registers all fetchers.
func New() *Provider {
	p := &Provider{
		BaseProvider: provider.NewBaseProvider(
			providerName,
			"Yahoo Finance - free global price and fundamentals data",
			"https://finance.yahoo.com",
			nil, // no credentials required
		),
	}

	// --- Price ---
	p.RegisterFetcher(newEquityHistoricalFetcher())
	p.RegisterFetcher(newEquityQuoteFetcher())

	// --- Fundamentals ---
	p.RegisterFetcher(newAnnualFinancialsFetcher())

	// --- News / labels ---
	p.RegisterFetcher(newCompanyNewsFetcher())
	p.RegisterFetcher(newEquityLabelFetcher())

	return p
}

// Ping checks connectivity to Yahoo Finance.
func (p *Provider) Ping(ctx context.Context) error {
	url := queryBaseURL + "/v7/finance/quote?symbols=7203.T"
	body, _, err := infra.DoGet(ctx, url, jsonHeaders())
	if err != nil {
		return fmt.Errorf("yfinance ping: %w", err)
	}
	body.Close()
	return nil
}

// --- Shared helpers ---

func jsonHeaders() map[string]string {
	return map[string]string{"Accept": "application/json"}
}

// fetchJSON performs a GET request and decodes the response into dest.
func fetchJSON(ctx context.Context, url string, dest any) error {
	body, _, err := infra.DoGet(ctx, url, jsonHeaders())
	if err != nil {
		return err
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	return nil
}

// toYFTicker converts a symbol to Yahoo Finance format.
func toYFTicker(symbol string) string {
	// If it already looks like a global YF ticker (has . or ^), leave it.
	if strings.Contains(symbol, ".") || strings.HasPrefix(symbol, "^") {
		return symbol
	}
	return utils.ToYFinanceTicker(symbol)
}

// fromYFTicker converts a Yahoo Finance ticker back to canonical form.
func fromYFTicker(yfTicker string) string {
	return utils.FromYFinanceTicker(yfTicker)
}

// coalesce returns the first non-empty string.
func coalesce(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

// newResult creates a FetchResult with the current timestamp.
func newResult(data any) *provider.FetchResult {
	return &provider.FetchResult{
		Data:      data,
		FetchedAt: time.Now(),
	}
}

// newCachedResult creates a FetchResult marked as cached.
func newCachedResult(data any) *provider.FetchResult {
	return &provider.FetchResult{
		Data:      data,
		FetchedAt: time.Now(),
		Cached:    true,
	}
}
