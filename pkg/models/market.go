// Package models defines the core data structures used throughout TradeChart.
package models

import "time"

// OHLCV represents a single candlestick bar of price data.
type OHLCV struct {
	Timestamp time.Time `json:"timestamp"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    int64     `json:"volume"`
	AdjClose  float64   `json:"adj_close,omitempty"`
}

// Quote represents a delayed or real-time stock quote.
type Quote struct {
	Ticker    string    `json:"ticker"`
	Name      string    `json:"name"`
	LastPrice float64   `json:"last_price"`
	Change    float64   `json:"change"`
	ChangePct float64   `json:"change_pct"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	PrevClose float64   `json:"prev_close"`
	Volume    int64     `json:"volume"`
	Currency  string    `json:"currency,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PriceSeries is a ticker's price history with computed indicator columns.
type PriceSeries struct {
	Ticker  string    `json:"ticker"`
	Source  string    `json:"source"`
	Candles []OHLCV   `json:"candles"`
	RSI     []float64 `json:"rsi,omitempty"` // aligned with Candles, NaN-free prefix is zero
}

// NewsArticle represents one news or disclosure headline.
type NewsArticle struct {
	Title       string    `json:"title"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
	Summary     string    `json:"summary,omitempty"`
}

// DisclosureEvent is a timely-disclosure entry (TDnet) for one security.
type DisclosureEvent struct {
	Code      string `json:"code"`
	Title     string `json:"title"`
	Timestamp string `json:"timestamp"`
	URL       string `json:"url"`
}
