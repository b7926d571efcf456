package models

// Alert is a user-defined price alert. Type is the indicator evaluated
// ("RSI" is the only type the evaluator currently implements); Threshold
// triggers when the latest indicator value is at or below it.
type Alert struct {
	ID        string  `json:"id"`
	Ticker    string  `json:"ticker"`
	Type      string  `json:"type"`
	Threshold float64 `json:"threshold"`
	Note      string  `json:"note,omitempty"`
}

// Holding is one portfolio position.
type Holding struct {
	ID     string  `json:"id"`
	Ticker string  `json:"ticker"`
	Shares float64 `json:"shares"`
}

// HoldingValuation is a holding priced at the latest close.
type HoldingValuation struct {
	Holding
	Name        string `json:"name,omitempty"`
	LastPrice   string `json:"last_price"`   // decimal string
	MarketValue string `json:"market_value"` // decimal string, shares * last price
	Currency    string `json:"currency,omitempty"`
}

// PortfolioValuation is the priced portfolio with its total.
type PortfolioValuation struct {
	Holdings   []HoldingValuation `json:"holdings"`
	TotalValue string             `json:"total_value"`
	Currency   string             `json:"currency,omitempty"`
}

// AlertMatch is one triggered alert produced by an evaluation run.
type AlertMatch struct {
	Ticker    string  `json:"ticker"`
	RSI       float64 `json:"rsi"`
	Price     float64 `json:"price"`
	Threshold float64 `json:"threshold"`
	Date      string  `json:"date"` // YYYY-MM-DD of the bar that triggered
}
