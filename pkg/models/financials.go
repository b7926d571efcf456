package models

// Metric names for the annual financial statement series tracked by the app.
const (
	MetricRevenue           = "revenue"
	MetricOperatingIncome   = "operating_income"
	MetricNetIncome         = "net_income"
	MetricOperatingCashFlow = "operating_cash_flow"
)

// MetricNames lists all tracked metrics in presentation order.
var MetricNames = []string{
	MetricRevenue,
	MetricOperatingIncome,
	MetricNetIncome,
	MetricOperatingCashFlow,
}

// Period types for a reported fact.
const (
	PeriodInstant  = "instant"
	PeriodDuration = "duration"
)

// FactPoint is one observed value of one metric for one fiscal year.
// Year and Value are pointers because a fact can be extracted before its
// fiscal year or numeric value is resolved; such points are dropped when the
// series is merged.
type FactPoint struct {
	Year       *int     `json:"year"`
	Value      *float64 `json:"value"`
	Unit       string   `json:"unit,omitempty"`
	PeriodType string   `json:"period_type,omitempty"`
	YoY        *float64 `json:"yoy,omitempty"` // year-over-year ratio, set by the aggregator
}

// AnnualMetrics maps a metric name to its per-year series, ascending by year
// with at most one point per year. Every tracked metric is present as a key,
// with an empty slice when nothing was reported.
type AnnualMetrics map[string][]FactPoint

// Filing is one regulatory filing reference (EDINET document row or EDGAR
// submission record).
type Filing struct {
	DocID      string `json:"doc_id"`
	Form       string `json:"form,omitempty"`
	Filed      string `json:"filed,omitempty"`
	ReportDate string `json:"report_date,omitempty"`
	FiscalYear int    `json:"fiscal_year,omitempty"`
	Filer      string `json:"filer,omitempty"`
}

// IntPtr, FloatPtr are small helpers for building FactPoints.
func IntPtr(v int) *int           { return &v }
func FloatPtr(v float64) *float64 { return &v }
