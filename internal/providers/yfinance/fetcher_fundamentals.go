package yfinance

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/pkg/models"
)

// timeseriesTypes maps the fundamentals-timeseries series name to our
// standard metric name.
var timeseriesTypes = map[string]string{
	"annualTotalRevenue":      models.MetricRevenue,
	"annualOperatingIncome":   models.MetricOperatingIncome,
	"annualNetIncome":         models.MetricNetIncome,
	"annualOperatingCashFlow": models.MetricOperatingCashFlow,
}

// --- AnnualFinancials fetcher ---

type annualFinancialsFetcher struct {
	provider.BaseFetcher
}

func newAnnualFinancialsFetcher() *annualFinancialsFetcher {
	return &annualFinancialsFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelAnnualFinancials,
			"Annual revenue, operating income, net income and operating cash flow from Yahoo Finance",
			[]string{provider.ParamSymbol},
			[]string{provider.ParamYears},
			6*time.Hour, 5, time.Second,
		),
	}
}

func (f *annualFinancialsFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	symbol := params[provider.ParamSymbol]
	if symbol == "" {
		return nil, &provider.ErrMissingParam{Param: provider.ParamSymbol}
	}
	yfTicker := toYFTicker(symbol)

	years := 5
	if s := params[provider.ParamYears]; s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			years = n
		}
	}

	cacheKey := provider.CacheKey(f.ModelType(), params)
	if cached, ok := f.CacheGet(cacheKey); ok {
		return newCachedResult(cached), nil
	}

	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	types := make([]string, 0, len(timeseriesTypes))
	for t := range timeseriesTypes {
		types = append(types, t)
	}
	sort.Strings(types)

	now := time.Now()
	url := fmt.Sprintf(
		"%s/ws/fundamentals-timeseries/v1/finance/timeseries/%s?type=%s&period1=%d&period2=%d",
		queryBaseURL, yfTicker, strings.Join(types, ","),
		now.AddDate(-years-1, 0, 0).Unix(), now.Unix(),
	)

	var resp yfTimeseriesResponse
	if err := fetchJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("yfinance timeseries %s: %w", yfTicker, err)
	}
	if resp.Timeseries.Error != nil {
		return nil, fmt.Errorf("yfinance API error: %s", resp.Timeseries.Error.Description)
	}

	m := parseAnnualTimeseries(resp.Timeseries.Result)
	f.CacheSetTTL(cacheKey, m, 6*time.Hour)
	return newResult(m), nil
}

// parseAnnualTimeseries assembles AnnualMetrics from timeseries results.
// Every tracked metric is present in the output, empty when the series
// was missing from the response.
func parseAnnualTimeseries(results []yfTimeseriesResult) models.AnnualMetrics {
	out := models.AnnualMetrics{}
	for _, name := range models.MetricNames {
		out[name] = []models.FactPoint{}
	}

	for _, r := range results {
		if len(r.Meta.Type) == 0 {
			continue
		}
		metric, ok := timeseriesTypes[r.Meta.Type[0]]
		if !ok {
			continue
		}
		out[metric] = append(out[metric], seriesPoints(r)...)
	}

	for name, pts := range out {
		out[name] = normalizeSeries(pts)
	}
	return out
}

// seriesPoints extracts the value slice a result element carries.
func seriesPoints(r yfTimeseriesResult) []models.FactPoint {
	var values []*yfTimeseriesValue
	switch r.Meta.Type[0] {
	case "annualTotalRevenue":
		values = r.AnnualTotalRevenue
	case "annualOperatingIncome":
		values = r.AnnualOperatingIncome
	case "annualNetIncome":
		values = r.AnnualNetIncome
	case "annualOperatingCashFlow":
		values = r.AnnualOperatingCashFlow
	}

	points := make([]models.FactPoint, 0, len(values))
	for _, v := range values {
		if v == nil {
			continue
		}
		year := yearFromDate(v.AsOfDate)
		if year == nil {
			continue
		}
		points = append(points, models.FactPoint{
			Year:       year,
			Value:      models.FloatPtr(v.ReportedValue.Raw),
			Unit:       v.CurrencyCode,
			PeriodType: models.PeriodDuration,
		})
	}
	return points
}

// normalizeSeries sorts points ascending by year and keeps one point per
// year, the first one encountered.
func normalizeSeries(points []models.FactPoint) []models.FactPoint {
	sort.SliceStable(points, func(i, j int) bool {
		return *points[i].Year < *points[j].Year
	})
	out := make([]models.FactPoint, 0, len(points))
	seen := make(map[int]bool, len(points))
	for _, p := range points {
		if seen[*p.Year] {
			continue
		}
		seen[*p.Year] = true
		out = append(out, p)
	}
	return out
}

// yearFromDate pulls the fiscal year out of an asOfDate (YYYY-MM-DD).
func yearFromDate(s string) *int {
	if len(s) < 4 {
		return nil
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return nil
	}
	return models.IntPtr(y)
}
