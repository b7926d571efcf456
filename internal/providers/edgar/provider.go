package edgar

import (
	"context"
	"sort"
	"strconv"
	"time"

	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/pkg/models"
)

const providerName = "edgar"

// metricConceptsUS maps each tracked metric to its us-gaap concept
// candidates, most preferred first. Filers migrate between revenue tags
// over time, so several aliases are needed per metric.
var metricConceptsUS = map[string][]string{
	models.MetricRevenue: {
		"Revenues",
		"SalesRevenueNet",
		"RevenueFromContractWithCustomerExcludingAssessedTax",
	},
	models.MetricOperatingIncome: {
		"OperatingIncomeLoss",
		"IncomeLossFromContinuingOperationsBeforeIncomeTaxesExtraordinaryItemsNoncontrollingInterest",
	},
	models.MetricNetIncome: {
		"NetIncomeLoss",
		"ProfitLoss",
	},
	models.MetricOperatingCashFlow: {
		"NetCashProvidedByUsedInOperatingActivities",
		"NetCashProvidedByUsedInOperatingActivitiesContinuingOperations",
	},
}

// annualForms are the filing types whose facts count as annual figures.
var annualForms = map[string]bool{"10-K": true, "20-F": true}

// Provider implements provider.Provider for SEC EDGAR.
type Provider struct {
	provider.BaseProvider
	client *Client
}

// New creates the EDGAR provider. userAgent must identify the caller per
// SEC fair-access policy ("Company Name contact@example.com").
func New(userAgent string) (*Provider, error) {
	client, err := NewClient(userAgent)
	if err != nil {
		return nil, err
	}

	p := &Provider{
		BaseProvider: provider.NewBaseProvider(
			providerName,
			"SEC EDGAR - US filings and XBRL company facts",
			"https://www.sec.gov/cgi-bin/browse-edgar",
			nil,
		),
		client: client,
	}

	p.RegisterFetcher(&annualFinancialsFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelAnnualFinancials,
			"Annual statement series from EDGAR company facts",
			[]string{provider.ParamSymbol},
			[]string{provider.ParamYears},
			12*time.Hour, 5, time.Second,
		),
		client: client,
	})

	p.RegisterFetcher(&filingDocumentsFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelFilingDocuments,
			"Recent 10-K submissions for a company",
			[]string{provider.ParamSymbol},
			[]string{provider.ParamLimit},
			12*time.Hour, 5, time.Second,
		),
		client: client,
	})

	return p, nil
}

// --- AnnualFinancials fetcher ---

type annualFinancialsFetcher struct {
	provider.BaseFetcher
	client *Client
}

func (f *annualFinancialsFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	symbol := params[provider.ParamSymbol]
	if symbol == "" {
		return nil, &provider.ErrMissingParam{Param: provider.ParamSymbol}
	}

	years := 5
	if s := params[provider.ParamYears]; s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			years = n
		}
	}

	cacheKey := provider.CacheKey(f.ModelType(), params)
	if cached, ok := f.CacheGet(cacheKey); ok {
		return &provider.FetchResult{Data: cached, FetchedAt: time.Now(), Cached: true}, nil
	}

	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	subs, err := f.client.GetSubmissions(ctx, symbol)
	if err != nil {
		return nil, err
	}
	facts, err := f.client.GetCompanyFacts(ctx, symbol)
	if err != nil {
		return nil, err
	}

	fiscalYears := recentFiscalYears(subs.Filings.Recent, years)
	m := extractFinancials(facts, fiscalYears)

	f.CacheSetTTL(cacheKey, m, 12*time.Hour)
	return &provider.FetchResult{Data: m, FetchedAt: time.Now()}, nil
}

// recentFiscalYears derives up to limit distinct fiscal years from the
// 10-K rows of a filing list, ascending. The reported fy column wins when
// it parses; the year otherwise comes from the report date, falling back
// to the filing date.
func recentFiscalYears(recent FilingColumns, limit int) []int {
	type record struct {
		filed string
		year  int
	}

	var records []record
	for i, form := range recent.Form {
		if !annualForms[form] {
			continue
		}
		year := fiscalYearAt(recent, i)
		if year == 0 {
			continue
		}
		filed := ""
		if i < len(recent.FilingDate) {
			filed = recent.FilingDate[i]
		}
		records = append(records, record{filed: filed, year: year})
	}

	// Newest filings first, then collect distinct years.
	sort.SliceStable(records, func(i, j int) bool { return records[i].filed > records[j].filed })

	seen := make(map[int]bool)
	var years []int
	for _, r := range records {
		if seen[r.year] {
			continue
		}
		seen[r.year] = true
		years = append(years, r.year)
		if len(years) >= limit {
			break
		}
	}

	sort.Ints(years)
	return years
}

// fiscalYearAt resolves the fiscal year of one filing row: the fy column
// when present and parseable, else the report date year, else the filing
// date year, else 0.
func fiscalYearAt(recent FilingColumns, i int) int {
	if i < len(recent.FY) {
		if n, err := recent.FY[i].Int64(); err == nil && n > 0 {
			return int(n)
		}
	}
	if i < len(recent.ReportDate) {
		if y := yearOfDate(recent.ReportDate[i]); y != 0 {
			return y
		}
	}
	if i < len(recent.FilingDate) {
		return yearOfDate(recent.FilingDate[i])
	}
	return 0
}

// extractFinancials builds the per-metric annual series from company
// facts. For each fiscal year the first matching concept wins, preferring
// USD-denominated facts from annual filings with the most recent period
// end. A year with no usable fact still yields a point, with a nil value.
func extractFinancials(facts *CompanyFactsResponse, fiscalYears []int) models.AnnualMetrics {
	out := models.AnnualMetrics{}
	var concepts map[string]Concept
	if facts != nil {
		concepts = facts.Facts["us-gaap"]
	}

	for _, metric := range models.MetricNames {
		series := make([]models.FactPoint, 0, len(fiscalYears))
		for _, year := range fiscalYears {
			value, unit := lookupFact(concepts, metricConceptsUS[metric], year)
			p := models.FactPoint{
				Year:       models.IntPtr(year),
				Value:      value,
				Unit:       unit,
				PeriodType: models.PeriodDuration,
			}
			series = append(series, p)
		}
		out[metric] = series
	}
	return out
}

// lookupFact finds the best fact for one metric and fiscal year.
func lookupFact(concepts map[string]Concept, candidates []string, fiscalYear int) (*float64, string) {
	for _, name := range candidates {
		concept, ok := concepts[name]
		if !ok {
			continue
		}

		unitOrder := make([]string, 0, len(concept.Units))
		if _, hasUSD := concept.Units["USD"]; hasUSD {
			unitOrder = append(unitOrder, "USD")
		}
		others := make([]string, 0, len(concept.Units))
		for unit := range concept.Units {
			if unit != "USD" {
				others = append(others, unit)
			}
		}
		sort.Strings(others)
		unitOrder = append(unitOrder, others...)

		for _, unit := range unitOrder {
			entries := append([]FactEntry(nil), concept.Units[unit]...)
			sort.SliceStable(entries, func(i, j int) bool { return entries[i].End > entries[j].End })
			for _, entry := range entries {
				if entry.FY != fiscalYear || !annualForms[entry.Form] || entry.Val == nil {
					continue
				}
				v := *entry.Val
				return &v, unit
			}
		}
	}
	return nil, ""
}

// --- FilingDocuments fetcher ---

type filingDocumentsFetcher struct {
	provider.BaseFetcher
	client *Client
}

func (f *filingDocumentsFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	symbol := params[provider.ParamSymbol]
	if symbol == "" {
		return nil, &provider.ErrMissingParam{Param: provider.ParamSymbol}
	}

	limit := 10
	if s := params[provider.ParamLimit]; s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}

	cacheKey := provider.CacheKey(f.ModelType(), params)
	if cached, ok := f.CacheGet(cacheKey); ok {
		return &provider.FetchResult{Data: cached, FetchedAt: time.Now(), Cached: true}, nil
	}

	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	subs, err := f.client.GetSubmissions(ctx, symbol)
	if err != nil {
		return nil, err
	}

	recent := subs.Filings.Recent
	var filings []models.Filing
	for i, form := range recent.Form {
		if !annualForms[form] {
			continue
		}
		filing := models.Filing{
			Form:  form,
			Filer: subs.Name,
		}
		if i < len(recent.AccessionNumber) {
			filing.DocID = recent.AccessionNumber[i]
		}
		if i < len(recent.FilingDate) {
			filing.Filed = recent.FilingDate[i]
		}
		if i < len(recent.ReportDate) {
			filing.ReportDate = recent.ReportDate[i]
		}
		filing.FiscalYear = fiscalYearAt(recent, i)
		filings = append(filings, filing)
		if len(filings) >= limit {
			break
		}
	}

	f.CacheSet(cacheKey, filings)
	return &provider.FetchResult{Data: filings, FetchedAt: time.Now()}, nil
}

// yearOfDate pulls the year from an ISO date, 0 when undatable.
func yearOfDate(s string) int {
	if len(s) < 4 {
		return 0
	}
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t.Year()
	}
	y, err := strconv.Atoi(s[:4])
	if err != nil {
		return 0
	}
	return y
}
