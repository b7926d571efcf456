package edgar

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/pkg/models"
)

const submissionsJSON = `{
	"cik": 320193,
	"name": "Apple Inc.",
	"filings": {"recent": {
		"accessionNumber": ["0000320193-24-000123","0000320193-24-000080","0000320193-23-000106","0000320193-22-000108"],
		"filingDate":      ["2024-11-01","2024-08-02","2023-11-03","2022-10-28"],
		"reportDate":      ["2024-09-28","2024-06-29","2023-09-30","2022-09-24"],
		"form":            ["10-K","10-Q","10-K","10-K"]
	}}
}`

func companyFactsJSON() string {
	fact := func(end string, val float64, fy int, form string) string {
		return fmt.Sprintf(`{"end":%q,"val":%v,"fy":%d,"fp":"FY","form":%q}`, end, val, fy, form)
	}
	return `{
		"cik": 320193,
		"entityName": "Apple Inc.",
		"facts": {"us-gaap": {
			"RevenueFromContractWithCustomerExcludingAssessedTax": {"units": {"USD": [` +
		fact("2024-09-28", 391035000000, 2024, "10-K") + `,` +
		fact("2023-09-30", 383285000000, 2023, "10-K") + `,` +
		fact("2023-07-01", 81797000000, 2023, "10-Q") +
		`]}},
			"NetIncomeLoss": {"units": {"USD": [` +
		fact("2024-09-28", 93736000000, 2024, "10-K") +
		`]}},
			"OperatingIncomeLoss": {"units": {"JPY": [` +
		fact("2024-09-28", 1.0e13, 2024, "10-K") +
		`]}}
		}}
	}`
}

const tickerMapJSON = `{"0":{"cik_str":320193,"ticker":"AAPL","title":"Apple Inc."}}`

func newEdgarServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ua := r.Header.Get("User-Agent"); !strings.Contains(ua, "@") {
			t.Errorf("request without contact user agent: %q", ua)
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.Contains(r.URL.Path, "company_tickers"):
			fmt.Fprint(w, tickerMapJSON)
		case strings.Contains(r.URL.Path, "/submissions/CIK0000320193.json"):
			fmt.Fprint(w, submissionsJSON)
		case strings.Contains(r.URL.Path, "/companyfacts/CIK0000320193.json"):
			fmt.Fprint(w, companyFactsJSON())
		default:
			http.NotFound(w, r)
		}
	}))
}

func withTestServer(t *testing.T, srv *httptest.Server) {
	t.Helper()
	oldSubs, oldFacts, oldMap := submissionsBaseURL, companyFactsBaseURL, tickerMapURL
	submissionsBaseURL = srv.URL + "/submissions"
	companyFactsBaseURL = srv.URL + "/companyfacts"
	tickerMapURL = srv.URL + "/files/company_tickers.json"
	t.Cleanup(func() {
		submissionsBaseURL, companyFactsBaseURL, tickerMapURL = oldSubs, oldFacts, oldMap
	})
}

func TestNewClientRequiresUserAgent(t *testing.T) {
	if _, err := NewClient("  "); err == nil {
		t.Error("expected error for blank user agent")
	}
	if _, err := NewClient("TradeChart JP support@example.com"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLookupCIK(t *testing.T) {
	srv := newEdgarServer(t)
	defer srv.Close()
	withTestServer(t, srv)

	client, err := NewClient("TradeChart JP support@example.com")
	if err != nil {
		t.Fatal(err)
	}

	ctx := context.Background()

	// Numeric identifiers are zero-padded, no lookup needed.
	cik, err := client.LookupCIK(ctx, "320193")
	if err != nil {
		t.Fatalf("LookupCIK numeric: %v", err)
	}
	if cik != "0000320193" {
		t.Errorf("cik = %q", cik)
	}

	// Tickers resolve through the mapping file, case-insensitively.
	cik, err = client.LookupCIK(ctx, "aapl")
	if err != nil {
		t.Fatalf("LookupCIK ticker: %v", err)
	}
	if cik != "0000320193" {
		t.Errorf("cik = %q", cik)
	}

	if _, err := client.LookupCIK(ctx, "NOPE"); err == nil {
		t.Error("expected error for unknown ticker")
	}
}

// data.sec.gov compresses responses when the request allows it; decoding
// must still work because the transport negotiates and unwraps gzip itself.
func TestGzipEncodedResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.Header().Set("Content-Encoding", "gzip")
			gz := gzip.NewWriter(w)
			defer gz.Close()
			fmt.Fprint(gz, submissionsJSON)
			return
		}
		fmt.Fprint(w, submissionsJSON)
	}))
	defer srv.Close()
	withTestServer(t, srv)

	client, err := NewClient("TradeChart JP support@example.com")
	if err != nil {
		t.Fatal(err)
	}

	subs, err := client.GetSubmissions(context.Background(), "320193")
	if err != nil {
		t.Fatalf("GetSubmissions over gzip: %v", err)
	}
	if subs.Name != "Apple Inc." {
		t.Errorf("name = %q", subs.Name)
	}
	if len(subs.Filings.Recent.Form) != 4 {
		t.Errorf("expected 4 filing rows, got %d", len(subs.Filings.Recent.Form))
	}
}

func TestRecentFiscalYears(t *testing.T) {
	recent := FilingColumns{
		AccessionNumber: []string{"a", "b", "c", "d"},
		FilingDate:      []string{"2024-11-01", "2024-08-02", "2023-11-03", "2022-10-28"},
		ReportDate:      []string{"2024-09-28", "2024-06-29", "2023-09-30", "2022-09-24"},
		Form:            []string{"10-K", "10-Q", "10-K", "10-K"},
	}

	years := recentFiscalYears(recent, 2)
	if len(years) != 2 {
		t.Fatalf("expected 2 years, got %v", years)
	}
	// Ascending, newest two fiscal years only.
	if years[0] != 2023 || years[1] != 2024 {
		t.Errorf("years = %v, want [2023 2024]", years)
	}

	years = recentFiscalYears(recent, 10)
	if len(years) != 3 {
		t.Errorf("expected 3 years, got %v", years)
	}
}

func TestFiscalYearColumnPreferred(t *testing.T) {
	// A 52/53-week filer's fiscal 2024 report can end in January 2025:
	// the reported fy column must win over the report-date year.
	recent := FilingColumns{
		AccessionNumber: []string{"a", "b"},
		FilingDate:      []string{"2025-03-20", "2024-03-21"},
		ReportDate:      []string{"2025-01-31", "2024-02-02"},
		Form:            []string{"10-K", "10-K"},
		FY:              []json.Number{"2024", "2023"},
	}

	years := recentFiscalYears(recent, 10)
	if len(years) != 2 || years[0] != 2023 || years[1] != 2024 {
		t.Errorf("years = %v, want [2023 2024]", years)
	}
}

func TestFiscalYearAtFallbacks(t *testing.T) {
	recent := FilingColumns{
		FilingDate: []string{"2024-11-01", "2023-11-03", "2022-10-28"},
		ReportDate: []string{"2024-09-28", "", ""},
		Form:       []string{"10-K", "10-K", "10-K"},
		FY:         []json.Number{"", "2023", ""},
	}

	// Unparseable fy falls back to the report date.
	if got := fiscalYearAt(recent, 0); got != 2024 {
		t.Errorf("row 0: got %d, want 2024", got)
	}
	// fy wins when present.
	if got := fiscalYearAt(recent, 1); got != 2023 {
		t.Errorf("row 1: got %d, want 2023", got)
	}
	// No fy, no report date: filing date year.
	if got := fiscalYearAt(recent, 2); got != 2022 {
		t.Errorf("row 2: got %d, want 2022", got)
	}
}

func TestAnnualFinancialsFetch(t *testing.T) {
	srv := newEdgarServer(t)
	defer srv.Close()
	withTestServer(t, srv)

	p, err := New("TradeChart JP support@example.com")
	if err != nil {
		t.Fatal(err)
	}

	f := p.Fetcher(provider.ModelAnnualFinancials)
	res, err := f.Fetch(context.Background(), provider.QueryParams{
		provider.ParamSymbol: "AAPL",
		provider.ParamYears:  "2",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	m, ok := res.Data.(models.AnnualMetrics)
	if !ok {
		t.Fatalf("expected AnnualMetrics, got %T", res.Data)
	}

	rev := m[models.MetricRevenue]
	if len(rev) != 2 {
		t.Fatalf("expected 2 revenue points, got %d", len(rev))
	}
	if *rev[0].Year != 2023 || *rev[0].Value != 383285000000 {
		t.Errorf("2023 revenue point: %+v", rev[0])
	}
	if *rev[1].Year != 2024 || *rev[1].Value != 391035000000 {
		t.Errorf("2024 revenue point: %+v", rev[1])
	}
	if rev[0].Unit != "USD" {
		t.Errorf("unit = %q", rev[0].Unit)
	}

	// 2023 net income has no annual fact: the point exists with nil value.
	ni := m[models.MetricNetIncome]
	if len(ni) != 2 {
		t.Fatalf("expected 2 net income points, got %d", len(ni))
	}
	if ni[0].Value != nil {
		t.Errorf("2023 net income should be nil, got %v", *ni[0].Value)
	}
	if ni[1].Value == nil || *ni[1].Value != 93736000000 {
		t.Errorf("2024 net income point: %+v", ni[1])
	}

	// Non-USD facts are still usable when no USD series exists.
	oi := m[models.MetricOperatingIncome]
	if oi[1].Value == nil || oi[1].Unit != "JPY" {
		t.Errorf("2024 operating income point: %+v", oi[1])
	}

	// Every tracked metric is present.
	for _, name := range models.MetricNames {
		if _, ok := m[name]; !ok {
			t.Errorf("missing metric %s", name)
		}
	}
}

func TestQuarterlyFactsExcluded(t *testing.T) {
	var half = 81797000000.0
	concepts := map[string]Concept{
		"Revenues": {Units: map[string][]FactEntry{
			"USD": {{End: "2023-07-01", Val: &half, FY: 2023, Form: "10-Q"}},
		}},
	}

	value, _ := lookupFact(concepts, []string{"Revenues"}, 2023)
	if value != nil {
		t.Errorf("10-Q fact should not be used, got %v", *value)
	}
}

func TestFilingDocumentsFetch(t *testing.T) {
	srv := newEdgarServer(t)
	defer srv.Close()
	withTestServer(t, srv)

	p, err := New("TradeChart JP support@example.com")
	if err != nil {
		t.Fatal(err)
	}

	f := p.Fetcher(provider.ModelFilingDocuments)
	res, err := f.Fetch(context.Background(), provider.QueryParams{
		provider.ParamSymbol: "AAPL",
		provider.ParamLimit:  "2",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	filings, ok := res.Data.([]models.Filing)
	if !ok {
		t.Fatalf("expected []models.Filing, got %T", res.Data)
	}
	if len(filings) != 2 {
		t.Fatalf("expected 2 filings, got %d", len(filings))
	}
	if filings[0].Form != "10-K" || filings[0].FiscalYear != 2024 {
		t.Errorf("filings[0] = %+v", filings[0])
	}
	if filings[0].Filer != "Apple Inc." {
		t.Errorf("filer = %q", filings[0].Filer)
	}
}

func TestYearOfDate(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"2024-09-28", 2024},
		{"2024", 2024},
		{"abc", 0},
		{"", 0},
	}
	for _, tt := range tests {
		if got := yearOfDate(tt.in); got != tt.want {
			t.Errorf("yearOfDate(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
