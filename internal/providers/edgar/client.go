// Package edgar implements the SEC EDGAR data provider for US filings.
// It reads the submissions and companyfacts JSON APIs on data.sec.gov,
// which require a descriptive User-Agent but no API key.
package edgar

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/tradechartjp/tradechart/internal/infra"
)

// API endpoints are variables so tests can point the client at a local server.
var (
	submissionsBaseURL  = "https://data.sec.gov/submissions"
	companyFactsBaseURL = "https://data.sec.gov/api/xbrl/companyfacts"
	tickerMapURL        = "https://www.sec.gov/files/company_tickers.json"
)

// Client talks to the SEC EDGAR JSON APIs.
type Client struct {
	userAgent string
	limiter   *infra.RateLimiter

	mu        sync.Mutex
	tickerMap map[string]string // upper ticker -> zero-padded CIK
}

// NewClient creates an EDGAR client. The SEC requires requests to identify
// the caller, so userAgent must name a company and contact address.
// Requests are throttled to stay under the SEC fair-access limit of
// 10 requests per second.
func NewClient(userAgent string) (*Client, error) {
	if strings.TrimSpace(userAgent) == "" {
		return nil, fmt.Errorf("edgar client requires a user agent")
	}
	return &Client{
		userAgent: userAgent,
		limiter:   infra.NewRateLimiter(10, time.Second),
	}, nil
}

// --- Response types ---

// SubmissionsResponse is the shape of /submissions/CIK##########.json.
type SubmissionsResponse struct {
	CIK     json.Number `json:"cik"`
	Name    string      `json:"name"`
	Filings struct {
		Recent FilingColumns `json:"recent"`
	} `json:"filings"`
}

// FilingColumns is EDGAR's column-oriented filing list. All slices are
// parallel; rows are newest first. FY is the reported fiscal year; rows
// without one carry a zero or the column is absent entirely.
type FilingColumns struct {
	AccessionNumber []string      `json:"accessionNumber"`
	FilingDate      []string      `json:"filingDate"`
	ReportDate      []string      `json:"reportDate"`
	Form            []string      `json:"form"`
	FY              []json.Number `json:"fy"`
}

// CompanyFactsResponse is the shape of /api/xbrl/companyfacts/CIK####.json.
type CompanyFactsResponse struct {
	CIK        json.Number                  `json:"cik"`
	EntityName string                       `json:"entityName"`
	Facts      map[string]map[string]Concept `json:"facts"`
}

// Concept is one us-gaap (or dei) concept with facts grouped by unit.
type Concept struct {
	Label string                 `json:"label"`
	Units map[string][]FactEntry `json:"units"`
}

// FactEntry is one reported fact of a concept.
type FactEntry struct {
	Start string   `json:"start"`
	End   string   `json:"end"`
	Val   *float64 `json:"val"`
	FY    int      `json:"fy"`
	FP    string   `json:"fp"`
	Form  string   `json:"form"`
	Filed string   `json:"filed"`
}

// --- API calls ---

// GetSubmissions fetches the filing history for a company.
func (c *Client) GetSubmissions(ctx context.Context, tickerOrCIK string) (*SubmissionsResponse, error) {
	cik, err := c.LookupCIK(ctx, tickerOrCIK)
	if err != nil {
		return nil, err
	}
	var resp SubmissionsResponse
	url := fmt.Sprintf("%s/CIK%s.json", submissionsBaseURL, cik)
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("edgar submissions %s: %w", cik, err)
	}
	return &resp, nil
}

// GetCompanyFacts fetches all XBRL facts the SEC has on file for a company.
func (c *Client) GetCompanyFacts(ctx context.Context, tickerOrCIK string) (*CompanyFactsResponse, error) {
	cik, err := c.LookupCIK(ctx, tickerOrCIK)
	if err != nil {
		return nil, err
	}
	var resp CompanyFactsResponse
	url := fmt.Sprintf("%s/CIK%s.json", companyFactsBaseURL, cik)
	if err := c.getJSON(ctx, url, &resp); err != nil {
		return nil, fmt.Errorf("edgar companyfacts %s: %w", cik, err)
	}
	return &resp, nil
}

// LookupCIK resolves a ticker or bare CIK to the zero-padded ten-digit
// form EDGAR URLs use. The ticker table is fetched once and memoized.
func (c *Client) LookupCIK(ctx context.Context, tickerOrCIK string) (string, error) {
	id := strings.TrimSpace(tickerOrCIK)
	if id == "" {
		return "", fmt.Errorf("empty ticker or CIK")
	}

	if n, err := strconv.Atoi(id); err == nil {
		return fmt.Sprintf("%010d", n), nil
	}

	if err := c.loadTickerMap(ctx); err != nil {
		return "", err
	}

	c.mu.Lock()
	cik, ok := c.tickerMap[strings.ToUpper(id)]
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("unknown ticker %q", tickerOrCIK)
	}
	return cik, nil
}

func (c *Client) loadTickerMap(ctx context.Context) error {
	c.mu.Lock()
	loaded := c.tickerMap != nil
	c.mu.Unlock()
	if loaded {
		return nil
	}

	// company_tickers.json is an object keyed by row index.
	var raw map[string]struct {
		CIKStr json.Number `json:"cik_str"`
		Ticker string      `json:"ticker"`
	}
	if err := c.getJSON(ctx, tickerMapURL, &raw); err != nil {
		return fmt.Errorf("edgar ticker map: %w", err)
	}

	m := make(map[string]string, len(raw))
	for _, row := range raw {
		n, err := row.CIKStr.Int64()
		if err != nil {
			continue
		}
		m[strings.ToUpper(row.Ticker)] = fmt.Sprintf("%010d", n)
	}

	c.mu.Lock()
	c.tickerMap = m
	c.mu.Unlock()
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, dest any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	// Leave Accept-Encoding to the transport: setting it by hand turns off
	// net/http's transparent gzip decompression and data.sec.gov gzips
	// responses whenever the header allows it.
	headers := map[string]string{
		"User-Agent": c.userAgent,
		"Accept":     "application/json",
	}
	body, _, err := infra.DoGet(ctx, url, headers)
	if err != nil {
		return err
	}
	defer body.Close()
	return json.NewDecoder(body).Decode(dest)
}
