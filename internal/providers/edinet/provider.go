package edinet

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/tradechartjp/tradechart/internal/infra"
	"github.com/tradechartjp/tradechart/internal/metrics"
	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/internal/xbrl"
	"github.com/tradechartjp/tradechart/pkg/models"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

const providerName = "edinet"

// Config carries the EDINET provider settings.
type Config struct {
	UserAgent   string
	DownloadDir string
	CacheDir    string
	// CacheTTL bounds how long extracted statement sets are reused.
	CacheTTL time.Duration
}

// Provider implements provider.Provider for EDINET.
type Provider struct {
	provider.BaseProvider
	client *Client
}

// New creates the EDINET provider and registers its fetchers.
func New(cfg Config) (*Provider, error) {
	if cfg.UserAgent == "" {
		cfg.UserAgent = "tradechart/1.0"
	}
	if cfg.DownloadDir == "" {
		cfg.DownloadDir = "data/edinet"
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 12 * time.Hour
	}

	client, err := NewClient(cfg.UserAgent, cfg.DownloadDir)
	if err != nil {
		return nil, err
	}

	var fileCache *infra.FileCache
	if cfg.CacheDir != "" {
		fileCache, err = infra.NewFileCache(cfg.CacheDir)
		if err != nil {
			return nil, err
		}
	}

	p := &Provider{
		BaseProvider: provider.NewBaseProvider(
			providerName,
			"EDINET - Japanese regulatory filings and XBRL financial statements",
			"https://disclosure.edinet-fsa.go.jp",
			nil, // the v2 document API needs no credentials
		),
		client: client,
	}

	p.RegisterFetcher(&annualFinancialsFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelAnnualFinancials,
			"Annual statement series extracted from EDINET XBRL filings",
			[]string{provider.ParamSymbol},
			[]string{provider.ParamYears},
			cfg.CacheTTL, 2, time.Second,
		),
		client:    client,
		extractor: xbrl.NewJP(),
		fileCache: fileCache,
		cacheTTL:  cfg.CacheTTL,
	})

	p.RegisterFetcher(&filingDocumentsFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelFilingDocuments,
			"Recent EDINET filing documents for a company",
			[]string{provider.ParamSymbol},
			[]string{provider.ParamLimit},
			cfg.CacheTTL, 2, time.Second,
		),
		client: client,
	})

	return p, nil
}

// Ping checks connectivity to the EDINET API by requesting today's
// document list.
func (p *Provider) Ping(ctx context.Context) error {
	_, err := p.client.documentsByDate(ctx, utils.NowJST().Format("2006-01-02"))
	return err
}

// --- AnnualFinancials fetcher ---

type annualFinancialsFetcher struct {
	provider.BaseFetcher
	client    *Client
	extractor *xbrl.Extractor
	fileCache *infra.FileCache
	cacheTTL  time.Duration
}

func (f *annualFinancialsFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	symbol := params[provider.ParamSymbol]
	if symbol == "" {
		return nil, &provider.ErrMissingParam{Param: provider.ParamSymbol}
	}
	code := utils.NormalizeTicker(symbol)

	years := 5
	if s := params[provider.ParamYears]; s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			years = n
		}
	}

	cacheKey := fmt.Sprintf("edinet:%s:%d", code, years)
	if f.fileCache != nil {
		var cached models.AnnualMetrics
		if f.fileCache.Get(cacheKey, &cached) && len(cached) > 0 {
			return &provider.FetchResult{Data: cached, FetchedAt: time.Now(), Cached: true}, nil
		}
	}

	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	rows, err := f.client.ListDocuments(ctx, code, ListOptions{
		FormCodes:       []string{FormAnnualReport, FormSemiAnnualReport},
		Limit:           years,
		UseSecurityCode: isNumeric(code),
	})
	if err != nil {
		return nil, fmt.Errorf("edinet list %s: %w", code, err)
	}

	merged := models.AnnualMetrics{}
	for _, row := range rows {
		m, err := f.extractFiling(ctx, row)
		if err != nil {
			// One broken filing must not sink the series.
			log.Warn().Err(err).Str("doc_id", row.DocID).Str("code", code).
				Msg("skipping unparseable filing")
			continue
		}
		merged = metrics.MergeAnnual(merged, m)
	}

	if f.fileCache != nil && len(merged) > 0 {
		if err := f.fileCache.Set(cacheKey, merged, f.cacheTTL); err != nil {
			log.Warn().Err(err).Str("key", cacheKey).Msg("file cache write failed")
		}
	}

	return &provider.FetchResult{Data: merged, FetchedAt: time.Now()}, nil
}

// extractFiling downloads one filing archive and runs its XBRL instance
// through the extractor.
func (f *annualFinancialsFetcher) extractFiling(ctx context.Context, row DocumentRow) (models.AnnualMetrics, error) {
	zipPath, err := f.client.DownloadDocument(ctx, row.DocID)
	if err != nil {
		return nil, err
	}

	xbrlPath, err := f.client.ExtractPrimaryXBRL(zipPath)
	if err != nil {
		return nil, err
	}
	if xbrlPath == "" {
		return nil, fmt.Errorf("filing %s has no XBRL instance", row.DocID)
	}

	file, err := os.Open(xbrlPath)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", xbrlPath, err)
	}
	defer file.Close()

	return f.extractor.Parse(file)
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
	code := utils.NormalizeTicker(symbol)

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

	rows, err := f.client.ListDocuments(ctx, code, ListOptions{
		FormCodes:       []string{FormAnnualReport, FormSemiAnnualReport},
		Limit:           limit,
		UseSecurityCode: isNumeric(code),
	})
	if err != nil {
		return nil, fmt.Errorf("edinet list %s: %w", code, err)
	}

	filings := make([]models.Filing, 0, len(rows))
	for _, row := range rows {
		filings = append(filings, models.Filing{
			DocID:      row.DocID,
			Form:       row.DocTypeCode,
			Filed:      row.SubmitDateTime,
			ReportDate: row.PeriodEnd,
			Filer:      row.FilerName,
		})
	}

	f.CacheSet(cacheKey, filings)
	return &provider.FetchResult{Data: filings, FetchedAt: time.Now()}, nil
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
