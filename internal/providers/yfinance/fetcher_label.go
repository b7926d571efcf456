package yfinance

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tradechartjp/tradechart/internal/infra"
	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

// jpTickerNames pins display names for codes whose Yahoo Finance Japan
// pages render the name client-side and scrape poorly.
var jpTickerNames = map[string]string{
	"285A": "キオクシアホールディングス",
	"6857": "アドバンテスト",
	"6525": "KOKUSAI ELECTRIC",
	"3110": "日東紡",
	"6871": "日本マイクロニクス",
	"5803": "フジクラ",
	"4062": "イビデン",
	"7011": "三菱重工業",
	"5805": "SWCC",
}

var (
	titleCodeRe   = regexp.MustCompile(`【[^】]+】`)
	titleSuffixRe = regexp.MustCompile(`の株価・株式情報$`)
	multiSpaceRe  = regexp.MustCompile(`\s+`)
)

// --- EquityLabel fetcher ---

type equityLabelFetcher struct {
	provider.BaseFetcher
}

func newEquityLabelFetcher() *equityLabelFetcher {
	return &equityLabelFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelEquityLabel,
			"Japanese company display name for a TSE security code",
			[]string{provider.ParamSymbol},
			nil,
			24*time.Hour, 2, time.Second,
		),
	}
}

// Fetch returns a display label of the form "7203 トヨタ自動車", falling
// back to the bare code when no name can be resolved.
func (f *equityLabelFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	symbol := params[provider.ParamSymbol]
	if symbol == "" {
		return nil, &provider.ErrMissingParam{Param: provider.ParamSymbol}
	}
	code := utils.NormalizeTicker(symbol)
	if code == "" {
		return nil, fmt.Errorf("empty ticker")
	}

	cacheKey := provider.CacheKey(f.ModelType(), params)
	if cached, ok := f.CacheGet(cacheKey); ok {
		return newCachedResult(cached), nil
	}

	if name, ok := jpTickerNames[code]; ok {
		label := code + " " + name
		f.CacheSetTTL(cacheKey, label, 24*time.Hour)
		return newResult(label), nil
	}

	label := code
	if utils.IsJPTicker(code) {
		if err := f.RateLimit(ctx); err != nil {
			return nil, err
		}
		if name := fetchNameFromYahooJP(ctx, code); name != "" {
			label = code + " " + name
		}
	}

	f.CacheSetTTL(cacheKey, label, 24*time.Hour)
	return newResult(label), nil
}

// fetchNameFromYahooJP scrapes the company name from the Yahoo Finance
// Japan quote page. Returns "" on any failure.
func fetchNameFromYahooJP(ctx context.Context, code string) string {
	headers := map[string]string{
		"User-Agent":      "Mozilla/5.0",
		"Accept-Language": "ja-JP,ja;q=0.9,en-US;q=0.8,en;q=0.7",
		"Referer":         "https://finance.yahoo.co.jp/",
	}

	body, _, err := infra.DoGet(ctx, jpQuoteURL+utils.ToYFinanceTicker(code), headers)
	if err != nil {
		return ""
	}
	defer body.Close()

	doc, err := goquery.NewDocumentFromReader(body)
	if err != nil {
		return ""
	}

	candidates := []string{
		strings.TrimSpace(doc.Find("h1").First().Text()),
		strings.TrimSpace(doc.Find("title").First().Text()),
	}
	for _, raw := range candidates {
		if name := normalizeJPName(raw); name != "" {
			return name
		}
	}
	return ""
}

// normalizeJPName strips the boilerplate Yahoo Finance Japan wraps around
// a company name in page titles.
func normalizeJPName(text string) string {
	s := strings.TrimSpace(text)
	if s == "" {
		return ""
	}
	s = strings.NewReplacer("（株）", "", "(株)", "", "㈱", "").Replace(s)
	s = titleCodeRe.ReplaceAllString(s, "")
	if i := strings.Index(s, " - Yahoo!ファイナンス"); i >= 0 {
		s = s[:i]
	}
	s = titleSuffixRe.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "：株価・株式情報", "")
	s = strings.Trim(s, " -:")
	s = multiSpaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(s)
}
