// Package tdnet implements the TDnet timely-disclosure provider. TDnet
// publishes one JSON snapshot per trading day; the provider scans a
// lookback window of daily files and filters disclosures by security code.
package tdnet

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/tradechartjp/tradechart/internal/infra"
	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/pkg/models"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

const providerName = "tdnet"

// DefaultBaseURL points at the public daily disclosure index.
const DefaultBaseURL = "https://www.release.tdnet.info/inbs"

// dailyFileFormat names one day's snapshot, e.g. I_main_00_20240618.json.
const dailyFileFormat = "I_main_00_20060102.json"

// Provider implements provider.Provider for TDnet.
type Provider struct {
	provider.BaseProvider
	baseURL string
}

// New creates the TDnet provider. An empty baseURL selects the default
// public index.
func New(baseURL string) *Provider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	p := &Provider{
		BaseProvider: provider.NewBaseProvider(
			providerName,
			"TDnet - timely disclosure events from the Tokyo Stock Exchange",
			"https://www.release.tdnet.info",
			nil,
		),
		baseURL: baseURL,
	}
	p.RegisterFetcher(newDisclosureEventsFetcher(baseURL))
	return p
}

// --- DisclosureEvents fetcher ---

type disclosureEventsFetcher struct {
	provider.BaseFetcher
	baseURL string
}

func newDisclosureEventsFetcher(baseURL string) *disclosureEventsFetcher {
	return &disclosureEventsFetcher{
		BaseFetcher: provider.NewBaseFetcherWithOpts(
			provider.ModelDisclosureEvents,
			"Recent TDnet disclosures for a security code",
			[]string{provider.ParamSymbol},
			[]string{provider.ParamDays},
			30*time.Minute, 5, time.Second,
		),
		baseURL: baseURL,
	}
}

// dailyItem is one row of a TDnet daily snapshot. Some mirrors use "date",
// others "tdnet_date" for the disclosure timestamp.
type dailyItem struct {
	Code      string `json:"code"`
	Title     string `json:"title"`
	Date      string `json:"date"`
	TdnetDate string `json:"tdnet_date"`
	URL       string `json:"url"`
}

type dailyFile struct {
	Items []dailyItem `json:"items"`
}

func (f *disclosureEventsFetcher) Fetch(ctx context.Context, params provider.QueryParams) (*provider.FetchResult, error) {
	symbol := params[provider.ParamSymbol]
	if symbol == "" {
		return nil, &provider.ErrMissingParam{Param: provider.ParamSymbol}
	}
	code := utils.NormalizeTicker(symbol)

	days := 30
	if s := params[provider.ParamDays]; s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			days = n
		}
	}

	cacheKey := provider.CacheKey(f.ModelType(), params)
	if cached, ok := f.CacheGet(cacheKey); ok {
		return &provider.FetchResult{Data: cached, FetchedAt: time.Now(), Cached: true}, nil
	}

	var events []models.DisclosureEvent
	day := utils.NowJST()
	for offset := 0; offset < days; offset++ {
		items, err := f.fetchDay(ctx, day.AddDate(0, 0, -offset))
		if err != nil {
			// Missing or malformed days (weekends, holidays, truncated
			// uploads) are skipped, not fatal.
			continue
		}
		for _, item := range items {
			if item.Code != code {
				continue
			}
			ts := item.Date
			if ts == "" {
				ts = item.TdnetDate
			}
			events = append(events, models.DisclosureEvent{
				Code:      item.Code,
				Title:     item.Title,
				Timestamp: ts,
				URL:       item.URL,
			})
		}
	}

	// Newest first; the timestamp format sorts lexicographically.
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp > events[j].Timestamp
	})

	f.CacheSet(cacheKey, events)
	return &provider.FetchResult{Data: events, FetchedAt: time.Now()}, nil
}

// fetchDay downloads and decodes one daily snapshot. The payload is either
// a wrapped {"items": [...]} object or a bare array.
func (f *disclosureEventsFetcher) fetchDay(ctx context.Context, day time.Time) ([]dailyItem, error) {
	if err := f.RateLimit(ctx); err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/%s", f.baseURL, day.Format(dailyFileFormat))
	body, _, err := infra.DoGet(ctx, url, map[string]string{"Accept": "application/json"})
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var raw json.RawMessage
	if err := json.NewDecoder(body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode daily file: %w", err)
	}

	var wrapped dailyFile
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Items != nil {
		return wrapped.Items, nil
	}

	var bare []dailyItem
	if err := json.Unmarshal(raw, &bare); err != nil {
		return nil, fmt.Errorf("decode daily items: %w", err)
	}
	return bare, nil
}
