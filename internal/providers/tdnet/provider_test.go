package tdnet

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tradechartjp/tradechart/internal/provider"
	"github.com/tradechartjp/tradechart/pkg/models"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

// newTdnetServer serves today's snapshot in wrapped form, yesterday's as a
// bare array, garbage two days back, and 404 for everything older.
func newTdnetServer(t *testing.T) *httptest.Server {
	t.Helper()
	now := utils.NowJST()
	today := now.Format("20060102")
	yesterday := now.AddDate(0, 0, -1).Format("20060102")
	twoBack := now.AddDate(0, 0, -2).Format("20060102")

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, today):
			fmt.Fprint(w, `{"items":[
				{"code":"7203","title":"剰余金の配当に関するお知らせ","date":"`+now.Format("2006-01-02")+` 15:00","url":"https://example.com/a.pdf"},
				{"code":"6758","title":"他社の開示","date":"`+now.Format("2006-01-02")+` 14:00","url":"https://example.com/b.pdf"}
			]}`)
		case strings.Contains(r.URL.Path, yesterday):
			fmt.Fprint(w, `[
				{"code":"7203","title":"業績予想の修正","tdnet_date":"`+now.AddDate(0, 0, -1).Format("2006-01-02")+` 12:00","url":"https://example.com/c.pdf"}
			]`)
		case strings.Contains(r.URL.Path, twoBack):
			fmt.Fprint(w, `{"items": [broken`)
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestDisclosureEventsFetch(t *testing.T) {
	srv := newTdnetServer(t)
	defer srv.Close()

	p := New(srv.URL)
	f := p.Fetcher(provider.ModelDisclosureEvents)
	if f == nil {
		t.Fatal("no DisclosureEvents fetcher")
	}

	res, err := f.Fetch(context.Background(), provider.QueryParams{
		provider.ParamSymbol: "7203",
		provider.ParamDays:   "5",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	events, ok := res.Data.([]models.DisclosureEvent)
	if !ok {
		t.Fatalf("expected []models.DisclosureEvent, got %T", res.Data)
	}

	// The 6758 row is filtered out; the broken day is skipped.
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}

	// Newest first.
	if events[0].Title != "剰余金の配当に関するお知らせ" {
		t.Errorf("events[0].Title = %q", events[0].Title)
	}
	if events[1].Title != "業績予想の修正" {
		t.Errorf("events[1].Title = %q", events[1].Title)
	}
	// Fallback timestamp field.
	if events[1].Timestamp == "" {
		t.Error("tdnet_date fallback not applied")
	}
	for _, ev := range events {
		if ev.Code != "7203" {
			t.Errorf("unexpected code %q", ev.Code)
		}
	}
}

func TestDisclosureEventsEmptyWindow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	p := New(srv.URL)
	f := p.Fetcher(provider.ModelDisclosureEvents)

	res, err := f.Fetch(context.Background(), provider.QueryParams{
		provider.ParamSymbol: "7203",
		provider.ParamDays:   "3",
	})
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	events := res.Data.([]models.DisclosureEvent)
	if len(events) != 0 {
		t.Errorf("expected no events, got %d", len(events))
	}
}

func TestProviderDefaults(t *testing.T) {
	p := New("")
	if p.Info().Name != "tdnet" {
		t.Errorf("name = %q", p.Info().Name)
	}
	if p.baseURL != DefaultBaseURL {
		t.Errorf("baseURL = %q", p.baseURL)
	}
	supported := p.SupportedModels()
	if len(supported) != 1 || supported[0] != provider.ModelDisclosureEvents {
		t.Errorf("supported models = %v", supported)
	}
}
