package infra

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCacheSetGet(t *testing.T) {
	c := NewCache(time.Minute)
	c.Set("k", 42)
	v, ok := c.Get("k")
	if !ok || v.(int) != 42 {
		t.Fatalf("expected 42, got %v (%v)", v, ok)
	}
}

func TestCacheExpiry(t *testing.T) {
	c := NewCache(time.Minute)
	c.SetWithTTL("k", "v", -time.Second)
	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to miss")
	}
}

func TestRateLimiterAllowsBurst(t *testing.T) {
	rl := NewRateLimiter(3, time.Hour)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := rl.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
	// Fourth token is unavailable; a cancelled context must unblock.
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	if err := rl.Wait(cctx); err == nil {
		t.Error("expected context cancellation error")
	}
}

func TestDoGet(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "tradechart-test" {
			t.Errorf("missing custom header, got %q", r.Header.Get("User-Agent"))
		}
		w.Write([]byte("ok")) //nolint:errcheck
	}))
	defer srv.Close()

	body, status, err := DoGet(context.Background(), srv.URL, map[string]string{"User-Agent": "tradechart-test"})
	if err != nil {
		t.Fatalf("DoGet: %v", err)
	}
	defer body.Close()
	if status != http.StatusOK {
		t.Errorf("status = %d", status)
	}
	data, _ := io.ReadAll(body)
	if string(data) != "ok" {
		t.Errorf("body = %q", data)
	}
}

func TestDoGetNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	_, status, err := DoGet(context.Background(), srv.URL, nil)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if status != http.StatusNotFound {
		t.Errorf("status = %d", status)
	}
}

func TestFileCacheRoundTrip(t *testing.T) {
	fc, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	type payload struct {
		Name string `json:"name"`
		N    int    `json:"n"`
	}
	if err := fc.Set("edinet:7203:5", payload{Name: "toyota", N: 5}, time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}

	var got payload
	if !fc.Get("edinet:7203:5", &got) {
		t.Fatal("expected cache hit")
	}
	if got.Name != "toyota" || got.N != 5 {
		t.Errorf("got %+v", got)
	}
}

func TestFileCacheExpired(t *testing.T) {
	fc, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := fc.Set("k", "v", -time.Hour); err != nil {
		t.Fatal(err)
	}
	var got string
	if fc.Get("k", &got) {
		t.Error("expected expired entry to miss")
	}
}

func TestFileCacheMissingKey(t *testing.T) {
	fc, err := NewFileCache(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	var got string
	if fc.Get("never-set", &got) {
		t.Error("expected miss for unknown key")
	}
}
