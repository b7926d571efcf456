package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/tradechartjp/tradechart/pkg/models"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

// FileStore keeps alerts and holdings in two JSON files under a data
// directory. Writes go through a temp file and rename so a crash never
// leaves a half-written file behind.
type FileStore struct {
	mu            sync.Mutex
	alertsFile    string
	portfolioFile string
}

// NewFileStore creates the data directory if needed and returns a store
// backed by alerts.json and portfolio.json inside it.
func NewFileStore(dataDir string) (*FileStore, error) {
	if dataDir == "" {
		dataDir = "data"
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	return &FileStore{
		alertsFile:    filepath.Join(dataDir, "alerts.json"),
		portfolioFile: filepath.Join(dataDir, "portfolio.json"),
	}, nil
}

func (s *FileStore) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadAlerts()
}

func (s *FileStore) AddAlert(ctx context.Context, alert models.Alert) (models.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alert.Ticker = utils.NormalizeTicker(alert.Ticker)
	if alert.Ticker == "" {
		return models.Alert{}, fmt.Errorf("ticker is required")
	}
	if alert.ID == "" {
		alert.ID = uuid.NewString()
	}
	if alert.Type == "" {
		alert.Type = "RSI"
	}

	alerts, err := s.loadAlerts()
	if err != nil {
		return models.Alert{}, err
	}
	alerts = append(alerts, alert)
	if err := writeJSONFile(s.alertsFile, alerts); err != nil {
		return models.Alert{}, err
	}
	return alert, nil
}

func (s *FileStore) DeleteAlert(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	alerts, err := s.loadAlerts()
	if err != nil {
		return err
	}
	kept := alerts[:0]
	found := false
	for _, a := range alerts {
		if a.ID == id {
			found = true
			continue
		}
		kept = append(kept, a)
	}
	if !found {
		return ErrNotFound
	}
	return writeJSONFile(s.alertsFile, kept)
}

func (s *FileStore) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadHoldings()
}

func (s *FileStore) UpsertHolding(ctx context.Context, ticker string, shares float64) (models.Holding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := utils.NormalizeTicker(ticker)
	if normalized == "" {
		return models.Holding{}, fmt.Errorf("ticker is required")
	}
	if shares <= 0 {
		return models.Holding{}, fmt.Errorf("shares must be positive")
	}

	holdings, err := s.loadHoldings()
	if err != nil {
		return models.Holding{}, err
	}
	for i := range holdings {
		if holdings[i].Ticker == normalized {
			holdings[i].Shares = shares
			if err := writeJSONFile(s.portfolioFile, holdings); err != nil {
				return models.Holding{}, err
			}
			return holdings[i], nil
		}
	}

	holding := models.Holding{ID: uuid.NewString(), Ticker: normalized, Shares: shares}
	holdings = append(holdings, holding)
	if err := writeJSONFile(s.portfolioFile, holdings); err != nil {
		return models.Holding{}, err
	}
	return holding, nil
}

func (s *FileStore) DeleteHolding(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holdings, err := s.loadHoldings()
	if err != nil {
		return err
	}
	kept := holdings[:0]
	found := false
	for _, h := range holdings {
		if h.ID == id {
			found = true
			continue
		}
		kept = append(kept, h)
	}
	if !found {
		return ErrNotFound
	}
	return writeJSONFile(s.portfolioFile, kept)
}

func (s *FileStore) Close() error { return nil }

// loadAlerts reads alerts.json, tolerating a missing or corrupt file by
// returning an empty list. Tickers are re-normalized on load since older
// files may contain raw user input.
func (s *FileStore) loadAlerts() ([]models.Alert, error) {
	var alerts []models.Alert
	if !readJSONFile(s.alertsFile, &alerts) {
		return []models.Alert{}, nil
	}
	normalized := make([]models.Alert, 0, len(alerts))
	for _, a := range alerts {
		a.Ticker = utils.NormalizeTicker(a.Ticker)
		if a.ID == "" {
			a.ID = uuid.NewString()
		}
		normalized = append(normalized, a)
	}
	return normalized, nil
}

// loadHoldings reads portfolio.json, dropping rows with a blank ticker or
// non-positive share count and backfilling missing ids.
func (s *FileStore) loadHoldings() ([]models.Holding, error) {
	var holdings []models.Holding
	if !readJSONFile(s.portfolioFile, &holdings) {
		return []models.Holding{}, nil
	}
	normalized := make([]models.Holding, 0, len(holdings))
	for _, h := range holdings {
		h.Ticker = utils.NormalizeTicker(h.Ticker)
		if h.Ticker == "" || h.Shares <= 0 {
			continue
		}
		if h.ID == "" {
			h.ID = uuid.NewString()
		}
		normalized = append(normalized, h)
	}
	return normalized, nil
}

func readJSONFile(path string, dest any) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return false
	}
	return true
}

func writeJSONFile(path string, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
