package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tradechartjp/tradechart/pkg/models"
	"github.com/tradechartjp/tradechart/pkg/utils"
)

// PGStore persists alerts and holdings in Postgres. The schema matches the
// JSON file layout: one row per alert, one row per holding keyed by ticker.
type PGStore struct {
	pool *pgxpool.Pool
}

const pgSchema = `
CREATE TABLE IF NOT EXISTS alerts (
	id         UUID PRIMARY KEY,
	ticker     TEXT NOT NULL,
	type       TEXT NOT NULL DEFAULT 'RSI',
	threshold  DOUBLE PRECISION NOT NULL,
	note       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS holdings (
	id         UUID PRIMARY KEY,
	ticker     TEXT NOT NULL UNIQUE,
	shares     DOUBLE PRECISION NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

// NewPGStore connects to the database and ensures the schema exists.
func NewPGStore(ctx context.Context, databaseURL string) (*PGStore, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("database URL not set")
	}
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if _, err := pool.Exec(ctx, pgSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &PGStore{pool: pool}, nil
}

func (s *PGStore) ListAlerts(ctx context.Context) ([]models.Alert, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ticker, type, threshold, note FROM alerts ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("query alerts: %w", err)
	}
	defer rows.Close()

	alerts := []models.Alert{}
	for rows.Next() {
		var a models.Alert
		if err := rows.Scan(&a.ID, &a.Ticker, &a.Type, &a.Threshold, &a.Note); err != nil {
			return nil, fmt.Errorf("scan alert row: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

func (s *PGStore) AddAlert(ctx context.Context, alert models.Alert) (models.Alert, error) {
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
	_, err := s.pool.Exec(ctx,
		`INSERT INTO alerts (id, ticker, type, threshold, note) VALUES ($1, $2, $3, $4, $5)`,
		alert.ID, alert.Ticker, alert.Type, alert.Threshold, alert.Note)
	if err != nil {
		return models.Alert{}, fmt.Errorf("insert alert: %w", err)
	}
	return alert, nil
}

func (s *PGStore) DeleteAlert(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM alerts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete alert: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) ListHoldings(ctx context.Context) ([]models.Holding, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, ticker, shares FROM holdings ORDER BY ticker`)
	if err != nil {
		return nil, fmt.Errorf("query holdings: %w", err)
	}
	defer rows.Close()

	holdings := []models.Holding{}
	for rows.Next() {
		var h models.Holding
		if err := rows.Scan(&h.ID, &h.Ticker, &h.Shares); err != nil {
			return nil, fmt.Errorf("scan holding row: %w", err)
		}
		holdings = append(holdings, h)
	}
	return holdings, rows.Err()
}

func (s *PGStore) UpsertHolding(ctx context.Context, ticker string, shares float64) (models.Holding, error) {
	normalized := utils.NormalizeTicker(ticker)
	if normalized == "" {
		return models.Holding{}, fmt.Errorf("ticker is required")
	}
	if shares <= 0 {
		return models.Holding{}, fmt.Errorf("shares must be positive")
	}

	holding := models.Holding{Ticker: normalized, Shares: shares}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO holdings (id, ticker, shares) VALUES ($1, $2, $3)
		ON CONFLICT (ticker)
		DO UPDATE SET shares = EXCLUDED.shares, updated_at = NOW()
		RETURNING id`,
		uuid.NewString(), normalized, shares,
	).Scan(&holding.ID)
	if err != nil {
		return models.Holding{}, fmt.Errorf("upsert holding: %w", err)
	}
	return holding, nil
}

func (s *PGStore) DeleteHolding(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM holdings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete holding: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PGStore) Close() error {
	s.pool.Close()
	return nil
}
