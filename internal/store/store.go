// Package store persists alert definitions and portfolio holdings. Two
// backends are provided: a JSON file store for single-user setups and a
// Postgres store for hosted deployments.
package store

import (
	"context"
	"errors"

	"github.com/tradechartjp/tradechart/pkg/models"
)

// ErrNotFound is returned when a record with the given id does not exist.
var ErrNotFound = errors.New("store: record not found")

// Store is the persistence interface for alerts and holdings.
type Store interface {
	ListAlerts(ctx context.Context) ([]models.Alert, error)
	AddAlert(ctx context.Context, alert models.Alert) (models.Alert, error)
	DeleteAlert(ctx context.Context, id string) error

	ListHoldings(ctx context.Context) ([]models.Holding, error)
	UpsertHolding(ctx context.Context, ticker string, shares float64) (models.Holding, error)
	DeleteHolding(ctx context.Context, id string) error

	Close() error
}
