// Package repository persists the final records of finished proctoring
// sessions.
package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/okian/proctor/internal/domain/model"
)

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBolt     = "bolt"
)

// DefaultListLimit is used when List is called with a zero limit.
const DefaultListLimit = 100

// Store provides read/write access to session records.
type Store interface {
	// Save inserts or replaces the record keyed by its session id.
	Save(ctx context.Context, rec model.SessionRecord) error

	// Get returns ErrNotFound if no record exists for sessionID.
	Get(ctx context.Context, sessionID string) (model.SessionRecord, error)

	// List returns up to limit records, most recently ended first. A zero
	// limit uses DefaultListLimit; a negative one is ErrInvalidLimit.
	List(ctx context.Context, limit int) ([]model.SessionRecord, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	Close() error
}

// Open creates a store for driver. dsn is a database DSN for the SQL
// drivers and a file path for bolt; memory ignores it.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverMemory:
		return NewMemory(), nil
	case DriverSQLite:
		return NewSQLite(ctx, dsn)
	case DriverPostgres, "postgresql":
		return NewPostgres(ctx, dsn)
	case DriverBolt, "bbolt":
		return NewBolt(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
}

func normalizeLimit(limit int) (int, error) {
	switch {
	case limit < 0:
		return 0, ErrInvalidLimit
	case limit == 0:
		return DefaultListLimit, nil
	default:
		return limit, nil
	}
}

func validate(rec *model.SessionRecord) error {
	if strings.TrimSpace(rec.SessionID) == "" {
		return ErrInvalidRecord
	}
	if rec.Alerts == nil {
		rec.Alerts = []model.Alert{}
	}
	return nil
}
