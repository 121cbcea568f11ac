package repository

import (
	"context"
	"strings"

	_ "modernc.org/sqlite"
)

const defaultSQLiteDSN = "file:proctor.db?_pragma=busy_timeout(5000)"

var sqliteDialect = dialect{ //nolint:gochecknoglobals // immutable driver description
	name:        "sqlite",
	placeholder: func(int) string { return "?" },
	schema: []string{
		`CREATE TABLE IF NOT EXISTS session_records (
			session_id TEXT PRIMARY KEY,
			attempt_id TEXT NOT NULL DEFAULT '',
			student_id TEXT NOT NULL DEFAULT '',
			certification_id TEXT NOT NULL DEFAULT '',
			exam_id TEXT NOT NULL DEFAULT '',
			started_at_ms INTEGER NOT NULL,
			ended_at_ms INTEGER NOT NULL,
			points INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			alerts_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_records_ended ON session_records(ended_at_ms)`,
	},
}

// NewSQLite opens (and migrates) an embedded SQLite store.
func NewSQLite(ctx context.Context, dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = defaultSQLiteDSN
	}
	s, err := openSQL(ctx, "sqlite", dsn, sqliteDialect)
	if err != nil {
		return nil, err
	}
	// SQLite allows one writer; in-memory databases are per connection.
	s.db.SetMaxOpenConns(1)
	return s, nil
}
