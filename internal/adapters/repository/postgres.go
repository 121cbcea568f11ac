package repository

import (
	"context"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

const defaultPostgresDSN = "postgres://localhost:5432/proctor?sslmode=disable"

var postgresDialect = dialect{ //nolint:gochecknoglobals // immutable driver description
	name:        "postgres",
	placeholder: func(n int) string { return "$" + strconv.Itoa(n) },
	schema: []string{
		`CREATE TABLE IF NOT EXISTS session_records (
			session_id TEXT PRIMARY KEY,
			attempt_id TEXT NOT NULL DEFAULT '',
			student_id TEXT NOT NULL DEFAULT '',
			certification_id TEXT NOT NULL DEFAULT '',
			exam_id TEXT NOT NULL DEFAULT '',
			started_at_ms BIGINT NOT NULL,
			ended_at_ms BIGINT NOT NULL,
			points INTEGER NOT NULL,
			outcome TEXT NOT NULL,
			alerts_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_session_records_ended ON session_records(ended_at_ms)`,
	},
}

// NewPostgres opens (and migrates) a PostgreSQL store through pgx.
func NewPostgres(ctx context.Context, dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = defaultPostgresDSN
	}
	return openSQL(ctx, "pgx", dsn, postgresDialect)
}
