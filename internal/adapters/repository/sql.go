package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/okian/proctor/internal/domain/model"
)

// dialect captures the differences between the SQL drivers.
type dialect struct {
	name        string
	placeholder func(n int) string
	schema      []string
}

// sqlStore implements Store over database/sql.
type sqlStore struct {
	db      *sql.DB
	dialect dialect
}

func openSQL(ctx context.Context, driverName, dsn string, d dialect) (*sqlStore, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s: open: %w", d.name, err)
	}
	s := &sqlStore{db: db, dialect: d}
	if err := s.init(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *sqlStore) init(ctx context.Context) error {
	for _, stmt := range s.dialect.schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("%s: init schema: %w", s.dialect.name, err)
		}
	}
	return nil
}

func (s *sqlStore) bind(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString(s.dialect.placeholder(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const recordColumns = `session_id, attempt_id, student_id, certification_id, exam_id, started_at_ms, ended_at_ms, points, outcome, alerts_json`

func (s *sqlStore) Save(ctx context.Context, rec model.SessionRecord) error { //nolint:gocritic // records are values
	if err := validate(&rec); err != nil {
		return err
	}
	alerts, err := json.Marshal(rec.Alerts)
	if err != nil {
		return fmt.Errorf("%s: encode alerts: %w", s.dialect.name, err)
	}

	query := s.bind(`INSERT INTO session_records (` + recordColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			attempt_id = excluded.attempt_id,
			student_id = excluded.student_id,
			certification_id = excluded.certification_id,
			exam_id = excluded.exam_id,
			started_at_ms = excluded.started_at_ms,
			ended_at_ms = excluded.ended_at_ms,
			points = excluded.points,
			outcome = excluded.outcome,
			alerts_json = excluded.alerts_json`)
	_, err = s.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.AttemptID,
		rec.StudentID,
		rec.CertificationID,
		rec.ExamID,
		rec.StartedAt.UnixMilli(),
		rec.EndedAt.UnixMilli(),
		rec.Points,
		string(rec.Outcome),
		string(alerts),
	)
	if err != nil {
		return fmt.Errorf("%s: save %s: %w", s.dialect.name, rec.SessionID, err)
	}
	return nil
}

func (s *sqlStore) Get(ctx context.Context, sessionID string) (model.SessionRecord, error) {
	row := s.db.QueryRowContext(ctx,
		s.bind(`SELECT `+recordColumns+` FROM session_records WHERE session_id = ?`), sessionID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.SessionRecord{}, ErrNotFound
	}
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("%s: get %s: %w", s.dialect.name, sessionID, err)
	}
	return rec, nil
}

func (s *sqlStore) List(ctx context.Context, limit int) ([]model.SessionRecord, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx,
		s.bind(`SELECT `+recordColumns+` FROM session_records ORDER BY ended_at_ms DESC, session_id ASC LIMIT ?`), limit)
	if err != nil {
		return nil, fmt.Errorf("%s: list: %w", s.dialect.name, err)
	}
	defer rows.Close()

	out := make([]model.SessionRecord, 0)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: list: %w", s.dialect.name, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *sqlStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM session_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("%s: count: %w", s.dialect.name, err)
	}
	return n, nil
}

func (s *sqlStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (model.SessionRecord, error) {
	var (
		rec             model.SessionRecord
		startMs, endMs  int64
		outcome, alerts string
	)
	if err := row.Scan(
		&rec.SessionID,
		&rec.AttemptID,
		&rec.StudentID,
		&rec.CertificationID,
		&rec.ExamID,
		&startMs,
		&endMs,
		&rec.Points,
		&outcome,
		&alerts,
	); err != nil {
		return model.SessionRecord{}, err
	}
	rec.StartedAt = time.UnixMilli(startMs).UTC()
	rec.EndedAt = time.UnixMilli(endMs).UTC()
	rec.Outcome = model.Outcome(outcome)
	if err := json.Unmarshal([]byte(alerts), &rec.Alerts); err != nil {
		return model.SessionRecord{}, fmt.Errorf("decode alerts: %w", err)
	}
	return rec, nil
}
