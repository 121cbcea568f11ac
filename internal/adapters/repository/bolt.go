package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/okian/proctor/internal/domain/model"
)

var bucketSessionRecords = []byte("session_records") //nolint:gochecknoglobals // bucket name

// BoltStore keeps records as JSON values in a single bbolt bucket.
type BoltStore struct {
	db *bolt.DB
}

// NewBolt opens the bbolt file at path, creating it if needed.
func NewBolt(path string) (*BoltStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("bolt: database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("bolt: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSessionRecords)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: init: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Save(_ context.Context, rec model.SessionRecord) error { //nolint:gocritic // records are values
	if err := validate(&rec); err != nil {
		return err
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("bolt: encode: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessionRecords).Put([]byte(rec.SessionID), raw)
	})
}

func (s *BoltStore) Get(_ context.Context, sessionID string) (model.SessionRecord, error) {
	var (
		rec   model.SessionRecord
		found bool
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketSessionRecords).Get([]byte(sessionID))
		if len(raw) == 0 {
			return nil
		}
		found = true
		return json.Unmarshal(raw, &rec)
	})
	if err != nil {
		return model.SessionRecord{}, fmt.Errorf("bolt: get %s: %w", sessionID, err)
	}
	if !found {
		return model.SessionRecord{}, ErrNotFound
	}
	return rec, nil
}

func (s *BoltStore) List(_ context.Context, limit int) ([]model.SessionRecord, error) {
	limit, err := normalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	out := make([]model.SessionRecord, 0)
	err = s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSessionRecords).ForEach(func(_, v []byte) error {
			var rec model.SessionRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: list: %w", err)
	}
	sortByEnded(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *BoltStore) Count(context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketSessionRecords).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
