package idempotency

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketKeys = []byte("idempotency_keys")

// BoltStore implements Store using BoltDB
type BoltStore struct {
	db  *bolt.DB
	ttl time.Duration
	now func() time.Time
}

// NewBoltStore opens or creates the store at path
func NewBoltStore(path string, ttl time.Duration) (*BoltStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketKeys); err != nil {
			return fmt.Errorf("failed to create bucket %s: %w", bucketKeys, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &BoltStore{db: db, ttl: ttl, now: time.Now}, nil
}

// Get returns a stored record
func (s *BoltStore) Get(ctx context.Context, key string) (*Record, error) {
	var rec *Record

	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketKeys).Get([]byte(key))
		if data == nil {
			return nil
		}
		var r Record
		if err := json.Unmarshal(data, &r); err != nil {
			return fmt.Errorf("failed to unmarshal record: %w", err)
		}
		if s.expired(&r) {
			return nil
		}
		rec = &r
		return nil
	})

	return rec, err
}

// Put stores a record, stamping it with the current time
func (s *BoltStore) Put(ctx context.Context, key string, rec *Record) error {
	rec.StoredAt = s.now()
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKeys).Put([]byte(key), data)
	})
}

// Purge deletes expired records and returns how many were removed
func (s *BoltStore) Purge(ctx context.Context) (int, error) {
	deleted := 0

	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketKeys)
		var stale [][]byte
		err := b.ForEach(func(k, v []byte) error {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil || s.expired(&r) {
				stale = append(stale, append([]byte(nil), k...))
			}
			return nil
		})
		if err != nil {
			return err
		}
		for _, k := range stale {
			if err := b.Delete(k); err != nil {
				return err
			}
			deleted++
		}
		return nil
	})

	return deleted, err
}

// Close closes the database
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func (s *BoltStore) expired(r *Record) bool {
	return s.ttl > 0 && s.now().Sub(r.StoredAt) > s.ttl
}
