// Package store persists finished documents in a bbolt file so repeat
// extractions of the same content and settings skip the model.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

const documentsBucket = "documents"

// Store is a bbolt-backed result cache.
type Store struct {
	db *bolt.DB
}

// Open opens (creating if needed) the cache file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(documentsBucket)); err != nil {
			return fmt.Errorf("create %s bucket: %w", documentsBucket, err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Get returns the value stored under key. found is false on a miss.
func (s *Store) Get(key string) (value []byte, found bool, err error) {
	err = s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket([]byte(documentsBucket)).Get([]byte(key))
		if v == nil {
			return nil
		}
		// bbolt values are only valid inside the transaction.
		value = append([]byte(nil), v...)
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}
	return value, found, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(key string, value []byte) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(documentsBucket)).Put([]byte(key), value)
	})
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(documentsBucket)).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}
	return nil
}

// Len returns the number of cached documents.
func (s *Store) Len() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket([]byte(documentsBucket)).Stats().KeyN
		return nil
	})
	return n, err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CacheKey derives a cache key from the content hash followed by every
// setting that shapes the stored result. A change in any part is a miss.
func CacheKey(parts ...string) string {
	h := sha256.New()
	for _, part := range parts {
		// Length prefixes keep ("ab","c") and ("a","bc") apart.
		fmt.Fprintf(h, "%d:%s|", len(part), part)
	}
	return hex.EncodeToString(h.Sum(nil))
}
