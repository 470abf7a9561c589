// Package outbox implements the durable write-ahead log of transfers
// submitted to the network but not yet confirmed included, and the
// monitor that polls their status as sync progresses.
//
// # Thread Safety Guarantees
//
// Store is safe for concurrent use by multiple goroutines. This safety
// is provided by BoltDB's transaction model:
//
//   - BoltDB allows multiple concurrent read transactions (View)
//   - BoltDB allows only one write transaction (Update) at a time, serialized
//     automatically by BoltDB's internal locking
//   - Readers do not block writers, and writers do not block readers
//
// The Store implementation adds no additional locking beyond what BoltDB
// provides, since BoltDB's transaction isolation is sufficient here.
package outbox

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
)

var entriesBucket = []byte("outbox")

// Entry is one write-ahead transfer: its digest, and the exact message
// and signature bytes that were (or are about to be) submitted under
// command 3. Entries are removed only on observed inclusion.
type Entry struct {
	Digest    string `json:"digest"`    // 32-byte hex
	Message   string `json:"message"`   // base64
	Signature string `json:"signature"` // base64
}

// Store persists outbox entries keyed by digest in a single BoltDB bucket.
type Store struct {
	db   *bbolt.DB
	path string
}

// Open opens or creates the BoltDB database at path and ensures the
// outbox bucket exists.
func Open(path string) (*Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("outbox: open bolt database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(entriesBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("outbox: create bucket: %w", err)
	}

	return &Store{db: db, path: path}, nil
}

// Close releases all database resources.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put writes an entry before network submission. This guarantees a crash
// between the durable write and the network send can be retried; a crash
// before the write loses only an unreplicated attempt.
func (s *Store) Put(e Entry) error {
	val, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("outbox: marshal entry: %w", err)
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(entriesBucket)
		if err := bucket.Put([]byte(e.Digest), val); err != nil {
			return fmt.Errorf("outbox: put entry: %w", err)
		}
		return nil
	})
}

// Get retrieves an entry by digest. ok is false if no entry exists.
func (s *Store) Get(digest string) (entry Entry, ok bool, err error) {
	err = s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(entriesBucket)
		v := bucket.Get([]byte(digest))
		if v == nil {
			return nil
		}
		ok = true
		return json.Unmarshal(v, &entry)
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("outbox: get entry: %w", err)
	}
	return entry, ok, nil
}

// Delete removes an entry by digest, evicted on observed inclusion.
func (s *Store) Delete(digest string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(entriesBucket)
		if err := bucket.Delete([]byte(digest)); err != nil {
			return fmt.Errorf("outbox: delete entry: %w", err)
		}
		return nil
	})
}

// Digests returns every digest currently in the outbox, used at startup
// to resume monitoring entries left over from a prior run.
func (s *Store) Digests() ([]string, error) {
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(entriesBucket)
		return bucket.ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("outbox: list digests: %w", err)
	}
	return out, nil
}
