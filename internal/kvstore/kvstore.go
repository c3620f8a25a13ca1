// Package kvstore provides the string→string stores behind the token memo
// and the lexicon verdict cache.
//
// Two implementations are provided:
//   - Memory — in-memory only, scoped to one run; used in tests and when no
//     path is configured.
//   - Bolt   — embedded key-value store (bbolt); entries survive process
//     restarts so a rerun reuses earlier replacements.
//
// Stores never evict. The token memo relies on that: once a token has a
// replacement it keeps it for the life of the store.
package kvstore

import (
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"corpus-obfuscator/internal/logger"
)

// Store is a string→string map. All implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value stored for key, if present.
	Get(key string) (value string, ok bool)

	// Set stores key → value. Overwrites any existing entry silently.
	Set(key, value string)

	// Close releases any resources held by the store (e.g. file handles).
	Close() error
}

// --- Memory --------------------------------------------------------------

// Memory is a thread-safe in-memory Store.
type Memory struct {
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

func (m *Memory) Get(key string) (string, bool) {
	m.mu.RLock()
	v, ok := m.data[key]
	m.mu.RUnlock()
	return v, ok
}

func (m *Memory) Set(key, value string) {
	m.mu.Lock()
	m.data[key] = value
	m.mu.Unlock()
}

// Len reports the number of stored entries.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (m *Memory) Close() error { return nil }

// --- Bolt ----------------------------------------------------------------

// Bolt is a Store backed by one bucket of an embedded bbolt database.
type Bolt struct {
	db     *bolt.DB
	bucket []byte
	log    *logger.Logger
}

// OpenBolt opens (or creates) the bbolt database at path and ensures the
// bucket exists. Returns an error if the file cannot be opened. log may be nil.
func OpenBolt(path, bucket string, log *logger.Logger) (*Bolt, error) {
	if log == nil {
		log = logger.Discard()
	}
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bbolt store %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create bbolt bucket %q: %w", bucket, err)
	}

	log.Infof("open", "bucket %q opened at %s", bucket, path)
	return &Bolt{db: db, bucket: []byte(bucket), log: log}, nil
}

func (b *Bolt) Get(key string) (string, bool) {
	var (
		value string
		found bool
	)
	err := b.db.View(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return nil
		}
		if v := bk.Get([]byte(key)); v != nil {
			value, found = string(v), true
		}
		return nil
	})
	if err != nil {
		b.log.Errorf("get", "bucket %q: %v", b.bucket, err)
		return "", false
	}
	return value, found
}

func (b *Bolt) Set(key, value string) {
	if err := b.db.Update(func(tx *bolt.Tx) error {
		bk := tx.Bucket(b.bucket)
		if bk == nil {
			return fmt.Errorf("bucket %q not found", b.bucket)
		}
		return bk.Put([]byte(key), []byte(value))
	}); err != nil {
		b.log.Errorf("set", "bucket %q: %v", b.bucket, err)
	}
}

// Len reports the number of entries in the bucket.
func (b *Bolt) Len() int {
	n := 0
	_ = b.db.View(func(tx *bolt.Tx) error {
		if bk := tx.Bucket(b.bucket); bk != nil {
			n = bk.Stats().KeyN
		}
		return nil
	})
	return n
}

func (b *Bolt) Close() error {
	return b.db.Close()
}

// Open returns a Bolt store when path is set and a Memory store otherwise.
// If the bbolt file cannot be opened the error is logged and a Memory store
// is returned, so callers always get a usable Store.
func Open(path, bucket string, log *logger.Logger) Store {
	if path == "" {
		return NewMemory()
	}
	if log == nil {
		log = logger.Discard()
	}
	b, err := OpenBolt(path, bucket, log)
	if err != nil {
		log.Warnf("open", "%v (falling back to in-memory store)", err)
		return NewMemory()
	}
	return b
}
