// Package ttl implements expiry deadlines for keys.
//
// A deadline is monotonic-clock "now + seconds" for the purposes of
// read-time expiry checks, but is additionally mirrored into a durable
// embedded side-store (bbolt) keyed on wall-clock time, so that EXPIRE
// survives a process restart even though it is not itself an AOF record.
// This mirrors the teacher's anonymizer.bboltCache: a small embedded KV
// store opened once at startup, read on the hot path, written synchronously
// on every mutation.
package ttl

import (
	"encoding/binary"
	"fmt"
	"log"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("ttl_deadlines")

// Index tracks per-key expiry deadlines. Reads are served from an in-memory
// map; every Set/Clear is mirrored synchronously to the durable store so a
// crash does not resurrect a key that should have expired while the
// process was down. Safe for concurrent use.
type Index struct {
	mu        sync.RWMutex
	deadlines map[string]time.Time
	db        *bolt.DB
}

// Open opens (or creates) the bbolt database at path and loads any
// previously persisted deadlines into memory. A key whose deadline has
// already passed is dropped rather than loaded, so callers don't need to
// special-case stale entries picked up at startup — the caller is
// responsible for deleting the corresponding data key.
func Open(path string) (*Index, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open ttl store %q: %w", path, err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("create ttl bucket: %w", err)
	}

	idx := &Index{db: db, deadlines: make(map[string]time.Time)}
	if err := idx.loadAll(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("load ttl deadlines: %w", err)
	}

	log.Printf("[TTL] durable index opened at %s (%d live deadlines)", path, len(idx.deadlines))
	return idx, nil
}

func (idx *Index) loadAll() error {
	now := time.Now()
	return idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) != 8 {
				continue
			}
			unixNano := int64(binary.BigEndian.Uint64(v))
			deadline := time.Unix(0, unixNano)
			if deadline.Before(now) {
				continue
			}
			idx.deadlines[string(k)] = deadline
		}
		return nil
	})
}

// Expired reports the set of keys whose persisted deadline had already
// passed at load time. It is valid only immediately after Open, before any
// Set/Clear calls, and is meant to be consulted once by the engine during
// startup to purge data keys whose expiry fired while the process was down.
func (idx *Index) Expired() []string {
	var expired []string
	now := time.Now()
	_ = idx.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if len(v) != 8 {
				continue
			}
			deadline := time.Unix(0, int64(binary.BigEndian.Uint64(v)))
			if !deadline.Before(now) {
				continue
			}
			expired = append(expired, string(k))
		}
		return nil
	})
	return expired
}

// Set arms a deadline for key, seconds from now, overwriting any existing
// deadline. The durable write happens synchronously; a failure is logged
// but does not prevent the in-memory deadline from taking effect —  only
// restart-durability of this particular deadline degrades.
func (idx *Index) Set(key string, seconds int64) {
	deadline := time.Now().Add(time.Duration(seconds) * time.Second)

	idx.mu.Lock()
	idx.deadlines[key] = deadline
	idx.mu.Unlock()

	if err := idx.persist(key, deadline); err != nil {
		log.Printf("[TTL] persist deadline for %q failed: %v", key, err)
	}
}

func (idx *Index) persist(key string, deadline time.Time) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(deadline.UnixNano()))
	return idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put([]byte(key), buf)
	})
}

// Clear removes any deadline for key, e.g. on DEL, eviction, or FLUSHDB.
func (idx *Index) Clear(key string) {
	idx.mu.Lock()
	delete(idx.deadlines, key)
	idx.mu.Unlock()

	if err := idx.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Delete([]byte(key))
	}); err != nil {
		log.Printf("[TTL] clear deadline for %q failed: %v", key, err)
	}
}

// ClearAll drops every tracked deadline, used by FLUSHDB.
func (idx *Index) ClearAll() {
	idx.mu.Lock()
	idx.deadlines = make(map[string]time.Time)
	idx.mu.Unlock()

	if err := idx.db.Update(func(tx *bolt.Tx) error {
		return tx.DeleteBucket(bucketName)
	}); err != nil {
		log.Printf("[TTL] clear all deadlines failed: %v", err)
		return
	}
	if err := idx.db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucket(bucketName)
		return err
	}); err != nil {
		log.Printf("[TTL] recreate ttl bucket failed: %v", err)
	}
}

// IsExpired reports whether key has a deadline and it has passed. A key
// with no deadline is never expired.
func (idx *Index) IsExpired(key string) bool {
	idx.mu.RLock()
	deadline, ok := idx.deadlines[key]
	idx.mu.RUnlock()
	if !ok {
		return false
	}
	return time.Now().After(deadline)
}

// TTL returns the remaining seconds until key's deadline, and whether key
// has a deadline at all. A key past its deadline reports 0 remaining
// (callers are expected to have already erased such keys via IsExpired).
func (idx *Index) TTL(key string) (seconds int64, ok bool) {
	idx.mu.RLock()
	deadline, has := idx.deadlines[key]
	idx.mu.RUnlock()
	if !has {
		return 0, false
	}
	remaining := time.Until(deadline)
	if remaining < 0 {
		return 0, true
	}
	return int64(remaining.Seconds()), true
}

// Snapshot returns remaining-seconds for every tracked key, for snapshot
// SAVE's "expires" section.
func (idx *Index) Snapshot() map[string]int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make(map[string]int64, len(idx.deadlines))
	now := time.Now()
	for k, d := range idx.deadlines {
		remaining := d.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		out[k] = int64(remaining.Seconds())
	}
	return out
}

// Close releases the underlying database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}
