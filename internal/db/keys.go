package db

import (
	"fmt"

	"cachedb/internal/hll"
	"cachedb/internal/store"
)

// Exists reports whether key is present, regardless of type.
func (e *Engine) Exists(key string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	return e.data.Exists(key)
}

// Del removes key (of any type) and clears its TTL deadline, reporting
// whether it was present. Unlike the reference LRUDB::del, which only ever
// erases the cache entry, this removes the key regardless of which
// structure (cache, typed store, or HLL bank) it lives in.
func (e *Engine) Del(key string) (existed bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.expireIfNeededLocked(key)
	wasString := e.data.TypeOf(key) == store.TypeString
	existed = e.data.Del(key)
	if wasString {
		e.cache.Erase(key)
	}
	e.ttl.Clear(key)
	delete(e.hlls, key)

	if existed {
		e.appendLocked("DEL " + key)
	}
	return existed
}

// TypeOf returns the wire-protocol type name for key, or "none" if absent.
func (e *Engine) TypeOf(key string) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	if !e.data.Exists(key) {
		return "none"
	}
	return e.data.TypeOf(key).String()
}

// Keys returns every key matching pattern ("*" and "?" wildcards; empty or
// "*" matches everything), sorted.
func (e *Engine) Keys(pattern string) []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.Keys(pattern)
}

// Expire arms a deadline of seconds from now for key, unconditionally
// (matching the reference implementation, which does not require key to
// exist first).
func (e *Engine) Expire(key string, seconds int64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ttl.Set(key, seconds)
}

// TTL returns the remaining seconds until key's deadline and whether key
// has one at all.
func (e *Engine) TTL(key string) (seconds int64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ttl.TTL(key)
}

// FlushDB empties the entire keyspace: the cache, the typed store, every
// HLL bank, and every TTL deadline.
func (e *Engine) FlushDB() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for k := range e.cache.Items() {
		e.cache.Erase(k)
	}
	e.data.Flush()
	e.hlls = make(map[string]*hll.HLL)
	e.ttl.ClearAll()
	e.appendLocked("FLUSHDB")
}

// DBSize returns the number of keys in the keyspace.
func (e *Engine) DBSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.data.Size()
}

// --- HyperLogLog commands ---

// HLLAdd records element in the HLL sketch at key, creating the sketch on
// first use.
func (e *Engine) HLLAdd(key, element string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.hlls[key]
	if !ok {
		h = hll.New(hll.DefaultPrecision)
		e.hlls[key] = h
	}
	h.Add(element)
	e.appendLocked("HLL.ADD " + key + " " + element)
}

// HLLCount returns the estimated cardinality of the sketch at key (0 if it
// doesn't exist yet).
func (e *Engine) HLLCount(key string) int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.hlls[key]
	if !ok {
		return 0
	}
	return h.Count()
}

// Info returns the bulk-string payload for the INFO command.
func (e *Engine) Info() string {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := e.Stats.Snapshot()
	return fmt.Sprintf(
		"db_size:%d\r\ncache_hits:%d\r\ncache_misses:%d\r\nhit_ratio:%.2f\r\nevictions:%d\r\naof_replay_skips:%d\r\nforwarded_commands:%d\r\n",
		e.data.Size(),
		snap.Cache.Hits,
		snap.Cache.Misses,
		snap.Cache.HitRatio,
		snap.Cache.Evictions,
		snap.Durability.AOFReplaySkips,
		snap.Commands.Forwarded,
	)
}
