// Package db ties the pluggable cache engine, the typed keyspace, the TTL
// side-index, HyperLogLog banks, the append-only log, the snapshot codec,
// the pub/sub broker and the cluster router together into one engine that
// serializes every operation under a single coarse mutex.
//
// Ownership mirrors the reference DB hierarchy: the cache engine owns
// STRING values and their eviction order; the typed store owns values the
// cache never sees (lists, sets, hashes). A STRING key always exists in
// both: the store mirrors the cache's string keyspace so TYPE/EXISTS/KEYS/
// DEL can see every key uniformly regardless of type, and the mirror is
// reconciled whenever the cache evicts an entry to make room for another.
package db

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"cachedb/internal/cache"
	"cachedb/internal/cluster"
	"cachedb/internal/config"
	"cachedb/internal/hll"
	"cachedb/internal/logger"
	"cachedb/internal/metrics"
	"cachedb/internal/pubsub"
	"cachedb/internal/snapshot"
	"cachedb/internal/store"
	"cachedb/internal/ttl"

	"cachedb/internal/aof"
)

// Engine is the in-process store for one node. Safe for concurrent use: all
// exported methods serialize on a single mutex.
type Engine struct {
	mu sync.Mutex

	cfg *config.Config
	log *logger.Logger

	cache cache.Engine[string]
	data  *store.Data
	ttl   *ttl.Index
	hlls  map[string]*hll.HLL

	aofLog    *aof.Log
	replaying bool

	Router *cluster.Router
	Broker *pubsub.Broker
	Stats  *metrics.Metrics
}

// Open constructs an Engine from cfg: it builds the cache of the
// configured policy and capacity, opens the AOF and replays it into a
// fresh keyspace, opens the durable TTL index and purges any key whose
// deadline fired while the process was down, then truncates the AOF so
// the next run starts from a clean slate.
func Open(cfg *config.Config) (*Engine, error) {
	e := &Engine{
		cfg:    cfg,
		log:    logger.New("STORE", cfg.LogLevel),
		cache:  cache.New[string](cfg.CachePolicy, cfg.CacheSize),
		data:   store.New(),
		hlls:   make(map[string]*hll.HLL),
		Router: cluster.NewRouter(cfg.ClusterNodes, fmt.Sprintf("localhost:%d", cfg.Port)),
		Broker: pubsub.New(),
		Stats:  metrics.New(),
	}

	idx, err := ttl.Open(cfg.TTLStorePath)
	if err != nil {
		return nil, fmt.Errorf("open ttl index: %w", err)
	}
	e.ttl = idx

	aofLog, err := aof.Open(cfg.AOFPath)
	if err != nil {
		idx.Close() //nolint:errcheck // best-effort close on init failure
		return nil, fmt.Errorf("open aof: %w", err)
	}
	e.aofLog = aofLog

	e.replaying = true
	skipped, err := aof.Replay(cfg.AOFPath, replayMutator{e})
	e.replaying = false
	if err != nil {
		return nil, fmt.Errorf("replay aof: %w", err)
	}
	if skipped > 0 {
		e.Stats.AOFReplaySkips.Add(skipped)
		e.log.Warnf("aof_replay", "skipped %d malformed/unrecognized record(s)", skipped)
	}
	if err := e.aofLog.Truncate(); err != nil {
		return nil, fmt.Errorf("truncate aof after replay: %w", err)
	}

	for _, key := range idx.Expired() {
		e.data.Del(key)
		e.cache.Erase(key)
	}

	e.log.Infof("open", "policy=%s capacity=%d replayed=%t", cfg.CachePolicy, cfg.CacheSize, skipped == 0)
	return e, nil
}

// Close releases the TTL index and AOF file handles.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	aofErr := e.aofLog.Close()
	ttlErr := e.ttl.Close()
	if aofErr != nil {
		return aofErr
	}
	return ttlErr
}

// reinstallStringLocked writes value into both the cache (driving eviction
// order) and the store (keeping the uniform keyspace view current),
// reconciling the store and TTL index for whatever key the cache evicted
// to make room. Must be called with mu held.
func (e *Engine) reinstallStringLocked(key, value string) {
	before := e.cache.Items()
	e.cache.Put(key, value)
	e.data.SetString(key, value)

	if len(before) < len(e.cache.Items()) {
		return // no eviction: the cache grew by one
	}
	after := e.cache.Items()
	for k := range before {
		if k == key {
			continue
		}
		if _, still := after[k]; !still {
			e.data.Del(k)
			e.ttl.Clear(k)
			e.Stats.Evictions.Add(1)
		}
	}
}

// expireIfNeededLocked erases key (from both the cache and store, and the
// TTL index) if its deadline has passed, reporting whether it did so. Must
// be called with mu held.
func (e *Engine) expireIfNeededLocked(key string) bool {
	if !e.ttl.IsExpired(key) {
		return false
	}
	e.cache.Erase(key)
	e.data.Del(key)
	e.ttl.Clear(key)
	delete(e.hlls, key)
	return true
}

// Authenticate reports whether password matches the configured password.
func (e *Engine) Authenticate(password string) bool {
	return password == e.cfg.Password
}

// PasswordRequired reports whether connections must authenticate before
// issuing any command other than AUTH.
func (e *Engine) PasswordRequired() bool {
	return e.cfg.Password != ""
}

// --- string commands ---

// Set stores value at key unconditionally, reinstalling it through the
// cache's put path and logging the mutation to the AOF.
func (e *Engine) Set(key, value string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reinstallStringLocked(key, value)
	e.appendLocked("SET " + key + " " + value)
}

// Get returns the value at key, or ok=false if it is absent, expired, or
// the wrong type.
func (e *Engine) Get(key string) (value string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.expireIfNeededLocked(key) {
		e.Stats.CacheMisses.Add(1)
		return "", false
	}

	start := time.Now()
	v, ok := e.cache.Get(key)
	if !ok {
		e.Stats.CacheMisses.Add(1)
		return "", false
	}
	e.Stats.CacheHits.Add(1)
	e.Stats.RecordHitLatency(time.Since(start))
	return v, true
}

// Incr increments the integer at key (creating it at 1 if absent) and
// returns the new value. ok is false if key holds a non-STRING value or a
// STRING that doesn't parse as an integer.
func (e *Engine) Incr(key string) (result int64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	n, ok := e.data.Incr(key)
	if !ok {
		return 0, false
	}
	e.reinstallStringLocked(key, strconv.FormatInt(n, 10))
	e.appendLocked("INCR " + key)
	return n, true
}

// Decr is the Incr counterpart for -1.
func (e *Engine) Decr(key string) (result int64, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	n, ok := e.data.Decr(key)
	if !ok {
		return 0, false
	}
	e.reinstallStringLocked(key, strconv.FormatInt(n, 10))
	e.appendLocked("DECR " + key)
	return n, true
}

func (e *Engine) appendLocked(record string) {
	if e.replaying {
		return
	}
	if err := e.aofLog.Append(record); err != nil {
		e.log.Errorf("aof_append", "%v", err)
		return
	}
	e.Stats.AOFAppends.Add(1)
}

// replayMutator adapts Engine's richer, return-value-bearing methods to the
// bare aof.Mutator signatures used during log replay. AOF appends are
// suppressed for the duration of replay (see Engine.replaying) so replaying
// a record does not re-log it to the very file being replayed.
type replayMutator struct{ e *Engine }

func (r replayMutator) Set(key, value string)             { r.e.Set(key, value) }
func (r replayMutator) Del(key string)                     { r.e.Del(key) }
func (r replayMutator) LPush(key string, values ...string) { r.e.LPush(key, values...) }
func (r replayMutator) RPush(key string, values ...string) { r.e.RPush(key, values...) }
func (r replayMutator) LPop(key string) (string, bool)     { return r.e.LPop(key) }
func (r replayMutator) RPop(key string) (string, bool)     { return r.e.RPop(key) }
func (r replayMutator) Incr(key string) (int64, bool)      { return r.e.Incr(key) }
func (r replayMutator) Decr(key string) (int64, bool)      { return r.e.Decr(key) }
func (r replayMutator) SAdd(key string, members ...string) { r.e.SAdd(key, members...) }
func (r replayMutator) SRem(key string, members ...string) { r.e.SRem(key, members...) }
func (r replayMutator) HSet(key, field, value string)      { r.e.HSet(key, field, value) }
func (r replayMutator) HDel(key string, fields ...string)  { r.e.HDel(key, fields...) }
func (r replayMutator) HLLAdd(key, element string)         { r.e.HLLAdd(key, element) }
func (r replayMutator) FlushDB()                           { r.e.FlushDB() }
