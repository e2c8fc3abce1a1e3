package db

import "strings"

// --- list commands ---
//
// Lists bypass the cache entirely and are never subject to eviction,
// matching the reference implementation's separate, unbounded lists_ map.

// LPush prepends values to the list at key, creating it if absent, and
// returns the new length. ok is false if key holds a non-LIST value.
func (e *Engine) LPush(key string, values ...string) (newLen int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	newLen, ok = e.data.LPush(key, values...)
	if ok {
		e.appendLocked("LPUSH " + key + " " + strings.Join(values, " "))
	}
	return newLen, ok
}

// RPush appends values to the list at key, creating it if absent.
func (e *Engine) RPush(key string, values ...string) (newLen int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	newLen, ok = e.data.RPush(key, values...)
	if ok {
		e.appendLocked("RPUSH " + key + " " + strings.Join(values, " "))
	}
	return newLen, ok
}

// LPop removes and returns the head of the list at key.
func (e *Engine) LPop(key string) (value string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	value, ok = e.data.LPop(key)
	if ok {
		e.appendLocked("LPOP " + key)
	}
	return value, ok
}

// RPop removes and returns the tail of the list at key.
func (e *Engine) RPop(key string) (value string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	value, ok = e.data.RPop(key)
	if ok {
		e.appendLocked("RPOP " + key)
	}
	return value, ok
}

// LLen returns the length of the list at key (0 if absent). ok is false
// only if key holds a non-LIST value.
func (e *Engine) LLen(key string) (length int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	return e.data.LLen(key)
}

// LRange returns the inclusive [start, stop] slice of the list at key,
// Python-style negative indices, clamped to bounds.
func (e *Engine) LRange(key string, start, stop int) (result []string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	return e.data.LRange(key, start, stop)
}

// --- set commands ---

// SAdd adds members to the set at key, creating it if absent.
func (e *Engine) SAdd(key string, members ...string) (ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	ok = e.data.SAdd(key, members...)
	if ok {
		e.appendLocked("SADD " + key + " " + strings.Join(members, " "))
	}
	return ok
}

// SRem removes members from the set at key.
func (e *Engine) SRem(key string, members ...string) (ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	ok = e.data.SRem(key, members...)
	if ok {
		e.appendLocked("SREM " + key + " " + strings.Join(members, " "))
	}
	return ok
}

// SMembers returns every member of the set at key.
func (e *Engine) SMembers(key string) (members []string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	return e.data.SMembers(key)
}

// SCard returns the cardinality of the set at key (0 if absent).
func (e *Engine) SCard(key string) (count int, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	return e.data.SCard(key)
}

// SIsMember reports whether member belongs to the set at key.
func (e *Engine) SIsMember(key, member string) (isMember bool, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	return e.data.SIsMember(key, member)
}

// --- hash commands ---

// HSet sets field to value within the hash at key, creating it if absent.
func (e *Engine) HSet(key, field, value string) (ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	ok = e.data.HSet(key, field, value)
	if ok {
		e.appendLocked("HSET " + key + " " + field + " " + value)
	}
	return ok
}

// HGet returns the value of field within the hash at key.
func (e *Engine) HGet(key, field string) (value string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	return e.data.HGet(key, field)
}

// HDel removes fields from the hash at key.
func (e *Engine) HDel(key string, fields ...string) (ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	ok = e.data.HDel(key, fields...)
	if ok {
		e.appendLocked("HDEL " + key + " " + strings.Join(fields, " "))
	}
	return ok
}

// HGetAll returns every field/value pair in the hash at key.
func (e *Engine) HGetAll(key string) (fields map[string]string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	return e.data.HGetAll(key)
}

// HKeys returns every field name in the hash at key.
func (e *Engine) HKeys(key string) (fields []string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	return e.data.HKeys(key)
}

// HVals returns every field value in the hash at key.
func (e *Engine) HVals(key string) (values []string, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.expireIfNeededLocked(key)
	return e.data.HVals(key)
}
