package store

import (
	"sort"
	"strconv"

	"github.com/gobwas/glob"
)

// Data holds every key in the keyspace. It has no locking of its own.
type Data struct {
	items map[string]Value
}

// New returns an empty Data.
func New() *Data {
	return &Data{items: make(map[string]Value)}
}

// Raw exposes the underlying map for snapshot encoding. Callers must treat
// it as read-only.
func (d *Data) Raw() map[string]Value { return d.items }

// Load replaces the entire keyspace, used by snapshot restore.
func (d *Data) Load(items map[string]Value) { d.items = items }

// Exists reports whether key is present, regardless of type.
func (d *Data) Exists(key string) bool {
	_, ok := d.items[key]
	return ok
}

// Del removes key, returning whether it was present.
func (d *Data) Del(key string) bool {
	if _, ok := d.items[key]; !ok {
		return false
	}
	delete(d.items, key)
	return true
}

// TypeOf returns the type of key. The reference implementation defaults to
// STRING for a missing key; callers should check Exists first if that
// distinction matters.
func (d *Data) TypeOf(key string) Type {
	v, ok := d.items[key]
	if !ok {
		return TypeString
	}
	return v.Type
}

// Keys returns every key matching the glob pattern ("*" and "?" wildcards).
// An empty or "*" pattern matches everything.
func (d *Data) Keys(pattern string) []string {
	var matcher glob.Glob
	if pattern != "" && pattern != "*" {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil
		}
		matcher = g
	}

	result := make([]string, 0, len(d.items))
	for k := range d.items {
		if matcher == nil || matcher.Match(k) {
			result = append(result, k)
		}
	}
	sort.Strings(result)
	return result
}

// SetValue stores v verbatim at key, overwriting whatever was there. Used
// by snapshot restore to install non-STRING values (lists, sets, hashes,
// zsets) directly, without going through the type-specific constructors.
func (d *Data) SetValue(key string, v Value) {
	d.items[key] = v
}

// Flush empties the keyspace.
func (d *Data) Flush() {
	d.items = make(map[string]Value)
}

// Size returns the number of keys.
func (d *Data) Size() int { return len(d.items) }

// --- string operations ---

// SetString stores key unconditionally as a STRING, overwriting any
// previous type.
func (d *Data) SetString(key, value string) {
	d.items[key] = NewString(value)
}

// GetString returns the STRING value at key. ok is false if the key is
// absent or holds a different type.
func (d *Data) GetString(key string) (value string, ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeString {
		return "", false
	}
	return v.Str, true
}

// Incr increments the integer stored at key (creating it at 1 if absent)
// and returns the new value. ok is false on a non-STRING key or a STRING
// that doesn't parse as an integer.
func (d *Data) Incr(key string) (result int64, ok bool) {
	return d.addInt(key, 1)
}

// Decr is the Incr counterpart for -1.
func (d *Data) Decr(key string) (result int64, ok bool) {
	return d.addInt(key, -1)
}

func (d *Data) addInt(key string, delta int64) (int64, bool) {
	v, exists := d.items[key]
	if !exists {
		d.items[key] = NewString(strconv.FormatInt(delta, 10))
		return delta, true
	}
	if v.Type != TypeString {
		return 0, false
	}
	n, err := strconv.ParseInt(v.Str, 10, 64)
	if err != nil {
		return 0, false
	}
	n += delta
	d.items[key] = NewString(strconv.FormatInt(n, 10))
	return n, true
}

// --- list operations ---

// LPush prepends values to the list at key, in the order given (so the
// last of values ends up at the head), creating the list if absent.
// ok is false if key holds a non-LIST type.
func (d *Data) LPush(key string, values ...string) (newLen int, ok bool) {
	list, ok := d.listFor(key)
	if !ok {
		return 0, false
	}
	for _, v := range values {
		list = append([]string{v}, list...)
	}
	d.items[key] = NewList(list)
	return len(list), true
}

// RPush appends values to the list at key, creating it if absent.
func (d *Data) RPush(key string, values ...string) (newLen int, ok bool) {
	list, ok := d.listFor(key)
	if !ok {
		return 0, false
	}
	list = append(list, values...)
	d.items[key] = NewList(list)
	return len(list), true
}

func (d *Data) listFor(key string) ([]string, bool) {
	v, exists := d.items[key]
	if !exists {
		return nil, true
	}
	if v.Type != TypeList {
		return nil, false
	}
	out := make([]string, len(v.List))
	copy(out, v.List)
	return out, true
}

// LPop removes and returns the head of the list at key. The key is deleted
// once its list becomes empty, matching the reference implementation.
func (d *Data) LPop(key string) (value string, ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeList || len(v.List) == 0 {
		return "", false
	}
	value = v.List[0]
	rest := v.List[1:]
	if len(rest) == 0 {
		delete(d.items, key)
	} else {
		d.items[key] = NewList(rest)
	}
	return value, true
}

// RPop removes and returns the tail of the list at key.
func (d *Data) RPop(key string) (value string, ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeList || len(v.List) == 0 {
		return "", false
	}
	last := len(v.List) - 1
	value = v.List[last]
	rest := v.List[:last]
	if len(rest) == 0 {
		delete(d.items, key)
	} else {
		d.items[key] = NewList(rest)
	}
	return value, true
}

// LLen returns the length of the list at key. A missing key reports 0.
// ok is false only if key holds a non-LIST type.
func (d *Data) LLen(key string) (length int, ok bool) {
	v, exists := d.items[key]
	if !exists {
		return 0, true
	}
	if v.Type != TypeList {
		return 0, false
	}
	return len(v.List), true
}

// LRange returns the slice [start, stop] (inclusive, Python-style negative
// indices) of the list at key.
func (d *Data) LRange(key string, start, stop int) (result []string, ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeList {
		return nil, false
	}
	size := len(v.List)
	if start < 0 {
		start += size
	}
	if stop < 0 {
		stop += size
	}
	if start < 0 {
		start = 0
	}
	if stop > size-1 {
		stop = size - 1
	}
	if start > stop {
		return []string{}, true
	}
	out := make([]string, stop-start+1)
	copy(out, v.List[start:stop+1])
	return out, true
}

// --- set operations ---

// SAdd adds members to the set at key, creating it if absent.
func (d *Data) SAdd(key string, members ...string) (ok bool) {
	v, exists := d.items[key]
	var set map[string]struct{}
	if exists {
		if v.Type != TypeSet {
			return false
		}
		set = cloneSet(v.Set)
	} else {
		set = make(map[string]struct{}, len(members))
	}
	for _, m := range members {
		set[m] = struct{}{}
	}
	d.items[key] = Value{Type: TypeSet, Set: set}
	return true
}

// SRem removes members from the set at key. The key is deleted once its
// set becomes empty.
func (d *Data) SRem(key string, members ...string) (ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeSet {
		return false
	}
	set := cloneSet(v.Set)
	for _, m := range members {
		delete(set, m)
	}
	if len(set) == 0 {
		delete(d.items, key)
	} else {
		d.items[key] = Value{Type: TypeSet, Set: set}
	}
	return true
}

// SMembers returns every member of the set at key.
func (d *Data) SMembers(key string) (members []string, ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeSet {
		return nil, false
	}
	out := make([]string, 0, len(v.Set))
	for m := range v.Set {
		out = append(out, m)
	}
	sort.Strings(out)
	return out, true
}

// SCard returns the cardinality of the set at key. A missing key reports 0.
func (d *Data) SCard(key string) (count int, ok bool) {
	v, exists := d.items[key]
	if !exists {
		return 0, true
	}
	if v.Type != TypeSet {
		return 0, false
	}
	return len(v.Set), true
}

// SIsMember reports whether member belongs to the set at key.
func (d *Data) SIsMember(key, member string) (isMember bool, ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeSet {
		return false, false
	}
	_, present := v.Set[member]
	return present, true
}

func cloneSet(src map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{}, len(src))
	for k := range src {
		out[k] = struct{}{}
	}
	return out
}

// --- hash operations ---

// HSet sets field to value within the hash at key, creating it if absent.
func (d *Data) HSet(key, field, value string) (ok bool) {
	v, exists := d.items[key]
	var hash map[string]string
	if exists {
		if v.Type != TypeHash {
			return false
		}
		hash = cloneHash(v.Hash)
	} else {
		hash = make(map[string]string)
	}
	hash[field] = value
	d.items[key] = Value{Type: TypeHash, Hash: hash}
	return true
}

// HGet returns the value of field within the hash at key.
func (d *Data) HGet(key, field string) (value string, ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeHash {
		return "", false
	}
	value, present := v.Hash[field]
	return value, present
}

// HDel removes fields from the hash at key. The key is deleted once its
// hash becomes empty.
func (d *Data) HDel(key string, fields ...string) (ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeHash {
		return false
	}
	hash := cloneHash(v.Hash)
	for _, f := range fields {
		delete(hash, f)
	}
	if len(hash) == 0 {
		delete(d.items, key)
	} else {
		d.items[key] = Value{Type: TypeHash, Hash: hash}
	}
	return true
}

// HGetAll returns every field/value pair in the hash at key.
func (d *Data) HGetAll(key string) (fields map[string]string, ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeHash {
		return nil, false
	}
	return cloneHash(v.Hash), true
}

// HKeys returns every field name in the hash at key.
func (d *Data) HKeys(key string) (fields []string, ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeHash {
		return nil, false
	}
	out := make([]string, 0, len(v.Hash))
	for f := range v.Hash {
		out = append(out, f)
	}
	sort.Strings(out)
	return out, true
}

// HVals returns every field value in the hash at key.
func (d *Data) HVals(key string) (values []string, ok bool) {
	v, exists := d.items[key]
	if !exists || v.Type != TypeHash {
		return nil, false
	}
	fields := make([]string, 0, len(v.Hash))
	for f := range v.Hash {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	out := make([]string, len(fields))
	for i, f := range fields {
		out[i] = v.Hash[f]
	}
	return out, true
}

func cloneHash(src map[string]string) map[string]string {
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
