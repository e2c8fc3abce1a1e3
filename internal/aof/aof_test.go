package aof

import (
	"os"
	"path/filepath"
	"testing"
)

// fakeMutator records every call made to it, for asserting replay behavior.
type fakeMutator struct {
	sets     map[string]string
	dels     []string
	lpushes  map[string][]string
	rpushes  map[string][]string
	lpops    []string
	rpops    []string
	incrs    []string
	decrs    []string
	sadds    map[string][]string
	srems    map[string][]string
	hsets    map[string]map[string]string
	hdels    map[string][]string
	hlladds  map[string][]string
	flushes  int
}

func newFakeMutator() *fakeMutator {
	return &fakeMutator{
		sets:    make(map[string]string),
		lpushes: make(map[string][]string),
		rpushes: make(map[string][]string),
		sadds:   make(map[string][]string),
		srems:   make(map[string][]string),
		hsets:   make(map[string]map[string]string),
		hdels:   make(map[string][]string),
		hlladds: make(map[string][]string),
	}
}

func (f *fakeMutator) Set(key, value string)       { f.sets[key] = value }
func (f *fakeMutator) Del(key string)               { f.dels = append(f.dels, key) }
func (f *fakeMutator) LPush(key string, values ...string) {
	f.lpushes[key] = append(f.lpushes[key], values...)
}
func (f *fakeMutator) RPush(key string, values ...string) {
	f.rpushes[key] = append(f.rpushes[key], values...)
}
func (f *fakeMutator) LPop(key string) (string, bool) { f.lpops = append(f.lpops, key); return "", false }
func (f *fakeMutator) RPop(key string) (string, bool) { f.rpops = append(f.rpops, key); return "", false }
func (f *fakeMutator) Incr(key string) (int64, bool)  { f.incrs = append(f.incrs, key); return 0, false }
func (f *fakeMutator) Decr(key string) (int64, bool)  { f.decrs = append(f.decrs, key); return 0, false }
func (f *fakeMutator) SAdd(key string, members ...string) {
	f.sadds[key] = append(f.sadds[key], members...)
}
func (f *fakeMutator) SRem(key string, members ...string) {
	f.srems[key] = append(f.srems[key], members...)
}
func (f *fakeMutator) HSet(key, field, value string) {
	if f.hsets[key] == nil {
		f.hsets[key] = make(map[string]string)
	}
	f.hsets[key][field] = value
}
func (f *fakeMutator) HDel(key string, fields ...string) {
	f.hdels[key] = append(f.hdels[key], fields...)
}
func (f *fakeMutator) HLLAdd(key, element string) {
	f.hlladds[key] = append(f.hlladds[key], element)
}
func (f *fakeMutator) FlushDB() { f.flushes++ }

func TestAppendAndReplay_SetAndDel(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Append("SET k1 v1"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append("SET k2 hello world"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Append("DEL k1"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m := newFakeMutator()
	skipped, err := Replay(path, m)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
	if m.sets["k1"] != "v1" {
		t.Errorf("sets[k1] = %q, want v1", m.sets["k1"])
	}
	if m.sets["k2"] != "hello world" {
		t.Errorf("sets[k2] = %q, want %q", m.sets["k2"], "hello world")
	}
	if len(m.dels) != 1 || m.dels[0] != "k1" {
		t.Errorf("dels = %v, want [k1]", m.dels)
	}
}

func TestReplay_MissingFileIsNoOp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "missing.aof")

	m := newFakeMutator()
	skipped, err := Replay(path, m)
	if err != nil {
		t.Fatalf("Replay on missing file: %v", err)
	}
	if skipped != 0 {
		t.Errorf("skipped = %d, want 0", skipped)
	}
}

func TestReplay_SkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	content := "SET k1 v1\nNOTACOMMAND garbage\nDEL k1\n\n"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m := newFakeMutator()
	skipped, err := Replay(path, m)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if skipped != 1 {
		t.Errorf("skipped = %d, want 1", skipped)
	}
	if m.sets["k1"] != "v1" {
		t.Errorf("sets[k1] = %q, want v1", m.sets["k1"])
	}
}

func TestReplay_AllMutatingVerbs(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	lines := []string{
		"LPUSH l a b",
		"RPUSH l c d",
		"LPOP l",
		"RPOP l",
		"INCR n",
		"DECR n",
		"SADD s x y",
		"SREM s x",
		"HSET h f v",
		"HDEL h f",
		"HLL.ADD hll elem",
		"FLUSHDB",
	}
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	m := newFakeMutator()
	skipped, err := Replay(path, m)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if skipped != 0 {
		t.Fatalf("skipped = %d, want 0 (lines: %v)", skipped, lines)
	}
	if len(m.lpushes["l"]) != 2 || len(m.rpushes["l"]) != 2 {
		t.Errorf("list pushes not recorded: %v %v", m.lpushes, m.rpushes)
	}
	if len(m.lpops) != 1 || len(m.rpops) != 1 {
		t.Errorf("list pops not recorded: %v %v", m.lpops, m.rpops)
	}
	if len(m.incrs) != 1 || len(m.decrs) != 1 {
		t.Errorf("incr/decr not recorded: %v %v", m.incrs, m.decrs)
	}
	if len(m.sadds["s"]) != 2 || len(m.srems["s"]) != 1 {
		t.Errorf("set ops not recorded: %v %v", m.sadds, m.srems)
	}
	if m.hsets["h"]["f"] != "v" {
		t.Errorf("hset not recorded: %v", m.hsets)
	}
	if len(m.hdels["h"]) != 1 {
		t.Errorf("hdel not recorded: %v", m.hdels)
	}
	if len(m.hlladds["hll"]) != 1 {
		t.Errorf("hll.add not recorded: %v", m.hlladds)
	}
	if m.flushes != 1 {
		t.Errorf("flushes = %d, want 1", m.flushes)
	}
}

func TestTruncate_ClearsFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Append("SET k v"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size() != 0 {
		t.Errorf("file size after truncate = %d, want 0", info.Size())
	}
}

func TestTruncate_AllowsFurtherAppends(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.aof")

	log, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := log.Append("SET k v"); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := log.Truncate(); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if err := log.Append("SET k2 v2"); err != nil {
		t.Fatalf("Append after truncate: %v", err)
	}
	if err := log.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	m := newFakeMutator()
	if _, err := Replay(path, m); err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if m.sets["k2"] != "v2" {
		t.Errorf("sets[k2] = %q, want v2", m.sets["k2"])
	}
	if _, ok := m.sets["k"]; ok {
		t.Error("expected k not present after truncate discarded it")
	}
}
