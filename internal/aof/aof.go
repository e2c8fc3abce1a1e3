// Package aof implements the append-only command log: every successful
// mutating command is appended as one newline-terminated text record, and
// replayed against a fresh engine on startup before being truncated.
//
// Ported from the reference AOFLogger (log/replay/clear), generalized from
// its SET/DEL-only replay to every mutating command the wire protocol
// recognizes. EXPIRE is deliberately not a record here — its
// restart-durability comes from the separate TTL side-index (internal/ttl).
package aof

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
)

// Mutator replays one record's command against the live store. Implemented
// by the engine that owns the keyspace.
type Mutator interface {
	Set(key, value string)
	Del(key string)
	LPush(key string, values ...string)
	RPush(key string, values ...string)
	LPop(key string) (string, bool)
	RPop(key string) (string, bool)
	Incr(key string) (int64, bool)
	Decr(key string) (int64, bool)
	SAdd(key string, members ...string)
	SRem(key string, members ...string)
	HSet(key, field, value string)
	HDel(key string, fields ...string)
	HLLAdd(key, element string)
	FlushDB()
}

// Log is the append-only file handle. Safe for concurrent use, though
// callers are expected to serialize appends under their own engine mutex
// to keep AOF order consistent with command execution order.
type Log struct {
	mu   sync.Mutex
	path string
	file *os.File

	skips int64
}

// Open opens path for appending, creating it if absent. Callers should
// call Replay before issuing new commands, and Truncate once replay is
// complete.
func Open(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open aof %q: %w", path, err)
	}
	return &Log{path: path, file: f}, nil
}

// Append writes one record, e.g. "SET k v" or "DEL k".
func (l *Log) Append(record string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.file.WriteString(record + "\n")
	return err
}

// Skips returns the number of malformed or unrecognized records
// encountered by the most recent Replay.
func (l *Log) Skips() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.skips
}

// Replay reads every record from path and applies it to m. Unknown or
// malformed lines are skipped and counted rather than aborting the replay.
func Replay(path string, m Mutator) (skipped int64, err error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("open aof %q for replay: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		if !applyRecord(m, line) {
			skipped++
		}
	}
	if err := scanner.Err(); err != nil {
		return skipped, fmt.Errorf("scan aof %q: %w", path, err)
	}
	return skipped, nil
}

func applyRecord(m Mutator, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	verb := strings.ToUpper(fields[0])
	args := fields[1:]

	switch verb {
	case "SET":
		if len(args) < 1 {
			return false
		}
		key := args[0]
		rest := strings.TrimLeft(strings.TrimPrefix(strings.TrimLeft(line, " \t"), fields[0]), " \t")
		rest = strings.TrimLeft(strings.TrimPrefix(rest, key), " \t")
		m.Set(key, rest)
		return true
	case "DEL":
		if len(args) != 1 {
			return false
		}
		m.Del(args[0])
		return true
	case "LPUSH":
		if len(args) < 2 {
			return false
		}
		m.LPush(args[0], args[1:]...)
		return true
	case "RPUSH":
		if len(args) < 2 {
			return false
		}
		m.RPush(args[0], args[1:]...)
		return true
	case "LPOP":
		if len(args) != 1 {
			return false
		}
		m.LPop(args[0])
		return true
	case "RPOP":
		if len(args) != 1 {
			return false
		}
		m.RPop(args[0])
		return true
	case "INCR":
		if len(args) != 1 {
			return false
		}
		m.Incr(args[0])
		return true
	case "DECR":
		if len(args) != 1 {
			return false
		}
		m.Decr(args[0])
		return true
	case "SADD":
		if len(args) < 2 {
			return false
		}
		m.SAdd(args[0], args[1:]...)
		return true
	case "SREM":
		if len(args) < 2 {
			return false
		}
		m.SRem(args[0], args[1:]...)
		return true
	case "HSET":
		if len(args) != 3 {
			return false
		}
		m.HSet(args[0], args[1], args[2])
		return true
	case "HDEL":
		if len(args) < 2 {
			return false
		}
		m.HDel(args[0], args[1:]...)
		return true
	case "HLL.ADD":
		if len(args) != 2 {
			return false
		}
		m.HLLAdd(args[0], args[1])
		return true
	case "FLUSHDB":
		m.FlushDB()
		return true
	default:
		return false
	}
}

// Truncate clears the log to zero length, called once replay completes.
func (l *Log) Truncate() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close aof before truncate: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_TRUNC|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("truncate aof %q: %w", l.path, err)
	}
	f.Close()

	appendFile, err := os.OpenFile(l.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("reopen aof %q for append: %w", l.path, err)
	}
	l.file = appendFile
	return nil
}

// Close releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
