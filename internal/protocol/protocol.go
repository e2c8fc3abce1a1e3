// Package protocol implements the line-oriented wire format: one logical
// line per command, tokenized by whitespace, with RESP-style replies.
//
// Parsing and formatting are ported from the reference CommandParser and
// ResponseFormatter: uppercase the first token for the command name, and
// for the handful of commands whose last argument may itself contain
// spaces, take the remainder of the line verbatim instead of splitting it
// further.
package protocol

import (
	"fmt"
	"strconv"
	"strings"
)

// rawArgCommands take the remainder of the line (after the key, where
// applicable) as a single final argument, preserving embedded whitespace.
var rawArgCommands = map[string]bool{
	"SET":     true,
	"LPUSH":   true,
	"RPUSH":   true,
	"HLL.ADD": true,
	"PUBLISH": true,
}

// Command is one parsed request line.
type Command struct {
	Name string
	Args []string
}

// Parse tokenizes a single input line into a Command. An empty or
// whitespace-only line yields a Command with an empty Name.
func Parse(line string) Command {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return Command{}
	}

	name := strings.ToUpper(fields[0])
	rest := fields[1:]

	if rawArgCommands[name] && len(rest) > 0 {
		trimmed := strings.TrimLeft(line, " \t")
		trimmed = strings.TrimPrefix(trimmed, fields[0])
		trimmed = strings.TrimLeft(trimmed, " \t")

		// SET and PUBLISH take one leading key/channel token, then the
		// remainder verbatim. LPUSH/RPUSH/HLL.ADD do the same with a key
		// followed by the raw remainder as a single value.
		keyEnd := strings.IndexAny(trimmed, " \t")
		if keyEnd == -1 {
			return Command{Name: name, Args: []string{trimmed}}
		}
		key := trimmed[:keyEnd]
		value := strings.TrimLeft(trimmed[keyEnd:], " \t")
		return Command{Name: name, Args: []string{key, value}}
	}

	return Command{Name: name, Args: rest}
}

// OK formats the +OK simple string reply.
func OK() string { return "+OK\r\n" }

// Error formats a -ERR simple error reply.
func Error(msg string) string { return "-ERR " + msg + "\r\n" }

// Nil formats the RESP nil bulk string.
func Nil() string { return "$-1\r\n" }

// Integer formats a RESP integer reply.
func Integer(value int64) string { return ":" + strconv.FormatInt(value, 10) + "\r\n" }

// BulkString formats a RESP bulk string reply.
func BulkString(s string) string {
	return fmt.Sprintf("$%d\r\n%s\r\n", len(s), s)
}

// Array formats items as a RESP array of bulk strings.
func Array(items []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "*%d\r\n", len(items))
	for _, item := range items {
		b.WriteString(BulkString(item))
	}
	return b.String()
}
