package kvcache

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// walMode makes "durability available" versus "durability disabled" an
// explicit state, so every append site branches on a named mode rather
// than a nil handle.
type walMode int

const (
	walDisabled  walMode = iota // no log configured, or the file could not be opened
	walActive                   // appends flow to disk
	walSuspended                // replay in progress; appends are dropped
)

type walOp string

const (
	opPut   walOp = "PUT"
	opDel   walOp = "DEL"
	opClear walOp = "CLEAR"
)

// record is one durable fact about a state transition. Records are applied
// in append order during replay; the log is the system of record and the
// in-memory state a rebuildable projection of it.
type record struct {
	op    walOp
	key   string
	value string
}

// wal is an append-only durability log with line-oriented text records:
//
//	PUT <key> <value...>
//	DEL <key>
//	CLEAR
//
// The value field is everything after the key, so it may contain spaces.
// Newlines, carriage returns and backslashes in values are escaped on
// append and unescaped on replay. Keys containing whitespace cannot be
// represented; callers reject them before appending.
type wal struct {
	mode walMode
	path string
	file *os.File
	w    *bufio.Writer
}

// openWAL attaches a log at path, or returns an inert log when path is
// empty. An open failure downgrades to disabled mode with a warning;
// persistence is best-effort and never blocks cache construction.
func openWAL(path string) *wal {
	if path == "" {
		return &wal{mode: walDisabled}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		logger().Warn("durability log unavailable, continuing without persistence",
			"path", path, "error", err)
		return &wal{mode: walDisabled, path: path}
	}

	return &wal{
		mode: walActive,
		path: path,
		file: f,
		w:    bufio.NewWriter(f),
	}
}

// append writes one record and makes it durable before returning. In
// disabled or suspended mode it is a no-op. Write failures are reported to
// the package logger and swallowed: a mutation never fails because its
// record could not be persisted.
func (w *wal) append(rec record) {
	if w.mode != walActive {
		return
	}
	if err := w.write(rec); err != nil {
		logger().Warn("durability log append failed", "op", string(rec.op), "error", err)
	}
}

func (w *wal) write(rec record) error {
	if _, err := w.w.WriteString(encodeRecord(rec)); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("write record: %w", err)
	}
	if err := w.w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync: %w", err)
	}
	return nil
}

// suspend parks the log for the duration of a replay so that re-applied
// records are not appended again. It reports whether a log is configured
// at all; a false return means there is nothing to replay from.
func (w *wal) suspend() bool {
	if w.path == "" {
		return false
	}
	if w.mode == walActive {
		w.mode = walSuspended
	}
	return true
}

// resume re-enables appends after a replay.
func (w *wal) resume() {
	if w.mode == walSuspended {
		w.mode = walActive
	}
}

// replay reads the log from the start and calls apply for every
// well-formed record, in append order. Malformed records are skipped
// individually. A trailing line with no newline terminator is a torn
// write from a crash mid-append and is discarded. It reports whether the
// log could be opened for reading.
func (w *wal) replay(apply func(record)) bool {
	f, err := os.Open(w.path)
	if err != nil {
		logger().Warn("durability log unreadable, nothing recovered", "path", w.path, "error", err)
		return false
	}
	defer f.Close()

	r := bufio.NewReader(f)
	line := 0
	for {
		raw, err := r.ReadString('\n')
		if err != nil {
			if errors.Is(err, io.EOF) && raw != "" {
				logger().Debug("discarding torn trailing record", "path", w.path, "line", line+1)
			}
			break
		}
		line++

		text := strings.TrimSuffix(strings.TrimSuffix(raw, "\n"), "\r")
		if text == "" {
			continue
		}

		rec, err := parseRecord(text)
		if err != nil {
			logger().Debug("skipping malformed record", "path", w.path, "line", line, "error", err)
			continue
		}
		apply(rec)
	}
	return true
}

// close flushes and releases the log handle. The wal is unusable afterward.
func (w *wal) close() error {
	if w.file == nil {
		return nil
	}
	w.mode = walDisabled
	if err := w.w.Flush(); err != nil {
		w.file.Close()
		return fmt.Errorf("flush: %w", err)
	}
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("close: %w", err)
	}
	w.file = nil
	return nil
}

func encodeRecord(rec record) string {
	switch rec.op {
	case opPut:
		return string(opPut) + " " + rec.key + " " + escapeValue(rec.value)
	case opDel:
		return string(opDel) + " " + rec.key
	default:
		return string(opClear)
	}
}

func parseRecord(text string) (record, error) {
	op, rest, _ := strings.Cut(text, " ")
	switch walOp(op) {
	case opPut:
		key, val, _ := strings.Cut(rest, " ")
		if key == "" {
			return record{}, errors.New("PUT record missing key")
		}
		return record{op: opPut, key: key, value: unescapeValue(val)}, nil
	case opDel:
		if rest == "" || strings.Contains(rest, " ") {
			return record{}, errors.New("DEL record needs exactly one key")
		}
		return record{op: opDel, key: rest}, nil
	case opClear:
		if rest != "" {
			return record{}, errors.New("CLEAR record takes no fields")
		}
		return record{op: opClear}, nil
	default:
		return record{}, fmt.Errorf("unknown operation %q", op)
	}
}

var valueEscaper = strings.NewReplacer(
	`\`, `\\`,
	"\n", `\n`,
	"\r", `\r`,
)

// escapeValue makes a value safe for the line-oriented record layout.
func escapeValue(s string) string {
	return valueEscaper.Replace(s)
}

func unescapeValue(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		case '\\':
			b.WriteByte('\\')
		default:
			// unknown escape, keep it verbatim
			b.WriteByte('\\')
			b.WriteByte(s[i])
		}
	}
	return b.String()
}
