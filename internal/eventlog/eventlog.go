// Package eventlog is the operator-facing progress log: an ordered,
// append-only run of text lines that front-ends render or forward.
package eventlog

import (
	"bytes"
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the number of lines kept when New is given zero.
const DefaultCapacity = 2000

// Entry is one appended line. Seq increases by one per line and is never
// reused, including across Clear.
type Entry struct {
	Seq  uint64    `json:"seq"`
	Time time.Time `json:"time"`
	Text string    `json:"text"`
}

// Log keeps the most recent lines in emission order. Safe for concurrent
// use. Entries are never modified once appended.
type Log struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	seq      uint64
	version  uint64
	now      func() time.Time
	partial  []byte

	subs    map[int]func(Entry)
	nextSub int
}

// New creates a log holding at most capacity lines.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{
		capacity: capacity,
		now:      time.Now,
		subs:     make(map[int]func(Entry)),
	}
}

// SetClock replaces time.Now for entry timestamps.
func (l *Log) SetClock(now func() time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
}

// Append adds one line.
func (l *Log) Append(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.appendLocked(text)
}

// Appendf formats and adds one line.
func (l *Log) Appendf(format string, args ...any) {
	l.Append(fmt.Sprintf(format, args...))
}

// Write adds one line per newline-terminated chunk of p, so the log can be
// handed to anything that writes text. An unterminated tail is held until
// the next write completes it.
func (l *Log) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	buf := append(l.partial, p...)
	for {
		i := bytes.IndexByte(buf, '\n')
		if i < 0 {
			break
		}
		l.appendLocked(string(bytes.TrimRight(buf[:i], "\r")))
		buf = buf[i+1:]
	}
	l.partial = append(l.partial[:0:0], buf...)
	return len(p), nil
}

func (l *Log) appendLocked(text string) {
	l.seq++
	l.version++
	e := Entry{Seq: l.seq, Time: l.now(), Text: text}
	l.entries = append(l.entries, e)
	if len(l.entries) > l.capacity {
		l.entries = l.entries[len(l.entries)-l.capacity:]
	}
	for _, fn := range l.subs {
		fn(e)
	}
}

// Clear drops every kept line.
func (l *Log) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
	l.partial = nil
	l.version++
}

// Lines returns the text of every kept line.
func (l *Log) Lines() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Text
	}
	return out
}

// Since returns the kept entries with Seq greater than seq.
func (l *Log) Since(seq uint64) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	start := len(l.entries)
	for start > 0 && l.entries[start-1].Seq > seq {
		start--
	}
	out := make([]Entry, len(l.entries)-start)
	copy(out, l.entries[start:])
	return out
}

// Tail returns up to the last n kept entries.
func (l *Log) Tail(n int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]Entry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Version changes on every Append and Clear. Pollers compare it to decide
// whether to redraw.
func (l *Log) Version() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.version
}

// LastSeq returns the Seq of the most recent line ever appended.
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.seq
}

// Subscribe calls fn for every line appended from now on, in order. fn runs
// with the log locked: it must not block or call back into the log.
func (l *Log) Subscribe(fn func(Entry)) (cancel func()) {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextSub
	l.nextSub++
	l.subs[id] = fn
	return func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.subs, id)
	}
}
