package log

import (
	"encoding/json"
	"sync"
	"time"
)

// Entry is one captured log record, decoded from the JSON stream.
type Entry struct {
	Timestamp time.Time `json:"timestamp"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
}

// Buffer is a fixed-capacity ring of recent log entries. It implements
// io.Writer so Init can tee the JSON stream into it; writes never fail
// and never block logging.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// NewBuffer returns a Buffer retaining the last capacity entries.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = 512
	}
	return &Buffer{entries: make([]Entry, capacity)}
}

// Write decodes one JSON log line and stores it. Lines that fail to
// decode are dropped silently; the console stream still gets them.
func (b *Buffer) Write(p []byte) (int, error) {
	var raw struct {
		Time      time.Time `json:"time"`
		Level     string    `json:"level"`
		Component string    `json:"component"`
		Message   string    `json:"message"`
	}
	if err := json.Unmarshal(p, &raw); err != nil {
		return len(p), nil
	}

	b.mu.Lock()
	b.entries[b.next] = Entry{
		Timestamp: raw.Time,
		Level:     raw.Level,
		Component: raw.Component,
		Message:   raw.Message,
	}
	b.next = (b.next + 1) % len(b.entries)
	if b.next == 0 {
		b.full = true
	}
	b.mu.Unlock()

	return len(p), nil
}

// Recent returns up to n entries, oldest first. n <= 0 returns all
// retained entries.
func (b *Buffer) Recent(n int) []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()

	var ordered []Entry
	if b.full {
		ordered = make([]Entry, 0, len(b.entries))
		ordered = append(ordered, b.entries[b.next:]...)
		ordered = append(ordered, b.entries[:b.next]...)
	} else {
		ordered = make([]Entry, b.next)
		copy(ordered, b.entries[:b.next])
	}

	if n > 0 && n < len(ordered) {
		ordered = ordered[len(ordered)-n:]
	}
	return ordered
}

// Len reports how many entries are currently retained.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.full {
		return len(b.entries)
	}
	return b.next
}
