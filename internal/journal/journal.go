// Package journal keeps a record of settled fills, in memory and as JSON lines on disk.
package journal

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"avobot-go/internal/event"
)

// Entry is one settled fill with the time it was applied locally.
type Entry struct {
	event.Fill
	Ts time.Time `json:"ts"`
}

// Recorder captures fills for later inspection.
type Recorder interface {
	Record(Entry)
}

// Ledger keeps the most recent fills in memory for quick inspection.
type Ledger struct {
	mu       sync.Mutex
	capacity int
	entries  []Entry
}

// NewLedger creates an empty ledger holding at most capacity entries. A capacity of zero or less keeps everything.
func NewLedger(capacity int) *Ledger {
	if capacity < 0 {
		capacity = 0
	}
	return &Ledger{capacity: capacity, entries: make([]Entry, 0, capacity)}
}

// Record appends an entry, evicting the oldest one once the ledger is full.
func (l *Ledger) Record(e Entry) {
	l.mu.Lock()
	if l.capacity > 0 && len(l.entries) == l.capacity {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
	}
	l.entries = append(l.entries, e)
	l.mu.Unlock()
}

// Snapshot returns a copy of the recorded entries.
func (l *Ledger) Snapshot() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reset clears all stored entries.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.entries = l.entries[:0]
	l.mu.Unlock()
}

// JSONLRecorder appends entries as JSON lines for later analysis.
type JSONLRecorder struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

// NewJSONLRecorder creates/opens the target file and returns a recorder.
func NewJSONLRecorder(path string) (*JSONLRecorder, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONLRecorder{file: file, enc: json.NewEncoder(file)}, nil
}

// Record writes a single entry; writes after Close are dropped.
func (r *JSONLRecorder) Record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return
	}
	_ = r.enc.Encode(e)
}

// Close flushes and closes the file handle.
func (r *JSONLRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	err := r.file.Close()
	r.file = nil
	return err
}

// Multi fans one entry out to several recorders.
type Multi []Recorder

func (m Multi) Record(e Entry) {
	for _, r := range m {
		r.Record(e)
	}
}
