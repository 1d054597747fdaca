// Package requestlog maintains a bounded ring buffer of recent HTTP
// request records for the admin surface, independent of structured log
// output.
package requestlog

import (
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// DefaultCapacity is the default ring-buffer size.
const DefaultCapacity = 1000

// Record is one logged HTTP request.
type Record struct {
	ID         string        `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Method     string        `json:"method"`
	Path       string        `json:"path"`
	Status     int           `json:"status"`
	Duration   time.Duration `json:"duration"`
	RemoteAddr string        `json:"remote_addr"`
	RequestID  string        `json:"request_id,omitempty"`
}

// Log is a fixed-capacity ring buffer of recent Records.
type Log struct {
	mu       sync.Mutex
	capacity int
	records  []Record
}

// New creates a Log with the given capacity. A non-positive capacity
// defaults to DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{capacity: capacity, records: make([]Record, 0, capacity)}
}

// Add appends a record, assigning it a ULID if it doesn't already have an
// ID, evicting the oldest record if the buffer is full.
func (l *Log) Add(r Record) Record {
	if r.ID == "" {
		r.ID = ulid.Make().String()
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.records) >= l.capacity {
		l.records = l.records[1:]
	}
	l.records = append(l.records, r)
	return r
}

// Recent returns up to limit of the most recent records, newest last. A
// non-positive limit returns the full buffer.
func (l *Log) Recent(limit int) []Record {
	l.mu.Lock()
	defer l.mu.Unlock()

	if limit <= 0 || limit > len(l.records) {
		limit = len(l.records)
	}
	start := len(l.records) - limit
	out := make([]Record, limit)
	copy(out, l.records[start:])
	return out
}

// Filter narrows Query results. A zero-value field imposes no constraint on
// that dimension. Method and Path are matched case-sensitively on exact
// value; Path additionally matches as a prefix so "/stream" selects every
// stream request. Since is inclusive; Until is exclusive.
type Filter struct {
	Method     string
	Path       string
	Status     int
	MinStatus  int
	MaxStatus  int
	Since      time.Time
	Until      time.Time
}

// matches reports whether r satisfies every constraint f sets.
func (f Filter) matches(r Record) bool {
	if f.Method != "" && r.Method != f.Method {
		return false
	}
	if f.Path != "" && r.Path != f.Path && !strings.HasPrefix(r.Path, f.Path) {
		return false
	}
	if f.Status != 0 && r.Status != f.Status {
		return false
	}
	if f.MinStatus != 0 && r.Status < f.MinStatus {
		return false
	}
	if f.MaxStatus != 0 && r.Status > f.MaxStatus {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// Query returns up to limit of the most recent records matching filter,
// newest last. A non-positive limit returns every match.
func (l *Log) Query(filter Filter, limit int) []Record {
	l.mu.Lock()
	matched := make([]Record, 0, len(l.records))
	for _, r := range l.records {
		if filter.matches(r) {
			matched = append(matched, r)
		}
	}
	l.mu.Unlock()

	if limit <= 0 || limit > len(matched) {
		limit = len(matched)
	}
	start := len(matched) - limit
	out := make([]Record, limit)
	copy(out, matched[start:])
	return out
}

// Len returns the current number of buffered records.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
