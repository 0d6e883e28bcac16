// Package errs implements the bounded structured error trail: an
// append-only ring of (source, message, ts) entries populated by
// workers on caught faults. Never fatal to the process.
package errs

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/sawpanic/spotwatch/internal/obs"
)

const defaultCapacity = 200

// Entry is one recorded fault.
type Entry struct {
	Source    string    `json:"source"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
}

// Sink is the bounded error trail. Safe for concurrent Record calls;
// the underlying slice is only ever appended-to-or-trimmed under lock.
type Sink struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	metrics  *obs.Registry
}

// NewSink creates an error sink capped at defaultCapacity entries.
func NewSink(metrics *obs.Registry) *Sink {
	return &Sink{capacity: defaultCapacity, metrics: metrics}
}

// Record appends a fault, evicting the oldest entry past capacity, logs
// it, and increments the per-source error counter.
func (s *Sink) Record(source string, err error) {
	if err == nil {
		return
	}
	entry := Entry{Source: source, Message: err.Error(), Timestamp: time.Now().UTC()}

	s.mu.Lock()
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
	s.mu.Unlock()

	log.Error().Str("source", source).Err(err).Msg("recorded error")
	if s.metrics != nil {
		s.metrics.ErrorsTotal.WithLabelValues(source).Inc()
	}
}

// Recent returns a snapshot copy of the trail, oldest first.
func (s *Sink) Recent() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.entries))
	copy(out, s.entries)
	return out
}
