package sink

import (
	"sync"
	"time"

	"github.com/HaPhanBaoMinh/kwatch/internal/domain"
)

// Record is one captured publish call.
type Record struct {
	Event      domain.Event
	Timestamp  time.Time
	Attributes map[string]string
}

// Recorder keeps the most recent events in memory. The dashboard reads from
// it and tests assert on it.
type Recorder struct {
	mu      sync.RWMutex
	limit   int
	records []Record
	total   map[domain.EventKind]int
}

// NewRecorder keeps at most limit records; limit <= 0 keeps everything.
func NewRecorder(limit int) *Recorder {
	return &Recorder{limit: limit, total: make(map[domain.EventKind]int)}
}

func (r *Recorder) Publish(ev domain.Event, ts time.Time, attrs map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, Record{Event: ev, Timestamp: ts, Attributes: attrs})
	if r.limit > 0 && len(r.records) > r.limit {
		r.records = r.records[len(r.records)-r.limit:]
	}
	r.total[ev.EventKind()]++
}

func (r *Recorder) Records() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Record(nil), r.records...)
}

// Events returns the retained events of kind, oldest first.
func (r *Recorder) Events(kind domain.EventKind) []domain.Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []domain.Event
	for _, rec := range r.records {
		if rec.Event.EventKind() == kind {
			out = append(out, rec.Event)
		}
	}
	return out
}

// Count is the number of events of kind ever published, retained or not.
func (r *Recorder) Count(kind domain.EventKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total[kind]
}
