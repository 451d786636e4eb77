package daemon

import (
	"sync"
	"time"
)

const recentCapacity = 64

// CommandRecord is one executed command as shown on the admin surface.
// Params stay out of it; they may carry secrets.
type CommandRecord struct {
	Session  uint64    `json:"session"`
	Action   string    `json:"action"`
	Target   []string  `json:"target"`
	Result   string    `json:"result"`
	Error    string    `json:"error,omitempty"`
	Duration string    `json:"duration"`
	At       time.Time `json:"at"`
}

// recentRing keeps the last recentCapacity command records.
type recentRing struct {
	mu    sync.Mutex
	buf   []CommandRecord
	next  int
	total uint64
}

func newRecentRing() *recentRing {
	return &recentRing{buf: make([]CommandRecord, 0, recentCapacity)}
}

func (r *recentRing) add(rec CommandRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	if len(r.buf) < recentCapacity {
		r.buf = append(r.buf, rec)
		return
	}
	r.buf[r.next] = rec
	r.next = (r.next + 1) % recentCapacity
}

func (r *recentRing) count() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.total
}

// snapshot returns up to limit records, oldest first.
func (r *recentRing) snapshot(limit int) []CommandRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 {
		limit = 20
	}
	ordered := make([]CommandRecord, 0, len(r.buf))
	if len(r.buf) == recentCapacity {
		ordered = append(ordered, r.buf[r.next:]...)
		ordered = append(ordered, r.buf[:r.next]...)
	} else {
		ordered = append(ordered, r.buf...)
	}
	if len(ordered) > limit {
		ordered = ordered[len(ordered)-limit:]
	}
	return ordered
}
