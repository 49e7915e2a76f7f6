package relay

import "sync/atomic"

// Stats tracks relay counters over the process lifetime.
type Stats struct {
	total     atomic.Uint64
	blocked   atomic.Uint64
	forwarded atomic.Uint64
	cached    atomic.Uint64
	errors    atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Total     uint64
	Blocked   uint64
	Forwarded uint64
	Cached    uint64
	Errors    uint64
}

func (s *Stats) RecordQuery()    { s.total.Add(1) }
func (s *Stats) RecordBlock()    { s.blocked.Add(1) }
func (s *Stats) RecordForward()  { s.forwarded.Add(1) }
func (s *Stats) RecordCacheHit() { s.cached.Add(1) }
func (s *Stats) RecordError()    { s.errors.Add(1) }

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Total:     s.total.Load(),
		Blocked:   s.blocked.Load(),
		Forwarded: s.forwarded.Load(),
		Cached:    s.cached.Load(),
		Errors:    s.errors.Load(),
	}
}
