package httpcache

import "sync/atomic"

// Statistics tracks monotonic hit and miss counters for storage lookups.
type Statistics struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

func (s *Statistics) hit()  { s.hits.Add(1) }
func (s *Statistics) miss() { s.misses.Add(1) }

// Hits returns the number of lookups that found a usable stored item.
func (s *Statistics) Hits() uint64 { return s.hits.Load() }

// Misses returns the number of lookups that found nothing.
func (s *Statistics) Misses() uint64 { return s.misses.Load() }
