package cache

import "sync/atomic"

// Stats holds cache statistics
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	ItemCount int64   `json:"item_count,omitempty"`
	HitRate   float64 `json:"hit_rate"`
}

type stats struct {
	hits   atomic.Int64
	misses atomic.Int64
}

func (s *stats) recordHit() {
	s.hits.Add(1)
}

func (s *stats) recordMiss() {
	s.misses.Add(1)
}

func (s *stats) snapshot() Stats {
	out := Stats{Hits: s.hits.Load(), Misses: s.misses.Load()}
	if total := out.Hits + out.Misses; total > 0 {
		out.HitRate = float64(out.Hits) / float64(total)
	}
	return out
}
