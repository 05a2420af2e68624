package memory

import (
	"container/heap"
	"sort"
	"time"
)

// enforceCapacityLocked trims the store back to MaxItems. Expired items go
// first, then the configured strategy picks among live items. It never
// removes more than the excess.
func (s *Store) enforceCapacityLocked(now time.Time) (expired, evicted int) {
	excess := len(s.items) - s.opts.MaxItems
	if excess <= 0 {
		return 0, 0
	}

	for _, e := range s.byInsertionLocked() {
		if excess == 0 {
			break
		}
		if IsExpired(e.item, now) {
			s.removeLocked(e)
			excess--
			expired++
		}
	}
	if excess == 0 {
		return expired, 0
	}

	for _, e := range s.victimsLocked(excess, now) {
		s.removeLocked(e)
		evicted++
	}
	return expired, evicted
}

func (s *Store) victimsLocked(n int, now time.Time) []*entry {
	switch s.opts.effectiveStrategy() {
	case StrategyLRU:
		return s.lruVictimsLocked(n, now)
	case StrategyLFU:
		return s.lfuVictimsLocked(n, now)
	default:
		return s.fifoVictimsLocked(n, now)
	}
}

func (s *Store) fifoVictimsLocked(n int, now time.Time) []*entry {
	live := s.liveLocked(now)
	sort.Slice(live, func(i, j int) bool {
		return olderThan(live[i], live[j])
	})
	if n > len(live) {
		n = len(live)
	}
	return live[:n]
}

// lruVictimsLocked walks the recency list from its least recent end.
func (s *Store) lruVictimsLocked(n int, now time.Time) []*entry {
	victims := make([]*entry, 0, n)
	for el := s.recency.Back(); el != nil && len(victims) < n; el = el.Prev() {
		e := el.Value.(*entry)
		if IsExpired(e.item, now) {
			continue
		}
		victims = append(victims, e)
	}
	return victims
}

func (s *Store) lfuVictimsLocked(n int, now time.Time) []*entry {
	h := lfuHeap(s.liveLocked(now))
	heap.Init(&h)
	victims := make([]*entry, 0, n)
	for h.Len() > 0 && len(victims) < n {
		victims = append(victims, heap.Pop(&h).(*entry))
	}
	return victims
}

func (s *Store) liveLocked(now time.Time) []*entry {
	live := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		if !IsExpired(e.item, now) {
			live = append(live, e)
		}
	}
	return live
}

func (s *Store) byInsertionLocked() []*entry {
	all := make([]*entry, 0, len(s.items))
	for _, e := range s.items {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })
	return all
}

func olderThan(a, b *entry) bool {
	if !a.item.CreatedAt.Equal(b.item.CreatedAt) {
		return a.item.CreatedAt.Before(b.item.CreatedAt)
	}
	return a.seq < b.seq
}

// lfuHeap is a min-heap on access count, oldest first among equals.
type lfuHeap []*entry

func (h lfuHeap) Len() int { return len(h) }

func (h lfuHeap) Less(i, j int) bool {
	if h[i].item.AccessCount != h[j].item.AccessCount {
		return h[i].item.AccessCount < h[j].item.AccessCount
	}
	return olderThan(h[i], h[j])
}

func (h lfuHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *lfuHeap) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *lfuHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
