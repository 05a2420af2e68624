package memory

import "time"

// IsExpired reports whether item is stale at now. Items with a zero TTL never expire.
func IsExpired(item Item, now time.Time) bool {
	expiresAt, ok := item.ExpiresAt()
	return ok && now.After(expiresAt)
}

// PruneExpired removes every expired item and returns how many were removed.
func (s *Store) PruneExpired() int {
	s.mu.Lock()
	now := s.now()
	n := 0
	for _, e := range s.items {
		if IsExpired(e.item, now) {
			s.removeLocked(e)
			n++
		}
	}
	if n > 0 {
		s.gen++
	}
	s.mu.Unlock()

	if n > 0 {
		s.publishPruned(n, "sweep")
	}
	return n
}
