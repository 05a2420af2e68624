package memory

import (
	"time"
	"unicode/utf8"
)

// AgeBuckets counts live items by age.
type AgeBuckets struct {
	LastHour int
	LastDay  int
	LastWeek int
	Older    int
}

// Stats is a point-in-time summary of the store.
type Stats struct {
	TotalItems   int
	LiveItems    int
	ExpiredItems int

	Age              AgeBuckets
	AvgContentLength float64
	// ApproxBytes estimates the footprint of live items: two bytes per
	// content rune, four per embedding float, two per rune of JSON metadata.
	ApproxBytes int64

	Dirty         bool
	LastPersisted time.Time
	Strategy      Strategy
	MaxItems      int
	Dimension     int
}

// Stats computes a summary in one pass. Expired items are counted, not removed.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	st := Stats{
		TotalItems:    len(s.items),
		Dirty:         s.gen != s.persistedGen,
		LastPersisted: s.lastPersisted,
		Strategy:      s.opts.RemovalStrategy,
		MaxItems:      s.opts.MaxItems,
		Dimension:     s.opts.EmbeddingDimension,
	}

	contentRunes := 0
	for _, e := range s.items {
		if IsExpired(e.item, now) {
			st.ExpiredItems++
			continue
		}
		st.LiveItems++

		switch age := now.Sub(e.item.CreatedAt); {
		case age < time.Hour:
			st.Age.LastHour++
		case age < 24*time.Hour:
			st.Age.LastDay++
		case age < 7*24*time.Hour:
			st.Age.LastWeek++
		default:
			st.Age.Older++
		}

		n := utf8.RuneCountInString(e.item.Content)
		contentRunes += n
		st.ApproxBytes += int64(2*n + 4*len(e.item.Embedding) + 2*e.item.Metadata.encodedLen())
	}

	if st.LiveItems > 0 {
		st.AvgContentLength = float64(contentRunes) / float64(st.LiveItems)
	}
	return st
}
