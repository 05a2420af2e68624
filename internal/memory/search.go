package memory

import (
	"context"
	"reflect"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/felixgeelhaar/mnemo/internal/telemetry"
	"github.com/felixgeelhaar/mnemo/internal/vector"
)

// Filter decides whether an item takes part in a search. It receives a copy
// of the item and runs under the store's read lock, so it must not call back
// into the store.
type Filter func(Item) bool

// Result is one ranked search hit.
type Result struct {
	ID        string
	Content   string
	Metadata  Metadata
	Score     float64
	CreatedAt time.Time
}

// SearchResult holds the top results and the number of items that passed
// the threshold, which may exceed len(Results).
type SearchResult struct {
	Results []Result
	Total   int
}

type hit struct {
	e     *entry
	score float64
}

// Search embeds query and ranks live items by cosine similarity.
// Expired items met during the scan are removed, and returned hits count as
// an access.
func (s *Store) Search(ctx context.Context, query string, opts ...SearchOption) (SearchResult, error) {
	ctx, span := tracer.Start(ctx, "memory.Search")
	defer span.End()

	cfg := searchConfig{limit: DefaultLimit, threshold: DefaultThreshold}
	for _, o := range opts {
		o(&cfg)
	}

	qv, err := s.embed(ctx, "search", query)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.publishError("search", err)
		return SearchResult{}, err
	}

	s.mu.RLock()
	now := s.now()
	var expired []*entry
	var hits []hit
	for _, e := range s.items {
		if IsExpired(e.item, now) {
			expired = append(expired, e)
			continue
		}
		if cfg.filter != nil && !cfg.filter(e.item.clone()) {
			continue
		}
		if len(e.item.Embedding) != len(qv) {
			s.mu.RUnlock()
			err := dimensionError(len(qv), len(e.item.Embedding))
			span.RecordError(err)
			s.publishError("search", err)
			return SearchResult{}, err
		}
		score := vector.Cosine(qv, e.item.Embedding)
		if score >= cfg.threshold {
			hits = append(hits, hit{e: e, score: score})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].e.seq < hits[j].e.seq
	})

	total := len(hits)
	if len(hits) > cfg.limit {
		hits = hits[:cfg.limit]
	}
	results := make([]Result, len(hits))
	for i, h := range hits {
		results[i] = Result{
			ID:        h.e.item.ID,
			Content:   h.e.item.Content,
			Metadata:  h.e.item.Metadata.Clone(),
			Score:     h.score,
			CreatedAt: h.e.item.CreatedAt,
		}
	}
	s.mu.RUnlock()

	pruned := s.afterSearch(expired, hits)

	span.SetAttributes(attribute.Int("memory.results", len(results)), attribute.Int("memory.total", total))
	s.sink.Publish(telemetry.Event{Type: telemetry.EventSearched, Data: map[string]interface{}{
		"query_length": len([]rune(query)),
		"results":      len(results),
		"total":        total,
	}})
	if pruned > 0 {
		s.publishPruned(pruned, "search")
	}
	return SearchResult{Results: results, Total: total}, nil
}

// afterSearch removes the expired entries found by a scan and records
// accesses for the returned hits. Entries replaced or removed since the scan
// are skipped.
func (s *Store) afterSearch(expired []*entry, hits []hit) int {
	if len(expired) == 0 && (len(hits) == 0 || s.opts.DisableAccessTracking) {
		return 0
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	pruned := 0
	for _, e := range expired {
		if cur, ok := s.items[e.item.ID]; ok && cur == e && IsExpired(e.item, now) {
			s.removeLocked(e)
			pruned++
		}
	}
	if pruned > 0 {
		s.gen++
	}
	for _, h := range hits {
		if cur, ok := s.items[h.e.item.ID]; ok && cur == h.e {
			s.touchLocked(h.e, now)
		}
	}
	return pruned
}

// MetadataEquals matches items whose metadata value at key equals value.
// Numbers compare by value regardless of their Go type.
func MetadataEquals(key string, value any) Filter {
	want, err := normalizeValue(value)
	if err != nil {
		return func(Item) bool { return false }
	}
	return func(item Item) bool {
		got, ok := item.Metadata[key]
		if !ok {
			return false
		}
		return reflect.DeepEqual(got, want)
	}
}

// MetadataGlob matches items whose string metadata value at key matches the
// doublestar pattern, for example "notes/**" or "*.md".
func MetadataGlob(key, pattern string) Filter {
	return func(item Item) bool {
		v, ok := item.Metadata[key].(string)
		if !ok {
			return false
		}
		matched, err := doublestar.Match(pattern, v)
		return err == nil && matched
	}
}

// AllOf matches items accepted by every filter. With no filters it matches everything.
func AllOf(filters ...Filter) Filter {
	return func(item Item) bool {
		for _, f := range filters {
			if f != nil && !f(item) {
				return false
			}
		}
		return true
	}
}
