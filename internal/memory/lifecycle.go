package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/telemetry"
)

// Persister is the storage seam behind Persist and Load.
type Persister interface {
	// Persist replaces the stored snapshot with items, given in insertion order.
	Persist(ctx context.Context, items []Item) error
	// Load returns the stored snapshot in insertion order.
	Load(ctx context.Context) ([]Item, error)
}

// NopPersister keeps nothing.
type NopPersister struct{}

func (NopPersister) Persist(context.Context, []Item) error { return nil }

func (NopPersister) Load(context.Context) ([]Item, error) { return nil, nil }

// Dirty reports whether the store changed since the last successful Persist.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen != s.persistedGen
}

// unsaved reports content changes or accesses not yet handed to the persister.
func (s *Store) unsaved() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gen != s.persistedGen || s.accessGen != s.persistedAccessGen
}

// Persist hands a snapshot to the persister when PersistToDisk is set.
// The store is left dirty if it changed while the snapshot was being written.
// Failures are reported to the sink and returned; the in-memory state is untouched.
func (s *Store) Persist(ctx context.Context) error {
	if !s.opts.PersistToDisk {
		return nil
	}

	s.mu.RLock()
	gen, accessGen := s.gen, s.accessGen
	snapshot := make([]Item, 0, len(s.items))
	for _, e := range s.byInsertionLocked() {
		snapshot = append(snapshot, e.item.clone())
	}
	s.mu.RUnlock()

	if err := s.persister.Persist(ctx, snapshot); err != nil {
		err = fmt.Errorf("persist: %w", err)
		s.publishError("persist", err)
		return err
	}

	s.mu.Lock()
	if gen > s.persistedGen {
		s.persistedGen = gen
	}
	if accessGen > s.persistedAccessGen {
		s.persistedAccessGen = accessGen
	}
	s.lastPersisted = s.now()
	s.mu.Unlock()

	s.sink.Publish(telemetry.Event{Type: telemetry.EventPersisted, Data: map[string]interface{}{"count": len(snapshot)}})
	return nil
}

// Load inserts the persister's snapshot. Expired items and ids already in the
// store are skipped, and capacity is enforced. A snapshot with a wrong
// embedding length is rejected as a whole. Loading does not mark the store
// dirty unless items had to be dropped.
func (s *Store) Load(ctx context.Context) (int, error) {
	if !s.opts.PersistToDisk {
		return 0, nil
	}

	loaded, err := s.persister.Load(ctx)
	if err != nil {
		err = fmt.Errorf("load: %w", err)
		s.publishError("load", err)
		return 0, err
	}

	items := make([]Item, 0, len(loaded))
	for _, it := range loaded {
		if len(it.Embedding) != s.opts.EmbeddingDimension {
			err := fmt.Errorf("load item %s: %w", it.ID, dimensionError(s.opts.EmbeddingDimension, len(it.Embedding)))
			s.publishError("load", err)
			return 0, err
		}
		meta, err := normalizeMetadata(it.Metadata)
		if err != nil {
			err = fmt.Errorf("load item %s: %w", it.ID, err)
			s.publishError("load", err)
			return 0, err
		}
		it.Metadata = meta
		it.Embedding = append([]float32(nil), it.Embedding...)
		if it.LastAccessedAt.IsZero() {
			it.LastAccessedAt = it.CreatedAt
		}
		items = append(items, it)
	}

	s.mu.Lock()
	now := s.now()
	inserted := 0
	dropped := 0
	// Least recently used items go to the back of the recency list.
	order := make([]int, len(items))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return items[order[a]].LastAccessedAt.After(items[order[b]].LastAccessedAt)
	})
	seqs := make(map[int]uint64, len(items))
	seen := make(map[string]bool, len(items))
	for i, it := range items {
		if _, exists := s.items[it.ID]; exists || seen[it.ID] || it.ID == "" || IsExpired(it, now) {
			dropped++
			continue
		}
		seen[it.ID] = true
		seqs[i] = s.nextSeq
		s.nextSeq++
	}
	for _, i := range order {
		seq, ok := seqs[i]
		if !ok {
			continue
		}
		e := &entry{item: items[i], seq: seq}
		e.elem = s.recency.PushBack(e)
		s.items[e.item.ID] = e
		inserted++
	}
	expired, evicted := s.enforceCapacityLocked(now)
	if dropped+expired+evicted > 0 {
		s.gen++
	}
	s.mu.Unlock()

	s.sink.Publish(telemetry.Event{Type: telemetry.EventLoaded, Data: map[string]interface{}{
		"count":   inserted - expired - evicted,
		"skipped": dropped,
	}})
	if evicted > 0 {
		s.sink.Publish(telemetry.Event{Type: telemetry.EventEvicted, Data: map[string]interface{}{
			"count":    evicted,
			"strategy": string(s.opts.effectiveStrategy()),
		}})
	}
	return inserted - expired - evicted, nil
}

// Shutdown stops the background loop and flushes pending changes, including
// recorded accesses, so recency and frequency survive a restart. It waits
// for the loop at most until ctx is done. Calling it again only flushes.
func (s *Store) Shutdown(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stop) })
	if s.done != nil {
		select {
		case <-s.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if s.unsaved() {
		return s.Persist(ctx)
	}
	return nil
}

func (s *Store) run(sweepEvery, persistEvery time.Duration) {
	defer close(s.done)

	var sweepC, persistC <-chan time.Time
	if sweepEvery > 0 {
		t := time.NewTicker(sweepEvery)
		defer t.Stop()
		sweepC = t.C
	}
	if persistEvery > 0 {
		t := time.NewTicker(persistEvery)
		defer t.Stop()
		persistC = t.C
	}

	for {
		select {
		case <-s.stop:
			return
		case <-sweepC:
			s.PruneExpired()
		case <-persistC:
			if !s.unsaved() {
				continue
			}
			ctx, cancel := context.WithTimeout(context.Background(), persistEvery)
			_ = s.Persist(ctx) // reported to the sink
			cancel()
		}
	}
}
