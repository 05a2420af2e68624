package memory

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/felixgeelhaar/mnemo/internal/telemetry"
)

var tracer = otel.Tracer("mnemo/memory")

type entry struct {
	item Item
	seq  uint64        // insertion order
	elem *list.Element // position in the recency list, front is most recent
}

// Store is safe for concurrent use. Embedding calls are made before the lock
// is taken.
type Store struct {
	embedder  Embedder
	opts      Options
	sink      telemetry.Sink
	persister Persister
	now       func() time.Time

	mu      sync.RWMutex
	items   map[string]*entry
	recency *list.List
	nextSeq uint64

	// gen increments on every content change; the store is dirty while it
	// differs from persistedGen.
	gen           uint64
	persistedGen  uint64
	lastPersisted time.Time

	// accessGen increments on every recorded access. Accesses alone do not
	// make the store dirty but are flushed on Shutdown and by the loop.
	accessGen          uint64
	persistedAccessGen uint64

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Store. A background loop is started when either the sweep
// interval or, with persistence enabled, the persistence interval is set;
// call Shutdown to stop it.
func New(embedder Embedder, opts Options) (*Store, error) {
	if embedder == nil {
		return nil, ErrInvalidOptions
	}
	if opts.RemovalStrategy == "" {
		opts.RemovalStrategy = StrategyFIFO
	}
	if err := opts.validate(); err != nil {
		return nil, err
	}
	if d := embedder.Dimensions(); d != 0 && d != opts.EmbeddingDimension {
		return nil, dimensionError(opts.EmbeddingDimension, d)
	}

	s := &Store{
		embedder:  embedder,
		opts:      opts,
		sink:      opts.Sink,
		persister: opts.Persister,
		now:       opts.Clock,
		items:     make(map[string]*entry),
		recency:   list.New(),
		stop:      make(chan struct{}),
	}
	if s.sink == nil {
		s.sink = telemetry.Nop{}
	}
	if s.persister == nil {
		s.persister = NopPersister{}
	}
	if s.now == nil {
		s.now = time.Now
	}

	persistEvery := time.Duration(0)
	if opts.PersistToDisk {
		persistEvery = opts.PersistenceInterval
	}
	if opts.SweepInterval > 0 || persistEvery > 0 {
		s.done = make(chan struct{})
		go s.run(opts.SweepInterval, persistEvery)
	}
	return s, nil
}

// Add embeds content and stores it, returning the new item's id.
// Capacity is enforced before Add returns.
func (s *Store) Add(ctx context.Context, content string, md Metadata, opts ...AddOption) (string, error) {
	ctx, span := tracer.Start(ctx, "memory.Add")
	defer span.End()

	cfg := addConfig{ttl: s.opts.DefaultTTL}
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.ttl < 0 {
		return "", ErrInvalidTTL
	}
	meta, err := normalizeMetadata(md)
	if err != nil {
		return "", err
	}

	vec, err := s.embed(ctx, "add", content)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.publishError("add", err)
		return "", err
	}

	now := s.now()
	item := Item{
		ID:             uuid.NewString(),
		Content:        content,
		Metadata:       meta,
		Embedding:      vec,
		CreatedAt:      now,
		TTLSeconds:     cfg.ttl,
		LastAccessedAt: now,
	}

	s.mu.Lock()
	s.insertLocked(item)
	s.gen++
	expired, evicted := s.enforceCapacityLocked(now)
	size := len(s.items)
	s.mu.Unlock()

	span.SetAttributes(attribute.String("memory.id", item.ID), attribute.Int("memory.size", size))

	s.sink.Publish(telemetry.Event{Type: telemetry.EventAdded, Data: map[string]interface{}{
		"id":             item.ID,
		"content_length": len([]rune(content)),
		"size":           size,
	}})
	if expired > 0 {
		s.publishPruned(expired, "capacity")
	}
	if evicted > 0 {
		s.sink.Publish(telemetry.Event{Type: telemetry.EventEvicted, Data: map[string]interface{}{
			"count":    evicted,
			"strategy": string(s.opts.effectiveStrategy()),
		}})
	}
	return item.ID, nil
}

// Get returns a copy of the item. Expired items are removed and reported absent.
func (s *Store) Get(id string) (Item, bool) {
	s.mu.Lock()
	e, ok := s.items[id]
	if !ok {
		s.mu.Unlock()
		return Item{}, false
	}
	now := s.now()
	if IsExpired(e.item, now) {
		s.removeLocked(e)
		s.gen++
		s.mu.Unlock()
		s.publishPruned(1, "get")
		return Item{}, false
	}
	s.touchLocked(e, now)
	out := e.item.clone()
	s.mu.Unlock()
	return out, true
}

// Delete removes the item and reports whether it was present.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	e, ok := s.items[id]
	if ok {
		s.removeLocked(e)
		s.gen++
	}
	s.mu.Unlock()

	if ok {
		s.sink.Publish(telemetry.Event{Type: telemetry.EventDeleted, Data: map[string]interface{}{"id": id}})
	}
	return ok
}

// Clear removes every item. Persistence bookkeeping is kept.
func (s *Store) Clear() {
	s.mu.Lock()
	n := len(s.items)
	s.items = make(map[string]*entry)
	s.recency.Init()
	s.gen++
	s.mu.Unlock()

	s.sink.Publish(telemetry.Event{Type: telemetry.EventCleared, Data: map[string]interface{}{"count": n}})
}

// Size counts items that have not expired. It does not remove anything.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	now := s.now()
	n := 0
	for _, e := range s.items {
		if !IsExpired(e.item, now) {
			n++
		}
	}
	return n
}

// Options returns the options the store was created with.
func (s *Store) Options() Options {
	return s.opts
}

func (s *Store) embed(ctx context.Context, op, text string) ([]float32, error) {
	vec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, &EmbeddingError{Op: op, Err: err}
	}
	if len(vec) != s.opts.EmbeddingDimension {
		return nil, dimensionError(s.opts.EmbeddingDimension, len(vec))
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, nil
}

func (s *Store) insertLocked(item Item) {
	e := &entry{item: item, seq: s.nextSeq}
	s.nextSeq++
	e.elem = s.recency.PushFront(e)
	s.items[item.ID] = e
}

func (s *Store) removeLocked(e *entry) {
	delete(s.items, e.item.ID)
	if e.elem != nil {
		s.recency.Remove(e.elem)
		e.elem = nil
	}
}

// touchLocked records an access for lru/lfu bookkeeping.
func (s *Store) touchLocked(e *entry, now time.Time) {
	if s.opts.DisableAccessTracking {
		return
	}
	e.item.LastAccessedAt = now
	e.item.AccessCount++
	s.accessGen++
	if e.elem != nil {
		s.recency.MoveToFront(e.elem)
	}
}

func (s *Store) publishPruned(n int, reason string) {
	s.sink.Publish(telemetry.Event{Type: telemetry.EventPruned, Data: map[string]interface{}{
		"count":  n,
		"reason": reason,
	}})
}

func (s *Store) publishError(op string, err error) {
	s.sink.Publish(telemetry.Event{Type: telemetry.EventError, Data: map[string]interface{}{
		"op":    op,
		"error": err,
	}})
}
