package memory

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/telemetry"
)

// testEmbedder returns fixed vectors for known texts and a deterministic
// pseudo-random vector for everything else.
type testEmbedder struct {
	mu      sync.Mutex
	dim     int
	report  int // value returned by Dimensions
	vectors map[string][]float32
	err     error
	calls   int
}

func newTestEmbedder(dim int) *testEmbedder {
	return &testEmbedder{dim: dim, report: dim, vectors: make(map[string][]float32)}
}

func (e *testEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	if e.err != nil {
		return nil, e.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v, ok := e.vectors[text]; ok {
		return append([]float32(nil), v...), nil
	}
	return hashVector(text, e.dim), nil
}

func (e *testEmbedder) Dimensions() int { return e.report }

func (e *testEmbedder) set(text string, v ...float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = v
}

func (e *testEmbedder) fail(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.err = err
}

func hashVector(text string, dim int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		seed = seed*6364136223846793005 + 1442695040888963407
		v[i] = float32(int64(seed)) / float32(math.MaxInt64)
		norm += float64(v[i]) * float64(v[i])
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordSink struct {
	mu     sync.Mutex
	events []telemetry.Event
}

func (r *recordSink) Publish(e telemetry.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordSink) count(t telemetry.EventType) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func (r *recordSink) last(t telemetry.EventType) (telemetry.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Type == t {
			return r.events[i], true
		}
	}
	return telemetry.Event{}, false
}

type fixture struct {
	store    *Store
	embedder *testEmbedder
	clock    *fakeClock
	sink     *recordSink
}

func newFixture(t *testing.T, dim int, configure func(*Options)) *fixture {
	t.Helper()
	f := &fixture{
		embedder: newTestEmbedder(dim),
		clock:    newFakeClock(),
		sink:     &recordSink{},
	}
	opts := Options{
		MaxItems:           100,
		EmbeddingDimension: dim,
		RemovalStrategy:    StrategyFIFO,
		Sink:               f.sink,
		Clock:              f.clock.Now,
	}
	if configure != nil {
		configure(&opts)
	}
	s, err := New(f.embedder, opts)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
	f.store = s
	return f
}

func (f *fixture) add(t *testing.T, content string, opts ...AddOption) string {
	t.Helper()
	id, err := f.store.Add(context.Background(), content, nil, opts...)
	if err != nil {
		t.Fatalf("Add(%q) failed: %v", content, err)
	}
	return id
}

func (f *fixture) contents() map[string]bool {
	f.store.mu.RLock()
	defer f.store.mu.RUnlock()
	out := make(map[string]bool, len(f.store.items))
	for _, e := range f.store.items {
		out[e.item.Content] = true
	}
	return out
}
