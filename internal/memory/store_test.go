package memory

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/felixgeelhaar/mnemo/internal/telemetry"
)

func TestNew_Validation(t *testing.T) {
	testCases := []struct {
		name    string
		opts    Options
		dim     int
		wantErr error
	}{
		{"zero max items", Options{MaxItems: 0, EmbeddingDimension: 4}, 4, ErrInvalidOptions},
		{"zero dimension", Options{MaxItems: 1, EmbeddingDimension: 0}, 0, ErrInvalidOptions},
		{"negative ttl", Options{MaxItems: 1, EmbeddingDimension: 4, DefaultTTL: -1}, 4, ErrInvalidTTL},
		{"embedder dimension differs", Options{MaxItems: 1, EmbeddingDimension: 4}, 8, ErrDimensionMismatch},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := New(newTestEmbedder(tc.dim), tc.opts)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("expected %v, got %v", tc.wantErr, err)
			}
		})
	}
}

func TestNew_NilEmbedder(t *testing.T) {
	if _, err := New(nil, DefaultOptions()); !errors.Is(err, ErrInvalidOptions) {
		t.Errorf("expected ErrInvalidOptions, got %v", err)
	}
}

func TestNew_DefaultsStrategy(t *testing.T) {
	s, err := New(newTestEmbedder(4), Options{MaxItems: 1, EmbeddingDimension: 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if s.Options().RemovalStrategy != StrategyFIFO {
		t.Errorf("expected fifo, got %q", s.Options().RemovalStrategy)
	}
}

func TestStore_AddGet(t *testing.T) {
	f := newFixture(t, 8, nil)
	md := Metadata{
		"kind":  "note",
		"rank":  3,
		"ok":    true,
		"none":  nil,
		"tags":  []string{"a", "b"},
		"inner": map[string]any{"depth": 2.5},
	}

	id, err := f.store.Add(context.Background(), "remember the milk", md)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	item, ok := f.store.Get(id)
	if !ok {
		t.Fatal("expected item to be present")
	}
	if item.Content != "remember the milk" {
		t.Errorf("expected content 'remember the milk', got %q", item.Content)
	}
	if len(item.Embedding) != 8 {
		t.Errorf("expected embedding of length 8, got %d", len(item.Embedding))
	}
	want := Metadata{
		"kind":  "note",
		"rank":  float64(3),
		"ok":    true,
		"none":  nil,
		"tags":  []any{"a", "b"},
		"inner": map[string]any{"depth": 2.5},
	}
	if !reflect.DeepEqual(item.Metadata, want) {
		t.Errorf("expected metadata %v, got %v", want, item.Metadata)
	}
	if !item.CreatedAt.Equal(f.clock.Now()) {
		t.Errorf("expected createdAt %v, got %v", f.clock.Now(), item.CreatedAt)
	}
}

func TestStore_ValueSemantics(t *testing.T) {
	f := newFixture(t, 4, nil)
	md := Metadata{"tags": []any{"x"}}
	id, err := f.store.Add(context.Background(), "copy me", md)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	md["tags"].([]any)[0] = "mutated"
	md["extra"] = "added"

	item, _ := f.store.Get(id)
	item.Embedding[0] = 42
	item.Metadata["kind"] = "changed"

	again, _ := f.store.Get(id)
	if again.Metadata["tags"].([]any)[0] != "x" {
		t.Errorf("caller mutation leaked into store: %v", again.Metadata)
	}
	if _, ok := again.Metadata["extra"]; ok {
		t.Error("caller map insertion leaked into store")
	}
	if _, ok := again.Metadata["kind"]; ok {
		t.Error("returned metadata aliases the stored copy")
	}
	if again.Embedding[0] == 42 {
		t.Error("returned embedding aliases the stored copy")
	}
}

func TestStore_AddInvalidMetadata(t *testing.T) {
	f := newFixture(t, 4, nil)
	_, err := f.store.Add(context.Background(), "bad", Metadata{"ch": make(chan int)})
	if !errors.Is(err, ErrInvalidMetadata) {
		t.Errorf("expected ErrInvalidMetadata, got %v", err)
	}
	if f.store.Size() != 0 {
		t.Errorf("expected empty store, got %d", f.store.Size())
	}
}

func TestStore_AddNegativeTTL(t *testing.T) {
	f := newFixture(t, 4, nil)
	if _, err := f.store.Add(context.Background(), "x", nil, WithTTL(-5)); !errors.Is(err, ErrInvalidTTL) {
		t.Errorf("expected ErrInvalidTTL, got %v", err)
	}
}

func TestStore_AddEmbeddingFailure(t *testing.T) {
	f := newFixture(t, 4, nil)
	cause := errors.New("model offline")
	f.embedder.fail(cause)

	_, err := f.store.Add(context.Background(), "x", nil)
	if !errors.Is(err, ErrEmbeddingFailed) {
		t.Fatalf("expected ErrEmbeddingFailed, got %v", err)
	}
	var embErr *EmbeddingError
	if !errors.As(err, &embErr) {
		t.Fatalf("expected *EmbeddingError, got %T", err)
	}
	if !errors.Is(err, cause) {
		t.Error("expected the provider error to be wrapped")
	}
	if f.store.Size() != 0 || f.store.Dirty() {
		t.Error("expected no state change after embedding failure")
	}
	if f.sink.count(telemetry.EventError) != 1 {
		t.Errorf("expected 1 error event, got %d", f.sink.count(telemetry.EventError))
	}
}

func TestStore_AddDimensionMismatch(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.embedder.set("short", 1, 2)

	_, err := f.store.Add(context.Background(), "short", nil)
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("expected ErrDimensionMismatch, got %v", err)
	}
}

func TestStore_AddHonorsCancellation(t *testing.T) {
	f := newFixture(t, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.store.Add(ctx, "x", nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestStore_GetMissing(t *testing.T) {
	f := newFixture(t, 4, nil)
	if _, ok := f.store.Get("nope"); ok {
		t.Error("expected missing item to be absent")
	}
}

func TestStore_DeleteIdempotent(t *testing.T) {
	f := newFixture(t, 4, nil)
	id := f.add(t, "gone soon")

	if !f.store.Delete(id) {
		t.Error("expected first delete to return true")
	}
	if f.store.Delete(id) {
		t.Error("expected second delete to return false")
	}
	if _, ok := f.store.Get(id); ok {
		t.Error("expected deleted item to be absent")
	}
	if f.sink.count(telemetry.EventDeleted) != 1 {
		t.Errorf("expected 1 deleted event, got %d", f.sink.count(telemetry.EventDeleted))
	}
}

func TestStore_Clear(t *testing.T) {
	f := newFixture(t, 4, func(o *Options) { o.PersistToDisk = true })
	f.add(t, "a")
	f.add(t, "b")
	if err := f.store.Persist(context.Background()); err != nil {
		t.Fatalf("Persist failed: %v", err)
	}
	persisted := f.store.Stats().LastPersisted

	f.store.Clear()

	if f.store.Size() != 0 {
		t.Errorf("expected size 0, got %d", f.store.Size())
	}
	st := f.store.Stats()
	if !st.LastPersisted.Equal(persisted) {
		t.Error("expected clear to keep persistence bookkeeping")
	}
	ev, ok := f.sink.last(telemetry.EventCleared)
	if !ok || ev.Data["count"] != 2 {
		t.Errorf("expected cleared event with count 2, got %v", ev)
	}
	f.add(t, "c")
	if f.store.Size() != 1 {
		t.Errorf("expected store usable after clear, got size %d", f.store.Size())
	}
}

func TestStore_AddPublishesEvent(t *testing.T) {
	f := newFixture(t, 4, nil)
	id := f.add(t, "héllo")

	ev, ok := f.sink.last(telemetry.EventAdded)
	if !ok {
		t.Fatal("expected added event")
	}
	if ev.Data["id"] != id {
		t.Errorf("expected id %q, got %v", id, ev.Data["id"])
	}
	if ev.Data["content_length"] != 5 {
		t.Errorf("expected content_length 5, got %v", ev.Data["content_length"])
	}
}

func TestStore_ConcurrentUse(t *testing.T) {
	f := newFixture(t, 8, func(o *Options) {
		o.MaxItems = 50
		o.RemovalStrategy = StrategyLRU
	})

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			ctx := context.Background()
			for i := 0; i < 40; i++ {
				id, err := f.store.Add(ctx, string(rune('a'+w))+string(rune('a'+i%26)), nil)
				if err != nil {
					t.Errorf("Add failed: %v", err)
					return
				}
				f.store.Get(id)
				if _, err := f.store.Search(ctx, "query", WithThreshold(-1)); err != nil {
					t.Errorf("Search failed: %v", err)
					return
				}
				f.store.Stats()
				if i%10 == 0 {
					f.store.PruneExpired()
				}
			}
		}(w)
	}
	wg.Wait()

	if got := f.store.Stats().TotalItems; got > 50 {
		t.Errorf("expected at most 50 items, got %d", got)
	}
}

// gatedEmbedder blocks embeddings of the gated text until release is closed.
type gatedEmbedder struct {
	*testEmbedder
	gated   string
	entered chan struct{}
	release chan struct{}
}

func (g *gatedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == g.gated {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.testEmbedder.Embed(ctx, text)
}

func TestStore_SlowEmbeddingDoesNotHoldLock(t *testing.T) {
	g := &gatedEmbedder{
		testEmbedder: newTestEmbedder(4),
		gated:        "slow",
		entered:      make(chan struct{}, 2),
		release:      make(chan struct{}),
	}
	s, err := New(g, Options{MaxItems: 10, EmbeddingDimension: 4})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = s.Shutdown(context.Background()) })

	ctx := context.Background()
	id, err := s.Add(ctx, "fast", nil)
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := s.Add(ctx, "slow", nil); err != nil {
			t.Errorf("slow Add failed: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if _, err := s.Search(ctx, "slow", WithThreshold(-1)); err != nil {
			t.Errorf("slow Search failed: %v", err)
		}
	}()
	for i := 0; i < 2; i++ {
		select {
		case <-g.entered:
		case <-time.After(2 * time.Second):
			t.Fatal("expected both embeddings to start")
		}
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if _, ok := s.Get(id); !ok {
			t.Error("expected Get to find the item")
		}
		if n := s.Size(); n != 1 {
			t.Errorf("expected size 1, got %d", n)
		}
		if _, err := s.Search(ctx, "fast"); err != nil {
			t.Errorf("Search failed: %v", err)
		}
		if _, err := s.Add(ctx, "other", nil); err != nil {
			t.Errorf("Add failed: %v", err)
		}
		s.Stats()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		close(g.release)
		t.Fatal("expected store operations to complete while an embedding is in flight")
	}

	close(g.release)
	wg.Wait()
	if n := s.Size(); n != 3 {
		t.Errorf("expected 3 items, got %d", n)
	}
}
