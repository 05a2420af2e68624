package memory

import (
	"testing"
	"time"
)

func TestStats_Empty(t *testing.T) {
	f := newFixture(t, 4, nil)
	st := f.store.Stats()

	if st.TotalItems != 0 || st.LiveItems != 0 || st.ExpiredItems != 0 {
		t.Errorf("expected zero counts, got %+v", st)
	}
	if st.AvgContentLength != 0 {
		t.Errorf("expected avg content length 0, got %f", st.AvgContentLength)
	}
	if st.ApproxBytes != 0 {
		t.Errorf("expected 0 bytes, got %d", st.ApproxBytes)
	}
	if st.MaxItems != 100 || st.Dimension != 4 || st.Strategy != StrategyFIFO {
		t.Errorf("unexpected configuration echo: %+v", st)
	}
}

func TestStats_AgeBuckets(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.add(t, "old")
	f.clock.Advance(5 * 24 * time.Hour)
	f.add(t, "week")
	f.clock.Advance(2*24*time.Hour + 20*time.Hour)
	f.add(t, "day")
	f.clock.Advance(3*time.Hour + 30*time.Minute)
	f.add(t, "hour")
	f.clock.Advance(30 * time.Minute)

	st := f.store.Stats()
	want := AgeBuckets{LastHour: 1, LastDay: 1, LastWeek: 1, Older: 1}
	if st.Age != want {
		t.Errorf("expected %+v, got %+v", want, st.Age)
	}
}

func TestStats_FootprintAndAverage(t *testing.T) {
	f := newFixture(t, 8, nil)
	if _, err := f.store.Add(t.Context(), "héllo", Metadata{"k": "v"}); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	f.add(t, "abc")

	st := f.store.Stats()
	// "héllo": 2*5 + 4*8 + 2*len(`{"k":"v"}`) = 10 + 32 + 18
	// "abc":   2*3 + 4*8 = 38
	if st.ApproxBytes != 60+38 {
		t.Errorf("expected 98 bytes, got %d", st.ApproxBytes)
	}
	if st.AvgContentLength != 4 {
		t.Errorf("expected avg content length 4, got %f", st.AvgContentLength)
	}
}

func TestStats_CountsExpiredWithoutPruning(t *testing.T) {
	f := newFixture(t, 4, nil)
	f.add(t, "expired!", WithTTL(1))
	f.add(t, "kept")
	f.clock.Advance(2 * time.Second)

	for i := 0; i < 2; i++ {
		st := f.store.Stats()
		if st.TotalItems != 2 || st.LiveItems != 1 || st.ExpiredItems != 1 {
			t.Errorf("pass %d: expected 2 total, 1 live, 1 expired, got %+v", i, st)
		}
		if st.AvgContentLength != 4 {
			t.Errorf("expected average over live items only, got %f", st.AvgContentLength)
		}
	}
}

func TestStats_Dirty(t *testing.T) {
	f := newFixture(t, 4, func(o *Options) { o.PersistToDisk = true })
	if f.store.Stats().Dirty {
		t.Error("expected new store to be clean")
	}
	f.add(t, "x")
	if !f.store.Stats().Dirty {
		t.Error("expected add to mark the store dirty")
	}
}
