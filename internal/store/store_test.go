package store

import (
	"sync"
	"testing"
	"time"
)

var base = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func openTest(t *testing.T, max int) *Store {
	t.Helper()
	st, err := Open(max)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpenCreatesTables(t *testing.T) {
	st := openTest(t, 0)

	for _, table := range []string{"positions", "source_ticks"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table not created: %v", table, err)
		}
	}
}

func TestStoresAreIsolated(t *testing.T) {
	a := openTest(t, 0)
	b := openTest(t, 0)

	if err := a.AddPosition(Position{Latitude: 1, At: base}); err != nil {
		t.Fatal(err)
	}
	track, err := b.Track(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(track) != 0 {
		t.Errorf("second store should be empty, got %d positions", len(track))
	}
}

func TestTrackOldestFirstAndBounded(t *testing.T) {
	st := openTest(t, 3)

	for i := 0; i < 5; i++ {
		p := Position{Latitude: float64(i), Longitude: float64(-i), At: base.Add(time.Duration(i) * time.Second)}
		if err := st.AddPosition(p); err != nil {
			t.Fatalf("AddPosition: %v", err)
		}
	}

	track, err := st.Track(10)
	if err != nil {
		t.Fatalf("Track: %v", err)
	}
	if len(track) != 3 {
		t.Fatalf("expected track pruned to 3, got %d", len(track))
	}
	for i, want := range []float64{2, 3, 4} {
		if track[i].Latitude != want {
			t.Errorf("track[%d].Latitude = %v, want %v", i, track[i].Latitude, want)
		}
	}
	if !track[2].At.Equal(base.Add(4 * time.Second)) {
		t.Errorf("unexpected timestamp %v", track[2].At)
	}

	last, err := st.Track(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(last) != 1 || last[0].Latitude != 4 {
		t.Errorf("Track(1) = %+v", last)
	}
}

func TestSourceHealth(t *testing.T) {
	st := openTest(t, 0)

	ticks := []Tick{
		{SourceID: "iss", At: base},
		{SourceID: "iss", At: base.Add(5 * time.Second), Err: "timeout"},
		{SourceID: "analytics", At: base},
	}
	for _, tk := range ticks {
		if err := st.RecordTick(tk); err != nil {
			t.Fatalf("RecordTick: %v", err)
		}
	}

	health, err := st.SourceHealth()
	if err != nil {
		t.Fatalf("SourceHealth: %v", err)
	}
	if len(health) != 2 {
		t.Fatalf("expected 2 sources, got %d", len(health))
	}
	if health[0].SourceID != "analytics" || health[0].Failures != 0 || health[0].LastErr != "" {
		t.Errorf("unexpected analytics health %+v", health[0])
	}
	iss := health[1]
	if iss.Ticks != 2 || iss.Failures != 1 || iss.LastErr != "timeout" {
		t.Errorf("unexpected iss health %+v", iss)
	}
	if !iss.LastSuccessAt.Equal(base) || !iss.LastTickAt.Equal(base.Add(5*time.Second)) {
		t.Errorf("unexpected iss times %+v", iss)
	}
}

func TestRecorderFlushesOnClose(t *testing.T) {
	st := openTest(t, 0)
	r := NewRecorder(st)

	for i := 0; i < 10; i++ {
		r.Position(Position{Latitude: float64(i), At: base})
	}
	r.Tick(Tick{SourceID: "iss", At: base})
	r.Close()

	track, err := st.Track(100)
	if err != nil {
		t.Fatal(err)
	}
	if len(track)+int(r.Dropped()) != 10 {
		t.Errorf("expected 10 positions written or dropped, got %d written, %d dropped", len(track), r.Dropped())
	}
}

func TestRecorderAfterCloseDrops(t *testing.T) {
	st := openTest(t, 0)
	r := NewRecorder(st)
	r.Close()
	r.Close()

	r.Position(Position{At: base})
	if r.Dropped() != 1 {
		t.Errorf("expected 1 dropped write, got %d", r.Dropped())
	}
}

func TestRecorderConcurrentUse(t *testing.T) {
	st := openTest(t, 0)
	r := NewRecorder(st)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 20; i++ {
				r.Tick(Tick{SourceID: "s", At: base})
			}
		}()
	}
	wg.Wait()
	r.Close()

	health, err := st.SourceHealth()
	if err != nil {
		t.Fatal(err)
	}
	written := 0
	if len(health) == 1 {
		written = health[0].Ticks
	}
	if written+int(r.Dropped()) != 80 {
		t.Errorf("writes lost without being counted: %d written, %d dropped", written, r.Dropped())
	}
}
