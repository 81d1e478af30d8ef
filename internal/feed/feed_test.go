package feed

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/loop"
)

// mockSource answers per telescope and records every query.
type mockSource struct {
	mu      sync.Mutex
	queries []query
	pages   map[api.Telescope][]api.Observation
	fail    map[api.Telescope]error
	// hold, when set for a category, blocks that query until closed.
	hold map[string]chan struct{}
}

type query struct {
	Telescope api.Telescope
	api.ObservationQuery
}

func newMockSource() *mockSource {
	return &mockSource{
		pages: map[api.Telescope][]api.Observation{},
		fail:  map[api.Telescope]error{},
		hold:  map[string]chan struct{}{},
	}
}

func (m *mockSource) Observations(ctx context.Context, t api.Telescope, q api.ObservationQuery) (api.ObservationPage, error) {
	m.mu.Lock()
	m.queries = append(m.queries, query{t, q})
	hold := m.hold[q.Category]
	err := m.fail[t]
	var out []api.Observation
	for _, o := range m.pages[t] {
		if q.Category == "" || o.Category == q.Category {
			out = append(out, o)
		}
	}
	m.mu.Unlock()

	if hold != nil {
		select {
		case <-hold:
		case <-ctx.Done():
			return api.ObservationPage{}, ctx.Err()
		}
	}
	if err != nil {
		return api.ObservationPage{}, err
	}
	if q.Limit < len(out) {
		out = out[:q.Limit]
	}
	return api.ObservationPage{Observations: out, Total: len(out)}, nil
}

func (m *mockSource) recorded() []query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]query(nil), m.queries...)
}

func apiObs(id string, tel api.Telescope, category string, secs int) api.Observation {
	return api.Observation{
		ID:         id,
		Telescope:  tel,
		Category:   category,
		ObservedAt: api.Time{Time: epoch.Add(time.Duration(secs) * time.Second)},
	}
}

func startLoop(t *testing.T) *loop.Loop {
	t.Helper()
	l := loop.New()
	ctx, cancel := context.WithCancel(context.Background())
	go l.Run(ctx)
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})
	return l
}

func on(t *testing.T, l *loop.Loop, fn func()) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Do(ctx, fn))
}

func settle(t *testing.T, l *loop.Loop) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, l.Settle(ctx))
}

func TestRefreshMergesBothTelescopes(t *testing.T) {
	l := startLoop(t)
	src := newMockSource()
	src.pages[api.JWST] = []api.Observation{apiObs("j1", api.JWST, "galaxies", 100), apiObs("j2", api.JWST, "galaxies", 300)}
	src.pages[api.Hubble] = []api.Observation{apiObs("h1", api.Hubble, "nebulae", 200)}

	var f *Feed
	var published []MergedFeed
	on(t, l, func() {
		f = New(l, src, Options{PageSize: 10})
		f.OnMergedFeedChanged(func(m MergedFeed) { published = append(published, m) })
		f.Refresh()
	})
	settle(t, l)

	on(t, l, func() {
		snap := f.Snapshot()
		assert.Equal(t, []string{"j2", "h1", "j1"}, ids(snap.Items))
		assert.False(t, snap.Loading)
		assert.Empty(t, snap.Failed)
		require.Len(t, published, 2)
		assert.True(t, published[0].Loading)
	})

	for _, q := range src.recorded() {
		assert.Equal(t, 10, q.Limit, "each source gets the full requested limit")
	}
}

func TestPartialFailureStillMerges(t *testing.T) {
	l := startLoop(t)
	src := newMockSource()
	src.pages[api.JWST] = []api.Observation{apiObs("j1", api.JWST, "", 100)}
	src.fail[api.Hubble] = errors.New("hubble down")

	var f *Feed
	on(t, l, func() {
		f = New(l, src, Options{})
		f.Refresh()
	})
	settle(t, l)

	on(t, l, func() {
		snap := f.Snapshot()
		assert.Equal(t, []string{"j1"}, ids(snap.Items))
		assert.Equal(t, []api.Telescope{api.Hubble}, snap.Failed)
	})
}

func TestSingleScopeQueriesOneSource(t *testing.T) {
	l := startLoop(t)
	src := newMockSource()
	src.pages[api.Hubble] = []api.Observation{apiObs("h1", api.Hubble, "", 1)}

	on(t, l, func() {
		New(l, src, Options{}).SetFilter(FilterState{Scope: api.ScopeHubble})
	})
	settle(t, l)

	got := src.recorded()
	require.Len(t, got, 1)
	assert.Equal(t, api.Hubble, got[0].Telescope)
}

func TestFilterChangeSupersedesSlowRequest(t *testing.T) {
	l := startLoop(t)
	src := newMockSource()
	src.pages[api.JWST] = []api.Observation{
		apiObs("g1", api.JWST, "galaxies", 1),
		apiObs("n1", api.JWST, "nebulae", 2),
	}
	slow := make(chan struct{})
	src.hold["galaxies"] = slow

	var f *Feed
	on(t, l, func() {
		f = New(l, src, Options{Filter: FilterState{Scope: api.ScopeJWST}})
		f.SetFilter(FilterState{Category: "galaxies", Scope: api.ScopeJWST})
		f.SetFilter(FilterState{Category: "nebulae", Scope: api.ScopeJWST})
	})

	// Wait for the nebulae result to land, then let the stale one finish.
	require.Eventually(t, func() bool {
		var done bool
		l.Do(context.Background(), func() { done = !f.Snapshot().Loading })
		return done
	}, 2*time.Second, time.Millisecond)
	close(slow)
	settle(t, l)

	on(t, l, func() {
		snap := f.Snapshot()
		assert.Equal(t, []string{"n1"}, ids(snap.Items))
		assert.Equal(t, "nebulae", snap.Filter.Category)
		assert.Equal(t, uint64(1), f.Dropped())
	})
}

func TestLoadMoreGrowsLimit(t *testing.T) {
	l := startLoop(t)
	src := newMockSource()
	for i := 0; i < 5; i++ {
		src.pages[api.JWST] = append(src.pages[api.JWST], apiObs(string(rune('a'+i)), api.JWST, "", 10-i))
	}

	var f *Feed
	on(t, l, func() {
		f = New(l, src, Options{PageSize: 2, Filter: FilterState{Scope: api.ScopeJWST}})
		f.Refresh()
	})
	settle(t, l)
	on(t, l, func() {
		assert.Len(t, f.Snapshot().Items, 2)
		f.LoadMore()
	})
	settle(t, l)

	on(t, l, func() {
		snap := f.Snapshot()
		assert.Equal(t, 4, snap.RequestedLimit)
		assert.Equal(t, []string{"a", "b", "c", "d"}, ids(snap.Items))
		f.SetFilter(FilterState{Scope: api.ScopeJWST})
	})
	settle(t, l)

	on(t, l, func() {
		assert.Equal(t, 2, f.Snapshot().RequestedLimit, "filter change resets pagination")
	})
}

func TestLoadingSnapshotsStayConsistent(t *testing.T) {
	l := startLoop(t)
	src := newMockSource()
	for i := 0; i < 4; i++ {
		src.pages[api.JWST] = append(src.pages[api.JWST], apiObs(string(rune('a'+i)), api.JWST, "galaxies", 10-i))
	}
	src.pages[api.JWST] = append(src.pages[api.JWST], apiObs("n1", api.JWST, "nebulae", 1))

	var f *Feed
	var published []MergedFeed
	on(t, l, func() {
		f = New(l, src, Options{PageSize: 2, Filter: FilterState{Category: "galaxies", Scope: api.ScopeJWST}})
		f.OnMergedFeedChanged(func(m MergedFeed) { published = append(published, m) })
		f.Refresh()
	})
	settle(t, l)
	on(t, l, func() { f.LoadMore() })
	settle(t, l)
	on(t, l, func() {
		require.Len(t, f.Snapshot().Items, 4)
		f.SetFilter(FilterState{Category: "nebulae", Scope: api.ScopeJWST})
	})
	settle(t, l)

	on(t, l, func() {
		for i, m := range published {
			assert.LessOrEqual(t, len(m.Items), m.RequestedLimit, "snapshot %d", i)
			for _, o := range m.Items {
				assert.Equal(t, m.Filter.Category, o.Category, "snapshot %d item %s", i, o.ID)
			}
		}

		// The loading snapshot after the filter change still shows the
		// galaxies page and names the pending request separately.
		loading := published[len(published)-2]
		require.True(t, loading.Loading)
		assert.Equal(t, "galaxies", loading.Filter.Category)
		assert.Equal(t, 4, loading.RequestedLimit)
		assert.Equal(t, "nebulae", loading.PendingFilter.Category)
		assert.Equal(t, 2, loading.PendingLimit)

		final := published[len(published)-1]
		assert.False(t, final.Loading)
		assert.Equal(t, []string{"n1"}, ids(final.Items))
		assert.Equal(t, "nebulae", final.Filter.Category)
	})
}
