package feed

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/clock"
	"github.com/abelbrown/skywatch/internal/logging"
	"github.com/abelbrown/skywatch/internal/loop"
	"github.com/abelbrown/skywatch/internal/pubsub"
	"github.com/abelbrown/skywatch/internal/supersede"
)

// DefaultPageSize is how many items each LoadMore adds.
const DefaultPageSize = 12

// maxConcurrentSources bounds the per-telescope fan-out.
const maxConcurrentSources = 4

// slot is the single supersession key of the feed. Every filter change or
// page request replaces the previous one outright.
const slot = "observations"

// Source queries one telescope's observation feed.
type Source interface {
	Observations(ctx context.Context, t api.Telescope, q api.ObservationQuery) (api.ObservationPage, error)
}

// Options configures a Feed.
type Options struct {
	PageSize int
	Filter   FilterState
	Clock    clock.Clock
}

type fetched struct {
	lists  [][]Observation
	failed []api.Telescope
}

// Feed owns the MergedFeed. All methods must be called on the loop.
type Feed struct {
	src      Source
	ctrl     *supersede.Controller[fetched]
	clock    clock.Clock
	pageSize int

	filter  FilterState
	limit   int
	current MergedFeed
	changed pubsub.Topic[MergedFeed]
	log     logging.Logger
}

// New creates a Feed. Nothing is fetched until Refresh or SetFilter.
func New(l *loop.Loop, src Source, opts Options) *Feed {
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.Filter.Scope == "" {
		opts.Filter.Scope = api.ScopeBoth
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	f := &Feed{
		src:      src,
		ctrl:     supersede.New[fetched](l, "feed"),
		clock:    opts.Clock,
		pageSize: opts.PageSize,
		filter:   opts.Filter,
		limit:    opts.PageSize,
		log:      logging.WithPrefix("feed"),
	}
	f.current = MergedFeed{Items: []Observation{}, RequestedLimit: f.limit, Filter: f.filter}
	return f
}

// SetFilter replaces the filter, resets pagination and refetches. Any
// request issued under the previous filter is superseded.
func (f *Feed) SetFilter(fs FilterState) {
	if fs.Scope == "" {
		fs.Scope = api.ScopeBoth
	}
	f.log.Debug("filter changed", "category", fs.Category, "scope", fs.Scope)
	f.filter = fs
	f.limit = f.pageSize
	f.Refresh()
}

// Filter returns the active filter.
func (f *Feed) Filter() FilterState {
	return f.filter
}

// LoadMore grows the requested limit by one page and refetches.
func (f *Feed) LoadMore() {
	f.limit += f.pageSize
	f.Refresh()
}

// Refresh queries every telescope in scope with the current filter and
// limit, then re-merges wholesale.
func (f *Feed) Refresh() supersede.Token {
	filter, limit := f.filter, f.limit
	telescopes := filter.Scope.Telescopes()

	loading := f.current
	loading.Loading = true
	loading.PendingFilter = filter
	loading.PendingLimit = limit
	f.publish(loading)

	op := func(ctx context.Context) (fetched, error) {
		res := fetched{lists: make([][]Observation, len(telescopes))}
		var mu sync.Mutex

		var g errgroup.Group
		g.SetLimit(maxConcurrentSources)
		for i, t := range telescopes {
			g.Go(func() error {
				if ctx.Err() != nil {
					return nil
				}
				page, err := f.src.Observations(ctx, t, api.ObservationQuery{Category: filter.Category, Limit: limit})
				if err != nil {
					// Partial failure: this telescope contributes nothing.
					f.log.Warn("observation source failed", "telescope", t, "err", err)
					mu.Lock()
					res.failed = append(res.failed, t)
					mu.Unlock()
					return nil
				}
				list := make([]Observation, 0, len(page.Observations))
				for _, o := range page.Observations {
					if o.Telescope == "" {
						o.Telescope = t
					}
					list = append(list, FromAPI(o))
				}
				res.lists[i] = list
				return nil
			})
		}
		_ = g.Wait() // never fails, errors are recorded per telescope
		return res, nil
	}

	return f.ctrl.Dispatch(slot, op, func(res fetched, _ error) {
		merged := Merge(res.lists, limit)
		merged.Filter = filter
		merged.Failed = orderFailed(telescopes, res.failed)
		merged.UpdatedAt = f.clock.Now()
		f.log.Debug("feed merged", "items", len(merged.Items), "limit", limit, "failed", len(merged.Failed))
		f.publish(merged)
	})
}

// Snapshot returns the latest MergedFeed. Treat it as read-only.
func (f *Feed) Snapshot() MergedFeed {
	return f.current
}

// OnMergedFeedChanged subscribes to feed snapshots.
func (f *Feed) OnMergedFeedChanged(fn func(MergedFeed)) (cancel func()) {
	return f.changed.Subscribe(fn)
}

// Dropped reports how many superseded responses were discarded.
func (f *Feed) Dropped() uint64 {
	return f.ctrl.Dropped()
}

func (f *Feed) publish(m MergedFeed) {
	f.current = m
	f.changed.Publish(m)
}

// orderFailed lists failures in source iteration order.
func orderFailed(order, failed []api.Telescope) []api.Telescope {
	if len(failed) == 0 {
		return nil
	}
	out := make([]api.Telescope, 0, len(failed))
	for _, t := range order {
		for _, ft := range failed {
			if ft == t {
				out = append(out, t)
				break
			}
		}
	}
	return out
}
