// Package feed merges per-telescope observation pages into one ordered,
// deduplicated view and keeps that view current as the filter changes.
package feed

import (
	"sort"
	"time"

	"github.com/abelbrown/skywatch/internal/api"
)

// Observation is an immutable observation record. Identity is ID.
type Observation struct {
	ID         string
	Telescope  api.Telescope
	ObservedAt time.Time
	Category   string
	Payload    api.Observation
}

// FromAPI converts a backend observation.
func FromAPI(o api.Observation) Observation {
	return Observation{
		ID:         o.ID,
		Telescope:  o.Telescope,
		ObservedAt: o.ObservedAt.Time,
		Category:   o.Category,
		Payload:    o,
	}
}

// FilterState selects what the feed shows. An empty Category means all.
type FilterState struct {
	Category string
	Scope    api.Scope
}

// MergedFeed is a derived snapshot. It is rebuilt, never edited.
type MergedFeed struct {
	Items          []Observation
	RequestedLimit int

	Filter    FilterState
	Failed    []api.Telescope // sources that contributed nothing this round
	UpdatedAt time.Time

	// While Loading, Items, Filter and RequestedLimit still describe the
	// last merge; the request in flight is PendingFilter/PendingLimit.
	Loading       bool
	PendingFilter FilterState
	PendingLimit  int
}

// Merge concatenates lists in order, keeps the first occurrence of each
// ID, sorts by ObservedAt descending (ties by telescope tag, then ID) and
// truncates to limit. It holds no state and does not modify its input.
func Merge(lists [][]Observation, limit int) MergedFeed {
	if limit < 0 {
		limit = 0
	}

	seen := make(map[string]bool)
	var items []Observation
	for _, list := range lists {
		for _, o := range list {
			if seen[o.ID] {
				continue
			}
			seen[o.ID] = true
			items = append(items, o)
		}
	}

	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.ObservedAt.Equal(b.ObservedAt) {
			return a.ObservedAt.After(b.ObservedAt)
		}
		if a.Telescope != b.Telescope {
			return a.Telescope < b.Telescope
		}
		return a.ID < b.ID
	})

	if len(items) > limit {
		items = items[:limit]
	}
	if items == nil {
		items = []Observation{}
	}
	return MergedFeed{Items: items, RequestedLimit: limit}
}
