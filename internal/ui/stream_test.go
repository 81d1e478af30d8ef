package ui

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/feed"
)

var now = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

// makeObservations creates n observations ten minutes apart, all "Today".
func makeObservations(n int) []feed.Observation {
	items := make([]feed.Observation, n)
	for i := range items {
		items[i] = feed.Observation{
			ID:         fmt.Sprintf("jw-%03d", i),
			Telescope:  api.JWST,
			ObservedAt: now.Add(-time.Duration(i) * 10 * time.Minute),
			Category:   "galaxies",
			Payload:    api.Observation{TargetName: fmt.Sprintf("Target %d", i)},
		}
	}
	return items
}

// makeBandedObservations spreads items over Today (0-4), Yesterday (5-9)
// and This Week (10+).
func makeBandedObservations(n int) []feed.Observation {
	items := makeObservations(n)
	for i := range items {
		switch {
		case i < 5:
			items[i].ObservedAt = now.Add(-time.Duration(i) * time.Hour)
		case i < 10:
			items[i].ObservedAt = now.Add(-30*time.Hour - time.Duration(i)*time.Minute)
		default:
			items[i].ObservedAt = now.Add(-72*time.Hour - time.Duration(i)*time.Minute)
		}
	}
	return items
}

func TestTimeBand(t *testing.T) {
	tests := []struct {
		age  time.Duration
		want string
	}{
		{time.Hour, "Today"},
		{30 * time.Hour, "Yesterday"},
		{5 * 24 * time.Hour, "This Week"},
		{20 * 24 * time.Hour, "This Month"},
		{90 * 24 * time.Hour, "Earlier"},
	}
	for _, tt := range tests {
		if got := TimeBand(now.Add(-tt.age), now); got != tt.want {
			t.Errorf("TimeBand(-%v) = %q, want %q", tt.age, got, tt.want)
		}
	}
}

func TestCalcScrollOffset_SingleBand(t *testing.T) {
	items := makeObservations(50)

	tests := []struct {
		name       string
		cursor     int
		height     int
		wantOffset int
	}{
		{"top", 0, 10, 0},
		{"fits with header", 8, 10, 0},
		{"one past", 9, 10, 1},
		{"deep", 30, 10, 21},
		{"cursor beyond end", 80, 10, 40},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := calcScrollOffset(items, tt.cursor, tt.height, now)
			if got != tt.wantOffset {
				t.Errorf("calcScrollOffset(cursor=%d, h=%d) = %d, want %d", tt.cursor, tt.height, got, tt.wantOffset)
			}
		})
	}
}

func TestCalcScrollOffset_CursorAlwaysVisible(t *testing.T) {
	items := makeBandedObservations(30)
	for height := 3; height < 15; height++ {
		for cursor := 0; cursor < len(items); cursor++ {
			offset := calcScrollOffset(items, cursor, height, now)
			if lines := visibleLineCount(items, offset, cursor, now); lines > height {
				t.Fatalf("cursor %d, height %d: offset %d needs %d lines", cursor, height, offset, lines)
			}
		}
	}
}

func TestVisibleLineCountCountsHeaders(t *testing.T) {
	items := makeBandedObservations(12)
	// 12 items + 3 band headers.
	if got := visibleLineCount(items, 0, 11, now); got != 15 {
		t.Errorf("visibleLineCount = %d, want 15", got)
	}
	// Starting mid-band: no header for the first item.
	if got := visibleLineCount(items, 2, 4, now); got != 3 {
		t.Errorf("visibleLineCount mid-band = %d, want 3", got)
	}
}

func TestRenderStreamEmpty(t *testing.T) {
	out := RenderStream(nil, 0, 80, 10, now)
	if !strings.Contains(out, "No observations") {
		t.Errorf("expected empty state, got %q", out)
	}
}

func TestRenderStreamShowsBandsAndTargets(t *testing.T) {
	items := makeBandedObservations(12)
	out := RenderStream(items, 0, 100, 40, now)

	for _, want := range []string{"Today", "Yesterday", "This Week", "Target 0", "JWST", "galaxies"} {
		if !strings.Contains(out, want) {
			t.Errorf("rendered stream missing %q:\n%s", want, out)
		}
	}
}

func TestRenderStreamRespectsHeight(t *testing.T) {
	items := makeObservations(50)
	out := RenderStream(items, 40, 100, 10, now)

	lines := strings.Count(out, "\n")
	if lines > 10 {
		t.Errorf("rendered %d lines, want at most 10", lines)
	}
	if !strings.Contains(out, "Target 40") {
		t.Error("cursor row should be visible")
	}
	if strings.Contains(out, "Target 0\n") || strings.Contains(out, "Target 0 ") {
		t.Error("rows above the scroll offset should be hidden")
	}
}

func TestTruncateRunes(t *testing.T) {
	if got := truncateRunes("Pillars of Creation", 10); got != "Pillars..." {
		t.Errorf("got %q", got)
	}
	if got := truncateRunes("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncateRunes("anything", -4); got != "" {
		t.Errorf("got %q", got)
	}
}

func TestFormatAgeShort(t *testing.T) {
	tests := map[time.Duration]string{
		10 * time.Second: "now",
		5 * time.Minute:  "5m",
		3 * time.Hour:    "3h",
		72 * time.Hour:   "3d",
	}
	for d, want := range tests {
		if got := formatAgeShort(d); got != want {
			t.Errorf("formatAgeShort(%v) = %q, want %q", d, got, want)
		}
	}
}
