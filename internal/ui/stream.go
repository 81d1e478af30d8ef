package ui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/lipgloss"

	"github.com/abelbrown/skywatch/internal/feed"
)

// TimeBand returns a display string for grouping observations by age.
func TimeBand(observed, now time.Time) string {
	age := now.Sub(observed)
	switch {
	case age < 24*time.Hour:
		return "Today"
	case age < 48*time.Hour:
		return "Yesterday"
	case age < 7*24*time.Hour:
		return "This Week"
	case age < 30*24*time.Hour:
		return "This Month"
	default:
		return "Earlier"
	}
}

// RenderStream renders the observation list with time bands, scrolled so
// the cursor stays visible.
func RenderStream(items []feed.Observation, cursor, width, height int, now time.Time) string {
	if len(items) == 0 {
		return HelpStyle.Render("No observations for this filter. Press 'r' to refresh.")
	}

	var b strings.Builder
	currentBand := ""
	renderedLines := 0

	availableHeight := height
	if availableHeight < 1 {
		availableHeight = 1
	}
	scrollOffset := calcScrollOffset(items, cursor, availableHeight, now)

	for i, item := range items {
		if renderedLines >= availableHeight {
			break
		}

		// Track band state for skipped items too so headers render
		// correctly at the top of the visible region.
		band := TimeBand(item.ObservedAt, now)
		if band != currentBand {
			currentBand = band
			if i >= scrollOffset {
				b.WriteString(TimeBandHeader.Render(band))
				b.WriteString("\n")
				renderedLines++
			}
		}

		if i < scrollOffset || renderedLines >= availableHeight {
			continue
		}

		b.WriteString(renderObservationLine(item, i == cursor, width, now))
		b.WriteString("\n")
		renderedLines++
	}

	return b.String()
}

// calcScrollOffset finds the smallest item index such that every line from
// that index through the cursor, band headers included, fits in
// availableHeight.
func calcScrollOffset(items []feed.Observation, cursor, availableHeight int, now time.Time) int {
	if len(items) == 0 || cursor < 0 {
		return 0
	}
	if cursor >= len(items) {
		cursor = len(items) - 1
	}

	offset := 0
	if cursor >= availableHeight {
		offset = cursor - availableHeight + 1
	}
	for offset <= cursor {
		if visibleLineCount(items, offset, cursor, now) <= availableHeight {
			return offset
		}
		offset++
	}
	return cursor
}

// visibleLineCount counts the rendered lines of items[from..to], including
// the band headers that appear within that range.
func visibleLineCount(items []feed.Observation, from, to int, now time.Time) int {
	lines := 0
	currentBand := ""
	if from > 0 {
		currentBand = TimeBand(items[from-1].ObservedAt, now)
	}
	for i := from; i <= to && i < len(items); i++ {
		band := TimeBand(items[i].ObservedAt, now)
		if band != currentBand {
			currentBand = band
			lines++
		}
		lines++
	}
	return lines
}

func renderObservationLine(o feed.Observation, selected bool, width int, now time.Time) string {
	tag := string(o.Telescope)
	badge := TelescopeBadge.Foreground(telescopeColors[tag]).Render(strings.ToUpper(tag))
	badgeWidth := lipgloss.Width(badge)

	age := formatAgeShort(now.Sub(o.ObservedAt))
	meta := fmt.Sprintf("%s · %s", o.Category, age)
	if o.Payload.Instrument != "" {
		meta = o.Payload.Instrument + " · " + meta
	}

	titleWidth := width - badgeWidth - lipgloss.Width(meta) - 6
	if titleWidth < 20 {
		titleWidth = 20
	}
	title := o.Payload.TargetName
	if title == "" {
		title = o.ID
	}
	title = truncateRunes(title, titleWidth)

	style := NormalItem
	if selected {
		style = SelectedItem
	}
	return badge + style.Render(title) + " " + MetaItem.Render(meta)
}

// formatAgeShort formats an observation age compactly ("3h", "5d").
func formatAgeShort(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "now"
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 48*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// truncateRunes shortens s to max runes, appending "..." when cut.
func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 0 {
		return ""
	}
	if max <= 3 {
		return string([]rune(s)[:max])
	}
	return string([]rune(s)[:max-3]) + "..."
}
