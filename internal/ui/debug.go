package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/skywatch/internal/dashboard"
	"github.com/abelbrown/skywatch/internal/store"
)

// debugPanelChrome is the number of terminal lines consumed by DebugPanel's
// border (top + bottom = 2) and vertical padding (top + bottom = 2).
// Must be updated if DebugPanel style changes.
const debugPanelChrome = 4

// sourcesPanel renders live source status, recorded tick history and the
// ISS ground track. Pure function.
func sourcesPanel(sources []dashboard.SourceStatus, health []store.Health, track []store.Position, width, height int, now time.Time) string {
	byID := make(map[string]store.Health, len(health))
	for _, h := range health {
		byID[h.SourceID] = h
	}

	var lines []string
	lines = append(lines, DebugHeaderStyle.Render("Sources"))
	if len(sources) == 0 {
		lines = append(lines, "  waiting for the first poll...")
	}
	for _, s := range sources {
		state := HealthyStyle.Render("ok   ")
		if s.Stale {
			state = StaleStyle.Render("STALE")
		}
		line := fmt.Sprintf("  %s  %-18s every %-12s", state, truncateRunes(s.ID, 18), s.Cadence)
		if !s.LastSuccessAt.IsZero() {
			line += "  last ok " + formatAge(now.Sub(s.LastSuccessAt)) + " ago"
		}
		if h, ok := byID[s.ID]; ok {
			line += fmt.Sprintf("  %d/%d failed", h.Failures, h.Ticks)
		}
		if s.LastErr != "" {
			line += "  ERR:" + truncateRunes(s.LastErr, 30)
		}
		lines = append(lines, line)
	}
	lines = append(lines, "")

	lines = append(lines, DebugHeaderStyle.Render("ISS Track"))
	if len(track) == 0 {
		lines = append(lines, "  no positions recorded yet")
	}
	for i := len(track) - 1; i >= 0 && i >= len(track)-5; i-- {
		p := track[i]
		lines = append(lines, fmt.Sprintf("  %6s  lat %7.2f  lon %8.2f  alt %6.1f km",
			formatAge(now.Sub(p.At)), p.Latitude, p.Longitude, p.Altitude))
	}

	// Truncate to fit terminal height (subtract chrome added by DebugPanel border/padding)
	maxHeight := height - debugPanelChrome
	if maxHeight < 1 {
		maxHeight = 1
	}
	if len(lines) > maxHeight {
		lines = lines[:maxHeight]
	}

	panelWidth := 96
	if panelWidth > width-4 {
		panelWidth = width - 4
	}
	if panelWidth < 20 {
		panelWidth = 20
	}

	return DebugPanel.Width(panelWidth).Render(strings.Join(lines, "\n"))
}

// formatAge formats a duration as a compact human string.
// Handles negative durations from clock skew by clamping to "0ms".
func formatAge(d time.Duration) string {
	if d < 0 {
		return "0ms"
	}
	switch {
	case d < time.Second:
		return fmt.Sprintf("%dms", d.Milliseconds())
	case d < time.Minute:
		return fmt.Sprintf("%.1fs", d.Seconds())
	default:
		return fmt.Sprintf("%.0fm", d.Minutes())
	}
}
