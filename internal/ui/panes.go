package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/abelbrown/skywatch/internal/alerts"
	"github.com/abelbrown/skywatch/internal/chat"
	"github.com/abelbrown/skywatch/internal/dashboard"
)

// renderAlerts lists alerts, unread first in backend order.
func renderAlerts(list []alerts.AlertRecord, cursor, width, height int, now time.Time) string {
	if len(list) == 0 {
		return HelpStyle.Render("No alerts. Press 'r' to refresh.")
	}

	start := 0
	if cursor >= height {
		start = cursor - height + 1
	}

	var b strings.Builder
	for i := start; i < len(list) && i-start < height; i++ {
		a := list[i]
		marker := "●"
		style := NormalItem
		if a.Seen {
			marker = " "
			style = SeenItem
		}
		if i == cursor {
			style = SelectedItem
		}
		prio := priorityStyles[string(a.Priority)].Render(fmt.Sprintf("%-6s", a.Priority))
		title := truncateRunes(a.Title, width-24)
		b.WriteString(fmt.Sprintf("%s %s%s %s\n", marker, prio, style.Render(title),
			MetaItem.Render(formatAgeShort(now.Sub(a.CreatedAt)))))
	}
	return b.String()
}

// renderTranscript formats the conversation for the chat viewport.
func renderTranscript(s chat.SessionSnapshot, spinnerView string, width int) string {
	if len(s.Turns) == 0 {
		var b strings.Builder
		b.WriteString(HelpStyle.Render("Ask about missions, telescopes or space weather."))
		for i, q := range s.Suggestions {
			b.WriteString(fmt.Sprintf("\n  %d. %s", i+1, q))
		}
		return b.String()
	}

	var b strings.Builder
	for _, t := range s.Turns {
		switch {
		case t.Role == chat.User:
			b.WriteString(UserTurn.Render("you") + "  " + wrap(t.Content, width-6))
		case t.Status == chat.Pending:
			b.WriteString(AssistantTurn.Render("sky") + "  " + spinnerView + " thinking")
		case t.Status == chat.Errored:
			b.WriteString(ErroredTurn.Render("sky") + "  " + ErroredTurn.Render(t.Content))
		default:
			b.WriteString(AssistantTurn.Render("sky") + "  " + wrap(t.Content, width-6))
		}
		b.WriteString("\n\n")
	}

	if len(s.Citations) > 0 {
		b.WriteString(CitationStyle.Render("Sources"))
		for i, c := range s.Citations {
			label := c.Title
			if c.Source != "" {
				label += " (" + c.Source + ")"
			}
			b.WriteString(CitationStyle.Render(fmt.Sprintf("\n  [%d] %s %s", i+1, label, c.URL)))
		}
	}
	return b.String()
}

// summaryLine condenses telemetry into the header.
func summaryLine(t dashboard.Telemetry, unread int) string {
	var parts []string
	if t.ISS != nil {
		parts = append(parts, fmt.Sprintf("ISS %.1f°, %.1f° @ %.0f km", t.ISS.Latitude, t.ISS.Longitude, t.ISS.Altitude))
	}
	if t.JWST != nil {
		parts = append(parts, "JWST → "+t.JWST.CurrentTarget)
	}
	if t.Analytics != nil {
		parts = append(parts, "threat "+t.Analytics.ThreatLevel)
	}
	if n := len(t.SpaceWeather); n > 0 {
		parts = append(parts, fmt.Sprintf("%d space weather", n))
	}
	parts = append(parts, fmt.Sprintf("%d unread", unread))
	stale := 0
	for _, s := range t.Sources {
		if s.Stale {
			stale++
		}
	}
	if stale > 0 {
		parts = append(parts, StaleStyle.Render(fmt.Sprintf("%d stale", stale)))
	}
	if len(t.Headlines) > 0 {
		parts = append(parts, "news: "+truncateRunes(t.Headlines[0].Title, 40))
	}
	return strings.Join(parts, "  |  ")
}

// wrap breaks s on spaces so no line exceeds width runes.
func wrap(s string, width int) string {
	if width < 10 {
		width = 10
	}
	var out strings.Builder
	for pi, para := range strings.Split(s, "\n") {
		if pi > 0 {
			out.WriteString("\n")
		}
		lineLen := 0
		for wi, word := range strings.Fields(para) {
			n := len([]rune(word))
			if wi > 0 && lineLen+1+n > width {
				out.WriteString("\n     ")
				lineLen = 0
			} else if wi > 0 {
				out.WriteString(" ")
				lineLen++
			}
			out.WriteString(word)
			lineLen += n
		}
	}
	return out.String()
}
