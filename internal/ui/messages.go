// Package ui provides the Bubble Tea dashboard for skywatch.
//
// The UI never holds component state: snapshots arrive as messages
// (forwarded by Attach) and user actions leave through Commands.
package ui

import (
	"github.com/abelbrown/skywatch/internal/alerts"
	"github.com/abelbrown/skywatch/internal/chat"
	"github.com/abelbrown/skywatch/internal/dashboard"
	"github.com/abelbrown/skywatch/internal/feed"
	"github.com/abelbrown/skywatch/internal/store"
)

// FeedChanged carries a new merged observation feed.
type FeedChanged struct {
	Feed feed.MergedFeed
}

// AlertsChanged carries a new alert list.
type AlertsChanged struct {
	Alerts []alerts.AlertRecord
}

// SessionChanged carries a new conversation snapshot.
type SessionChanged struct {
	Session chat.SessionSnapshot
}

// TelemetryChanged is sent after every source tick.
type TelemetryChanged struct {
	Telemetry dashboard.Telemetry
}

// HistoryLoaded is sent when the ISS track and source health were read.
type HistoryLoaded struct {
	Track  []store.Position
	Health []store.Health
	Err    error
}

// CommandDone reports the outcome of a user action.
type CommandDone struct {
	Action string
	Err    error
}
