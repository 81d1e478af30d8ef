package api

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Telescope tags an observation's origin.
type Telescope string

const (
	JWST   Telescope = "jwst"
	Hubble Telescope = "hubble"
)

// Telescopes lists every telescope in fixed iteration order.
var Telescopes = []Telescope{JWST, Hubble}

// Scope selects which telescopes the observation feed queries.
type Scope string

const (
	ScopeJWST   Scope = "jwst"
	ScopeHubble Scope = "hubble"
	ScopeBoth   Scope = "both"
)

// Categories are the observation categories the backend files targets under.
var Categories = []string{"exoplanets", "galaxies", "nebulae", "stars", "solar_system"}

// ParseScope accepts "jwst", "hubble" or "both" (case-insensitive).
func ParseScope(s string) (Scope, error) {
	switch Scope(strings.ToLower(strings.TrimSpace(s))) {
	case ScopeJWST:
		return ScopeJWST, nil
	case ScopeHubble:
		return ScopeHubble, nil
	case ScopeBoth, "":
		return ScopeBoth, nil
	}
	return "", fmt.Errorf("unknown telescope scope %q", s)
}

// Telescopes returns the telescopes a scope covers.
func (s Scope) Telescopes() []Telescope {
	switch s {
	case ScopeJWST:
		return []Telescope{JWST}
	case ScopeHubble:
		return []Telescope{Hubble}
	default:
		return Telescopes
	}
}

// Time decodes the timestamp shapes the backend emits: RFC 3339, naive
// ISO 8601 (treated as UTC), or a bare date.
type Time struct {
	time.Time
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *Time) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("timestamp: %w", err)
	}
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed.UTC()
			return nil
		}
	}
	return fmt.Errorf("timestamp: unrecognized format %q", s)
}

func (t Time) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return json.Marshal(t.UTC().Format(time.RFC3339))
}

// ISSPosition is one spacecraft position sample.
type ISSPosition struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Altitude  float64 `json:"altitude"`
	Velocity  float64 `json:"velocity"`
	Timestamp int64   `json:"timestamp"`
}

// TelescopePosition is the pointing/orbit block of a status response.
type TelescopePosition struct {
	RA          float64 `json:"ra"`
	Dec         float64 `json:"dec"`
	DistanceKm  float64 `json:"distance_km"`
	VelocityKms float64 `json:"velocity_kms"`
}

// TelescopeStatus is the live status of one telescope.
type TelescopeStatus struct {
	Telescope     string             `json:"telescope"`
	Status        string             `json:"status"`
	Instrument    string             `json:"instrument,omitempty"`
	CurrentTarget string             `json:"current_target,omitempty"`
	Position      *TelescopePosition `json:"position,omitempty"`
}

// Observation is a telescope observation as served by the backend.
type Observation struct {
	ID           string    `json:"obs_id"`
	Telescope    Telescope `json:"telescope"`
	TargetName   string    `json:"target_name"`
	Category     string    `json:"category"`
	ObservedAt   Time      `json:"date_observed"`
	Instrument   string    `json:"instrument,omitempty"`
	Description  string    `json:"description,omitempty"`
	ThumbnailURL string    `json:"thumbnail_url,omitempty"`
}

// ObservationQuery holds the observation feed parameters.
type ObservationQuery struct {
	Category string
	Limit    int
	Offset   int
}

// ObservationPage is one page of a telescope's observation feed.
type ObservationPage struct {
	Observations []Observation `json:"observations"`
	Total        int           `json:"total"`
}

// AnalyticsOverview is the dashboard analytics snapshot.
type AnalyticsOverview struct {
	TotalUpcomingLaunches int            `json:"total_upcoming_launches"`
	ActiveNEOs            int            `json:"active_neos"`
	SpaceWeatherAlerts    int            `json:"space_weather_alerts"`
	ThreatLevel           string         `json:"threat_level"`
	MissionsByStatus      map[string]int `json:"missions_by_status,omitempty"`
}

// Insight is the AI-generated record an alert points at.
type Insight struct {
	ID          string `json:"id,omitempty"`
	Type        string `json:"type"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

// Alert is a notification about an insight.
type Alert struct {
	ID        string   `json:"id"`
	InsightID string   `json:"insight_id"`
	Priority  string   `json:"priority"`
	Seen      bool     `json:"seen"`
	CreatedAt Time     `json:"created_at"`
	Insight   *Insight `json:"insight,omitempty"`
}

// AlertQuery holds the alert list parameters.
type AlertQuery struct {
	UnreadOnly bool
	Limit      int
}

type alertList struct {
	Alerts []Alert `json:"alerts"`
	Count  int     `json:"count"`
}

// ChatMessage is one prior turn sent as conversation history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a chat turn.
type ChatRequest struct {
	Query               string        `json:"query"`
	ConversationHistory []ChatMessage `json:"conversation_history"`
}

// Citation is a source the assistant drew on.
type Citation struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Source string `json:"source,omitempty"`
	URL    string `json:"url,omitempty"`
}

// ChatReply is the assistant's answer.
type ChatReply struct {
	Response       string     `json:"response"`
	Sources        []Citation `json:"sources"`
	ConversationID string     `json:"conversation_id,omitempty"`
}

type suggestionList struct {
	Suggestions []string `json:"suggestions"`
}

// SpaceWeatherAlert is a space-weather notice.
type SpaceWeatherAlert struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	IssueTime Time   `json:"issue_time"`
	Link      string `json:"link,omitempty"`
}
