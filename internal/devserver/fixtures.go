package devserver

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/abelbrown/skywatch/internal/api"
)

var targets = map[string][]string{
	"exoplanets":   {"WASP-39 b", "TRAPPIST-1 e", "K2-18 b", "HD 209458 b"},
	"galaxies":     {"NGC 628", "M51", "Stephan's Quintet", "Cartwheel Galaxy"},
	"nebulae":      {"Carina Nebula", "Southern Ring", "Pillars of Creation", "Orion Bar"},
	"stars":        {"WR 124", "Earendel", "Fomalhaut", "Eta Carinae"},
	"solar_system": {"Jupiter", "Neptune", "Europa", "Saturn"},
}

var instruments = map[api.Telescope][]string{
	api.JWST:   {"NIRCam", "MIRI", "NIRSpec", "NIRISS"},
	api.Hubble: {"WFC3", "ACS", "STIS", "COS"},
}

// fixtureEpoch anchors every generated timestamp so fixtures are stable.
var fixtureEpoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

// observationsPerTelescope is how many fixtures each telescope serves.
const observationsPerTelescope = 40

func buildObservations(t api.Telescope, prefix string, offset time.Duration) []api.Observation {
	out := make([]api.Observation, 0, observationsPerTelescope)
	for i := 0; i < observationsPerTelescope; i++ {
		cat := api.Categories[i%len(api.Categories)]
		names := targets[cat]
		inst := instruments[t]
		out = append(out, api.Observation{
			ID:          fmt.Sprintf("%s-%03d", prefix, i+1),
			Telescope:   t,
			TargetName:  names[(i/len(api.Categories))%len(names)],
			Category:    cat,
			ObservedAt:  api.Time{Time: fixtureEpoch.Add(-time.Duration(i)*7*time.Hour - offset)},
			Instrument:  inst[i%len(inst)],
			Description: fmt.Sprintf("%s observation of %s", t, names[(i/len(api.Categories))%len(names)]),
		})
	}
	return out
}

func buildAlerts() []api.Alert {
	specs := []struct {
		priority string
		kind     string
		title    string
	}{
		{"high", "space_weather", "Geomagnetic storm watch issued"},
		{"medium", "neo", "Asteroid 2024 AB passes within 5 lunar distances"},
		{"low", "launch", "Three launches scheduled this week"},
		{"high", "anomaly", "Unusual transient in JWST deep field"},
	}
	out := make([]api.Alert, 0, len(specs))
	for i, sp := range specs {
		insightID := uuid.NewString()
		out = append(out, api.Alert{
			ID:        uuid.NewString(),
			InsightID: insightID,
			Priority:  sp.priority,
			CreatedAt: api.Time{Time: fixtureEpoch.Add(-time.Duration(i) * time.Hour)},
			Insight:   &api.Insight{ID: insightID, Type: sp.kind, Title: sp.title},
		})
	}
	return out
}

var suggestions = []string{
	"What is JWST observing right now?",
	"Are there any near-Earth objects I should know about?",
	"How active is space weather today?",
	"Summarize the latest Hubble observations of nebulae.",
}

func spaceWeather() []api.SpaceWeatherAlert {
	return []api.SpaceWeatherAlert{
		{
			ID:        "sw-1",
			Type:      "WATA20",
			Message:   "WATCH: Geomagnetic Storm Category G2 Predicted",
			IssueTime: api.Time{Time: fixtureEpoch.Add(-2 * time.Hour)},
			Link:      "https://www.swpc.noaa.gov/",
		},
		{
			ID:        "sw-2",
			Type:      "ALTK04",
			Message:   "ALERT: Geomagnetic K-index of 4",
			IssueTime: api.Time{Time: fixtureEpoch.Add(-5 * time.Hour)},
		},
	}
}
