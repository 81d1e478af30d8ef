// Package devserver serves the dashboard backend's HTTP surface from
// fixture data, for local development and integration tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/logging"
)

// Options tune fixture behavior.
type Options struct {
	// FailAcks makes alert acknowledgements return 500 without marking.
	FailAcks bool
	// FailChat makes chat turns return 502.
	FailChat bool
	// ChatDelay holds each chat reply back.
	ChatDelay time.Duration
	// LogRequests enables chi's request logger.
	LogRequests bool
}

// Server is the fixture backend. Safe for concurrent use.
type Server struct {
	mu           sync.Mutex
	opts         Options
	observations map[api.Telescope][]api.Observation
	alerts       []api.Alert
	issTicks     int
	hits         map[string]int
	log          logging.Logger
}

// New builds a Server with fresh fixtures.
func New(opts Options) *Server {
	return &Server{
		opts: opts,
		observations: map[api.Telescope][]api.Observation{
			api.JWST:   buildObservations(api.JWST, "jw", 0),
			api.Hubble: buildObservations(api.Hubble, "hst", 3*time.Hour),
		},
		alerts: buildAlerts(),
		hits:   make(map[string]int),
		log:    logging.WithPrefix("devserver"),
	}
}

// Handler returns the router with every endpoint mounted under /api.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	if s.opts.LogRequests {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(s.count)

	r.Route("/api", func(r chi.Router) {
		r.Get("/iss-tracking", s.handleISS)
		r.Get("/telescopes/{telescope}/status", s.handleTelescopeStatus)
		r.Get("/telescopes/{telescope}/observations", s.handleObservations)
		r.Get("/analytics/overview", s.handleAnalytics)
		r.Get("/space-weather", s.handleSpaceWeather)

		r.Route("/intelligence", func(r chi.Router) {
			r.Get("/alerts", s.handleAlerts)
			r.Put("/alerts/{id}/seen", s.handleMarkSeen)
			r.Post("/chat", s.handleChat)
			r.Get("/chat/suggestions", s.handleSuggestions)
		})
	})
	return r
}

// Serve listens on addr until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("devserver listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// SetFailAcks toggles acknowledgement failures at runtime.
func (s *Server) SetFailAcks(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.FailAcks = fail
}

// SetFailChat toggles chat failures at runtime.
func (s *Server) SetFailChat(fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.opts.FailChat = fail
}

// Hits returns how many requests reached path (without /api prefix or
// query), e.g. "/iss-tracking".
func (s *Server) Hits(path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[path]
}

// AlertIDs lists the fixture alert IDs in serving order.
func (s *Server) AlertIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.alerts))
	for i, a := range s.alerts {
		ids[i] = a.ID
	}
	return ids
}

func (s *Server) count(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.hits[strings.TrimPrefix(r.URL.Path, "/api")]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleISS(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	s.issTicks++
	n := s.issTicks
	s.mu.Unlock()

	// A coarse orbit: ~92 minutes per revolution, sampled every 5s.
	phase := float64(n) * 2 * math.Pi / (92 * 12)
	writeJSON(w, http.StatusOK, api.ISSPosition{
		Latitude:  51.6 * math.Sin(phase),
		Longitude: math.Mod(float64(n)*360/(92*12)+180, 360) - 180,
		Altitude:  420 + 5*math.Cos(phase),
		Velocity:  27600,
		Timestamp: time.Now().Unix(),
	})
}

func (s *Server) handleTelescopeStatus(w http.ResponseWriter, r *http.Request) {
	t := api.Telescope(chi.URLParam(r, "telescope"))
	switch t {
	case api.JWST:
		writeJSON(w, http.StatusOK, api.TelescopeStatus{
			Telescope:     "JWST",
			Status:        "operational",
			Instrument:    "NIRCam",
			CurrentTarget: "NGC 628",
			Position:      &api.TelescopePosition{RA: 24.17, Dec: 15.78, DistanceKm: 1_500_000, VelocityKms: 0.2},
		})
	case api.Hubble:
		writeJSON(w, http.StatusOK, api.TelescopeStatus{
			Telescope:     "Hubble",
			Status:        "operational",
			Instrument:    "WFC3",
			CurrentTarget: "Carina Nebula",
			Position:      &api.TelescopePosition{RA: 161.27, Dec: -59.87, DistanceKm: 540, VelocityKms: 7.59},
		})
	default:
		writeError(w, http.StatusNotFound, "unknown telescope")
	}
}

func (s *Server) handleObservations(w http.ResponseWriter, r *http.Request) {
	t := api.Telescope(chi.URLParam(r, "telescope"))
	s.mu.Lock()
	all, ok := s.observations[t]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "unknown telescope")
		return
	}

	q := r.URL.Query()
	category := q.Get("category")
	limit := intParam(q.Get("limit"), 12)
	offset := intParam(q.Get("offset"), 0)

	var matched []api.Observation
	for _, o := range all {
		if category == "" || o.Category == category {
			matched = append(matched, o)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].ObservedAt.After(matched[j].ObservedAt.Time)
	})

	total := len(matched)
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit < len(matched) {
		matched = matched[:limit]
	}
	if matched == nil {
		matched = []api.Observation{}
	}
	writeJSON(w, http.StatusOK, api.ObservationPage{Observations: matched, Total: total})
}

func (s *Server) handleAnalytics(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	unread := 0
	for _, a := range s.alerts {
		if !a.Seen {
			unread++
		}
	}
	s.mu.Unlock()

	threat := "low"
	if unread > 2 {
		threat = "elevated"
	}
	writeJSON(w, http.StatusOK, api.AnalyticsOverview{
		TotalUpcomingLaunches: 7,
		ActiveNEOs:            12,
		SpaceWeatherAlerts:    len(spaceWeather()),
		ThreatLevel:           threat,
		MissionsByStatus:      map[string]int{"active": 24, "planned": 9, "completed": 130},
	})
}

func (s *Server) handleSpaceWeather(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, spaceWeather())
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	unreadOnly := q.Get("unread_only") == "true"
	limit := intParam(q.Get("limit"), 20)

	s.mu.Lock()
	out := make([]api.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if unreadOnly && a.Seen {
			continue
		}
		if len(out) == limit {
			break
		}
		out = append(out, a)
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"alerts": out, "count": len(out)})
}

func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.opts.FailAcks {
		writeError(w, http.StatusInternalServerError, "acknowledgement store unavailable")
		return
	}
	for i := range s.alerts {
		if s.alerts[i].ID == id {
			s.alerts[i].Seen = true
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
			return
		}
	}
	writeError(w, http.StatusNotFound, "Alert not found")
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req api.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	s.mu.Lock()
	fail, delay := s.opts.FailChat, s.opts.ChatDelay
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}
	}
	if fail {
		writeError(w, http.StatusBadGateway, "language model unavailable")
		return
	}

	reply := api.ChatReply{
		Response: fmt.Sprintf("You asked: %q. This is turn %d of our conversation. "+
			"See [NASA Webb](https://science.nasa.gov/mission/webb/) for the latest.",
			req.Query, len(req.ConversationHistory)/2+1),
		Sources: []api.Citation{
			{ID: "src-webb", Title: "Webb Space Telescope", Source: "NASA", URL: "https://science.nasa.gov/mission/webb/"},
			{ID: "src-swpc", Title: "Space Weather Prediction Center", Source: "NOAA", URL: "https://www.swpc.noaa.gov/"},
		},
		ConversationID: uuid.NewString(),
	}
	writeJSON(w, http.StatusOK, reply)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"suggestions": suggestions})
}

func intParam(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return def
	}
	return n
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError mirrors the backend's {"detail": ...} error body.
func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
