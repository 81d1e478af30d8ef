package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/config"
	"github.com/abelbrown/skywatch/internal/dashboard"
	"github.com/abelbrown/skywatch/internal/feed"
	"github.com/abelbrown/skywatch/internal/logging"
	"github.com/abelbrown/skywatch/internal/loop"
	"github.com/abelbrown/skywatch/internal/ui"
)

// shutdownTimeout bounds how long teardown waits for the loop.
const shutdownTimeout = 5 * time.Second

// newClient builds the backend client from config.
func newClient(c *config.Config) *api.Client {
	return api.New(c.API.BaseURL,
		api.WithTimeout(c.API.Timeout),
		api.WithRateLimit(c.API.RatePerSecond, c.API.Burst),
	)
}

// session is a running loop with a dashboard on it.
type session struct {
	loop   *loop.Loop
	dash   *dashboard.Dashboard
	cancel context.CancelFunc
}

// openSession starts a loop and builds the dashboard. Nothing is fetched
// until the caller starts pollers or issues commands.
func openSession(ctx context.Context) (*session, error) {
	l := loop.New()
	d, err := dashboard.New(l, newClient(cfg), cfg, dashboard.Options{Strict: strict})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		if err := l.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error("loop stopped", "err", err)
		}
	}()
	return &session{loop: l, dash: d, cancel: cancel}, nil
}

// settle waits for every outstanding request, bounded by the API timeout.
func (s *session) settle(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*cfg.API.Timeout+time.Second)
	defer cancel()
	return s.loop.Settle(ctx)
}

func (s *session) close() {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.loop.Do(ctx, s.dash.Stop); err != nil {
		logging.Warn("stopping pollers", "err", err)
	}
	s.cancel()
	<-s.loop.Done()
	if err := s.dash.Close(); err != nil {
		logging.Warn("closing history", "err", err)
	}
}

// runDashboard is the root command: the live TUI. The terminal belongs to
// the UI, so logs go to a file.
func runDashboard(cmd *cobra.Command, args []string) error {
	dir := cfg.Logging.Dir
	if dir == "" {
		dir = config.LogDir()
	}
	logPath, err := logging.InitFile(dir, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("opening log: %w", err)
	}
	defer logging.Close()
	logging.Info("skywatch starting", "version", version, "api", cfg.API.BaseURL, "log", logPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()

	scope, _ := api.ParseScope(cfg.Feed.Scope)
	app := ui.NewApp(s.dash, feed.FilterState{Category: cfg.Feed.Category, Scope: scope}, api.Categories)
	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))

	// Subscribe before starting so the first snapshots reach the UI.
	detach := ui.Attach(ctx, program, s.dash)
	defer detach()

	var startErr error
	if err := s.loop.Do(ctx, func() { startErr = s.dash.Start() }); err != nil {
		return err
	}
	if startErr != nil {
		return startErr
	}

	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running ui: %w", err)
	}
	logging.Info("skywatch stopped")
	return nil
}
