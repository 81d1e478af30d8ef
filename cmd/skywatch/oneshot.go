package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/abelbrown/skywatch/internal/api"
	"github.com/abelbrown/skywatch/internal/chat"
	"github.com/abelbrown/skywatch/internal/dashboard"
	"github.com/abelbrown/skywatch/internal/devserver"
	"github.com/abelbrown/skywatch/internal/feed"
	"github.com/abelbrown/skywatch/internal/logging"
)

// oneShot runs fn against a fresh session with logs on stderr.
func oneShot(fn func(ctx context.Context, s *session) error) error {
	logging.Init(os.Stderr, cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openSession(ctx)
	if err != nil {
		return err
	}
	defer s.close()
	return fn(ctx, s)
}

var (
	feedCategory string
	feedScope    string
	feedMore     int
)

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print the merged observation feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		scopeName := feedScope
		if scopeName == "" {
			scopeName = cfg.Feed.Scope
		}
		scope, err := api.ParseScope(scopeName)
		if err != nil {
			return err
		}
		category := feedCategory
		if category == "" {
			category = cfg.Feed.Category
		}

		return oneShot(func(ctx context.Context, s *session) error {
			if err := s.dash.SetFilter(feed.FilterState{Category: category, Scope: scope}); err != nil {
				return err
			}
			for i := 0; i < feedMore; i++ {
				if err := s.settle(ctx); err != nil {
					return err
				}
				if err := s.dash.LoadMore(); err != nil {
					return err
				}
			}
			if err := s.settle(ctx); err != nil {
				return err
			}
			v, err := s.dash.Snapshot(ctx)
			if err != nil {
				return err
			}

			mf := v.Feed
			for _, o := range mf.Items {
				fmt.Printf("%s  %-6s  %-12s  %s\n",
					o.ObservedAt.Local().Format("2006-01-02 15:04"),
					strings.ToUpper(string(o.Telescope)), o.Category, o.Payload.TargetName)
			}
			fmt.Printf("\n%d observations (limit %d)\n", len(mf.Items), mf.RequestedLimit)
			for _, t := range mf.Failed {
				fmt.Printf("  %s contributed nothing\n", t)
			}
			return nil
		})
	},
}

var (
	alertMarks  []string
	alertUnread bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "List alerts, optionally marking some as seen",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertUnread {
			cfg.Alerts.UnreadOnly = true
		}
		return oneShot(func(ctx context.Context, s *session) error {
			if err := s.dash.RefreshAlerts(); err != nil {
				return err
			}
			if err := s.settle(ctx); err != nil {
				return err
			}

			var errs []error
			for _, id := range alertMarks {
				if err := s.dash.MarkSeen(ctx, id); err != nil {
					errs = append(errs, fmt.Errorf("mark %s: %w", id, err))
				}
			}
			if err := s.settle(ctx); err != nil {
				return err
			}

			v, err := s.dash.Snapshot(ctx)
			if err != nil {
				return err
			}
			for _, a := range v.Alerts {
				mark := "*"
				if a.Seen {
					mark = " "
				}
				fmt.Printf("%s %-8s %-10s %s\n", mark, a.Priority, a.ID, a.Title)
			}
			fmt.Printf("\n%d alerts, %d unread\n", len(v.Alerts), v.Unread)
			return errors.Join(errs...)
		})
	},
}

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask the assistant one question",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		question := strings.Join(args, " ")
		return oneShot(func(ctx context.Context, s *session) error {
			if err := s.dash.Send(ctx, question); err != nil {
				return err
			}
			if err := s.settle(ctx); err != nil {
				return err
			}
			v, err := s.dash.Snapshot(ctx)
			if err != nil {
				return err
			}

			turns := v.Chat.Turns
			if len(turns) == 0 {
				return errors.New("no reply")
			}
			reply := turns[len(turns)-1]
			fmt.Println(reply.Content)
			if reply.Status == chat.Errored {
				return errors.New("assistant reply failed")
			}
			if len(reply.Citations) > 0 {
				fmt.Println()
				for i, c := range reply.Citations {
					fmt.Printf("[%d] %s", i+1, c.Title)
					if c.URL != "" {
						fmt.Printf(" <%s>", c.URL)
					}
					fmt.Println()
				}
			}
			return nil
		})
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Poll every source once and report health",
	RunE: func(cmd *cobra.Command, args []string) error {
		return oneShot(func(ctx context.Context, s *session) error {
			var startErr error
			if err := s.loop.Do(ctx, func() { startErr = s.dash.Start() }); err != nil {
				return err
			}
			if startErr != nil {
				return startErr
			}
			if err := s.settle(ctx); err != nil {
				return err
			}
			v, err := s.dash.Snapshot(ctx)
			if err != nil {
				return err
			}

			printTelemetry(v.Telemetry)
			fmt.Println()
			for _, st := range v.Telemetry.Sources {
				state := "ok"
				switch {
				case st.LastErr != "":
					state = "error: " + st.LastErr
				case st.Stale:
					state = "stale"
				}
				fmt.Printf("%-22s %-10s %s\n", st.ID, st.Cadence, state)
			}

			health, err := s.dash.SourceHealth()
			if err != nil {
				logging.Warn("reading history", "err", err)
				return nil
			}
			if len(health) > 0 {
				fmt.Println("\nRecorded history:")
				for _, h := range health {
					fmt.Printf("%-22s %5d ticks %5d failures\n", h.SourceID, h.Ticks, h.Failures)
				}
			}
			return nil
		})
	},
}

func printTelemetry(t dashboard.Telemetry) {
	if t.ISS != nil {
		fmt.Printf("ISS        %.2f°, %.2f° at %.0f km\n", t.ISS.Latitude, t.ISS.Longitude, t.ISS.Altitude)
	}
	if t.JWST != nil {
		fmt.Printf("JWST       %s\n", t.JWST.CurrentTarget)
	}
	if t.Analytics != nil {
		fmt.Printf("Threat     %s\n", t.Analytics.ThreatLevel)
	}
	fmt.Printf("Weather    %d active alerts\n", len(t.SpaceWeather))
	fmt.Printf("Headlines  %d\n", len(t.Headlines))
}

var (
	devAddr      string
	devFailAcks  bool
	devFailChat  bool
	devChatDelay time.Duration
)

var devserverCmd = &cobra.Command{
	Use:   "devserver",
	Short: "Serve the backend API from fixture data",
	RunE: func(cmd *cobra.Command, args []string) error {
		logging.Init(os.Stderr, cfg.Logging.Level)

		addr := devAddr
		if addr == "" {
			addr = cfg.Devserver.Addr
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		srv := devserver.New(devserver.Options{
			FailAcks:    devFailAcks,
			FailChat:    devFailChat,
			ChatDelay:   devChatDelay,
			LogRequests: verbose,
		})
		fmt.Printf("Serving fixtures on http://%s/api\n", addr)
		return srv.Serve(ctx, addr)
	},
}

func init() {
	feedCmd.Flags().StringVar(&feedCategory, "category", "", "Only this category")
	feedCmd.Flags().StringVar(&feedScope, "scope", "", "jwst, hubble or both")
	feedCmd.Flags().IntVar(&feedMore, "more", 0, "Load more this many times")

	alertsCmd.Flags().StringSliceVar(&alertMarks, "mark", nil, "Alert IDs to mark as seen")
	alertsCmd.Flags().BoolVar(&alertUnread, "unread", false, "Only unread alerts")

	devserverCmd.Flags().StringVar(&devAddr, "addr", "", "Listen address (default from config)")
	devserverCmd.Flags().BoolVar(&devFailAcks, "fail-acks", false, "Fail alert acknowledgements")
	devserverCmd.Flags().BoolVar(&devFailChat, "fail-chat", false, "Fail chat turns")
	devserverCmd.Flags().DurationVar(&devChatDelay, "chat-delay", 0, "Delay each chat reply")
}
