package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/jonboulle/clockwork"
	"github.com/spf13/cobra"

	"github.com/nhle/portal-notify/internal/app"
	"github.com/nhle/portal-notify/internal/metrics"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/notify"
	"github.com/nhle/portal-notify/internal/portal"
	"github.com/nhle/portal-notify/internal/realtime"
	"github.com/nhle/portal-notify/internal/session"
	appsync "github.com/nhle/portal-notify/internal/sync"
)

var (
	watchHeadless    bool
	watchMetricsAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow the notification stream",
	Long: `Opens the notification bell for the logged-in role. The realtime
feed, unread reconciliation and fallback polling run in the background.

With --headless new notifications are printed one per line and logs go to
stderr, for running under a service manager.`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().BoolVar(&watchHeadless, "headless", false, "print notifications instead of opening the TUI")
	watchCmd.Flags().StringVar(&watchMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides metrics.addr)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	rt, err := bootstrap(watchHeadless)
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ns, err := rt.openStore(ctx)
	if err != nil {
		return err
	}

	cfg := rt.cfg
	transport := realtime.NewStompTransport(cfg.Realtime.URL, cfg.Realtime.HeartBeat)
	listener := realtime.NewListener(transport, func(payload map[string]any) {
		ns.HandleRealtime(payload)
	}, realtime.Options{
		ReconnectDelay: cfg.Realtime.ReconnectDelay,
		Logger:         rt.log,
	})
	defer listener.Stop()

	poller := appsync.New(ns, appsync.Options{
		InitialDelay:     cfg.Sync.InitialLoadDelay,
		UnreadInterval:   cfg.Sync.UnreadInterval,
		FallbackInterval: cfg.Sync.FallbackInterval,
		Logger:           rt.log,
	})
	defer poller.Stop()

	addr := watchMetricsAddr
	if addr == "" {
		addr = cfg.Metrics.Addr
	}
	if addr != "" {
		go func() {
			if err := metrics.Serve(ctx, addr, rt.log); err != nil {
				rt.log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
			}
		}()
	}

	if _, ok := rt.sessions.Current(); ok {
		go checkHealth(ctx, rt)
	}

	if watchHeadless {
		sess, err := rt.requireSession()
		if err != nil {
			return err
		}
		return runHeadless(ctx, cmd.OutOrStdout(), rt, sess, ns, listener, poller)
	}

	m := app.New(app.Services{
		Store:        ns,
		Poller:       poller,
		Feed:         listener,
		Auth:         rt.client,
		Sessions:     rt.sessions,
		AllowedRoles: cfg.Sync.AllowedRoles,
		Config:       *cfg,
		Check:        healthChecker(rt),
		SaveConfig: func(c *model.AppConfig) error {
			return model.SaveConfig(configPath, c)
		},
		Clock:  clockwork.NewRealClock(),
		Logger: rt.log,
	})
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("running TUI: %w", err)
	}
	return nil
}

// checkHealth logs the notification service health once. Failures are
// not fatal; the pollers keep retrying on their own schedule.
func checkHealth(ctx context.Context, rt *runtime) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	h, err := rt.client.Health(ctx)
	if err != nil {
		rt.log.Warn().Err(err).Msg("notification service health check failed")
		return
	}
	rt.log.Info().Str("status", h.Status).Str("server_time", h.Timestamp).Msg("notification service reachable")
}

// healthChecker probes a candidate base URL with the current session
// token, so a URL can be tested before it is saved.
func healthChecker(rt *runtime) func(ctx context.Context, baseURL string) (string, error) {
	return func(ctx context.Context, baseURL string) (string, error) {
		api := rt.cfg.API
		api.BaseURL = baseURL
		api.MaxRetries = 0
		c := portal.NewClient(api, portal.StaticToken(rt.sessions.Token()), rt.log)
		h, err := c.Health(ctx)
		if err != nil {
			return "", err
		}
		return h.Status, nil
	}
}

// runHeadless streams new records to w until ctx is done.
func runHeadless(
	ctx context.Context,
	w io.Writer,
	rt *runtime,
	sess model.Session,
	ns *notify.Store,
	listener *realtime.Listener,
	poller *appsync.Poller,
) error {
	bell := notify.BellForRole(session.PrimaryRole(sess))
	rt.log.Info().
		Str("user", sess.User.Username).
		Str("bell", bell.Name).
		Msg("watching notifications")

	if session.Allowed(session.Roles(sess), rt.cfg.Sync.AllowedRoles) {
		listener.Start(sess.Token, session.Destinations(sess))
	} else {
		rt.log.Warn().Strs("roles", session.Roles(sess)).Msg("role has no notification stream")
	}
	poller.Start()

	printer := newLinePrinter(w, bell, ns.Snapshot())
	for {
		select {
		case <-ctx.Done():
			return nil

		case _, ok := <-ns.Changes():
			if !ok {
				return nil
			}
			printer.print(ns.Snapshot())

		case res := <-poller.Results():
			rt.log.Debug().Stringer("job", res.Kind).Bool("ran", res.Ran).Int("added", res.Added).Msg("sync")
		}
	}
}

// linePrinter prints records of a bell the first time they are seen.
type linePrinter struct {
	w    io.Writer
	bell notify.Bell
	seen map[string]bool
}

// newLinePrinter treats every record of initial as already printed.
func newLinePrinter(w io.Writer, bell notify.Bell, initial []model.Notification) *linePrinter {
	p := &linePrinter{w: w, bell: bell, seen: make(map[string]bool, len(initial))}
	for _, n := range initial {
		p.seen[n.ID] = true
	}
	return p
}

// print writes unseen records oldest first and returns how many it wrote.
func (p *linePrinter) print(list []model.Notification) int {
	var fresh []model.Notification
	for _, n := range p.bell.Filter(list) {
		if p.seen[n.ID] {
			continue
		}
		p.seen[n.ID] = true
		fresh = append(fresh, n)
	}

	// list is newest first.
	for i := len(fresh) - 1; i >= 0; i-- {
		n := fresh[i]
		fmt.Fprintln(p.w, formatLine(notify.DisplayTitle(n), notify.DisplayMessage(n), p.bell.Route(n), n.Timestamp))
	}
	return len(fresh)
}
