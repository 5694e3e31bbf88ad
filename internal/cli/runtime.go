package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/nhle/portal-notify/internal/credential"
	"github.com/nhle/portal-notify/internal/logging"
	"github.com/nhle/portal-notify/internal/model"
	"github.com/nhle/portal-notify/internal/notify"
	"github.com/nhle/portal-notify/internal/portal"
	"github.com/nhle/portal-notify/internal/session"
	"github.com/nhle/portal-notify/internal/store"
	"github.com/nhle/portal-notify/internal/theme"
)

var errNotLoggedIn = errors.New("not logged in, run 'portal-notify login' first")

// runtime is what every command shares: config, logger, session and the
// REST client.
type runtime struct {
	cfg      *model.AppConfig
	log      zerolog.Logger
	sessions *session.Manager
	client   *portal.Client

	closers []io.Closer
}

// bootstrap loads config, sets up logging and restores the stored session.
// logToStderr is used by commands that do not own the terminal.
func bootstrap(logToStderr bool) (*runtime, error) {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	theme.Apply(cfg.Display.Theme)

	log, logCloser, err := logging.Setup(cfg.Log, logToStderr)
	if err != nil {
		return nil, err
	}
	rt := &runtime{cfg: cfg, log: log, closers: []io.Closer{logCloser}}

	creds, err := credential.Open(model.ConfigDir())
	if err != nil {
		rt.Close()
		return nil, err
	}
	rt.sessions = session.NewManager(creds)
	if _, err := rt.sessions.Restore(); err != nil {
		log.Warn().Err(err).Msg("ignoring unreadable stored session")
	}

	rt.client = portal.NewClient(cfg.API, rt.sessions, log)
	return rt, nil
}

// requireSession fails when nobody is logged in.
func (rt *runtime) requireSession() (model.Session, error) {
	sess, ok := rt.sessions.Current()
	if !ok {
		return model.Session{}, errNotLoggedIn
	}
	return sess, nil
}

// openStore opens the local mirror and a notification store on top of it,
// restored from the mirror.
func (rt *runtime) openStore(ctx context.Context) (*notify.Store, error) {
	mirror, err := store.NewSQLiteStore(rt.cfg.Store.Path)
	if err != nil {
		return nil, fmt.Errorf("opening local mirror: %w", err)
	}
	rt.closers = append(rt.closers, mirror)

	ns := notify.New(notify.Options{
		Backend:             rt.client,
		Session:             rt.sessions,
		Mirror:              mirror,
		Logger:              rt.log,
		AllowedRoles:        rt.cfg.Sync.AllowedRoles,
		RealtimeFreshWindow: rt.cfg.Sync.RealtimeFreshWindow,
		CallTimeout:         rt.cfg.API.Timeout,
	})
	rt.closers = append(rt.closers, closerFunc(ns.Close))

	if err := ns.Restore(ctx); err != nil {
		rt.log.Warn().Err(err).Msg("local mirror not restored")
	}
	return ns, nil
}

// Close releases everything bootstrap and openStore opened, newest first.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			rt.log.Warn().Err(err).Msg("closing")
		}
	}
	rt.closers = nil
}

type closerFunc func()

func (f closerFunc) Close() error {
	f()
	return nil
}
