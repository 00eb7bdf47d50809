package app

import (
	"context"
	"fmt"
	"time"

	"tabmon/internal/capture"
	"tabmon/internal/config"
	"tabmon/internal/debugger"
	"tabmon/internal/ledger"
	"tabmon/internal/logger"
	"tabmon/internal/page"
	"tabmon/internal/pipeline"
	"tabmon/internal/schedule"
	"tabmon/internal/state"
	"tabmon/internal/storage"
	"tabmon/pkg/model"
)

// App wires all components and owns their lifecycle.
type App struct {
	cfg *config.Config
	log logger.Logger

	store     *storage.Store
	state     *state.Manager
	transport *debugger.CDP
	sessions  *debugger.Manager
	engine    *capture.Engine
	scheduler *schedule.Scheduler
	messenger *page.Messenger
}

// New assembles an application from the loaded configuration.
func New(cfg *config.Config, l logger.Logger) (*App, error) {
	store, err := storage.Open(cfg.Sqlite.Dsn, cfg.Sqlite.Prefix, l)
	if err != nil {
		return nil, fmt.Errorf("open state store: %w", err)
	}

	st := state.NewManager(store, l)
	if err := st.Load(); err != nil {
		return nil, fmt.Errorf("restore state: %w", err)
	}

	transport := debugger.NewCDP(cfg.DevTools.URL, l)
	sessions := debugger.NewManager(transport, l)
	messenger := page.NewMessenger(transport, l)

	source, err := capture.NewSource(transport, time.Duration(cfg.Capture.PollInterval), l)
	if err != nil {
		return nil, fmt.Errorf("build event source: %w", err)
	}

	processor := pipeline.NewProcessor(time.Duration(cfg.Pipeline.ScriptTimeout), l)
	submitter := pipeline.NewSubmitter(l)
	pl := pipeline.New(st.Snapshot, st.RunID, processor, submitter, l)

	engine := capture.New(capture.Config{
		Ledger:    ledger.NewTable(),
		Sessions:  sessions,
		Transport: transport,
		Source:    source,
		Messenger: messenger,
		Pipeline:  pl,
		Snapshot:  st.Snapshot,
		Options: capture.Options{
			Retries:        cfg.Capture.Retries,
			InitialDelay:   time.Duration(cfg.Capture.InitialDelay),
			NotFoundDelay:  time.Duration(cfg.Capture.NotFoundDelay),
			GraceWindow:    time.Duration(cfg.Capture.GraceWindow),
			SweepInterval:  time.Duration(cfg.Capture.SweepInterval),
			MaxEntryAge:    time.Duration(cfg.Capture.MaxEntryAge),
			CommandTimeout: time.Duration(cfg.Capture.CommandTimeout),
		},
		Logger: l,
	})

	a := &App{
		cfg:       cfg,
		log:       l,
		store:     store,
		state:     st,
		transport: transport,
		sessions:  sessions,
		engine:    engine,
		messenger: messenger,
	}
	a.scheduler = schedule.New(&schedule.Executor{
		Snapshot: st.Snapshot,
		Tab:      a.monitoredTab,
		Clicker:  messenger,
		Log:      l,
	}, l)
	return a, nil
}

// Run attaches to the monitored tab and blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	defer a.store.Close()

	if a.cfg.Monitor.ListenURL != "" {
		a.state.Start(a.cfg.Monitor)
	}
	snap := a.state.Snapshot()

	tab, err := a.transport.ResolveTab(ctx, snap.Config.TargetURL)
	if err != nil {
		return fmt.Errorf("resolve tab: %w", err)
	}
	if err := a.sessions.Attach(ctx, tab, snap.Config.TargetURL); err != nil {
		return fmt.Errorf("attach tab: %w", err)
	}
	a.log.Info("monitoring tab", "tab", string(tab))

	go a.engine.RunSweeper(ctx)
	a.scheduler.Start(ctx,
		time.Duration(snap.Config.QueryClickIntervalMin)*time.Minute,
		time.Duration(snap.Config.NextPageClickIntervalSec)*time.Second)
	defer a.scheduler.Stop()

	err = a.engine.Run(ctx, tab)

	a.state.Stop()
	if ctx.Err() != nil {
		// Shutdown request: the tab is still there, close our side.
		detachCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if derr := a.sessions.Detach(detachCtx, tab); derr != nil {
			a.log.Warn("detach on shutdown", "tab", string(tab), "error", derr)
		}
		return nil
	}
	// Otherwise the stream ended because the tab closed; the engine
	// already tore the session down.
	return err
}

// monitoredTab reports the tab the scheduler should click into.
func (a *App) monitoredTab() (model.TabID, bool) {
	tabs := a.sessions.AttachedTabs()
	if len(tabs) == 0 {
		return "", false
	}
	return tabs[0], true
}
