package schedule

import (
	"context"

	"tabmon/internal/logger"
	"tabmon/internal/page"
	"tabmon/pkg/model"
)

// Clicker sends a click command into an attached tab.
type Clicker interface {
	ClickElement(ctx context.Context, tab model.TabID, cmd page.ClickCommand) error
}

// Executor resolves selectors from the active configuration and
// dispatches clicks into the monitored tab. It implements Dispatcher.
type Executor struct {
	Snapshot func() model.Snapshot
	Tab      func() (model.TabID, bool)
	Clicker  Clicker
	Log      logger.Logger
}

// Perform runs one scheduled action. Actions are skipped without error
// when monitoring is stopped, no selector is configured, or no tab is
// attached.
func (e *Executor) Perform(ctx context.Context, action Action) {
	log := e.Log
	if log == nil {
		log = logger.NewNop()
	}

	snap := e.Snapshot()
	if !snap.Running {
		log.Debug("scheduled action skipped, monitoring stopped", "action", string(action))
		return
	}

	var selector string
	switch action {
	case ActionQuery:
		selector = snap.Config.QueryButtonSelector
	case ActionNextPage:
		selector = snap.Config.NextPageButtonSelector
	}
	if selector == "" {
		log.Debug("scheduled action skipped, no selector", "action", string(action))
		return
	}

	tab, ok := e.Tab()
	if !ok {
		log.Warn("scheduled action skipped, no attached tab", "action", string(action))
		return
	}

	cmd := page.ClickCommand{
		Selector:       selector,
		ButtonType:     string(action),
		IsXPath:        snap.Config.UseXPath,
		IframeSelector: snap.Config.IframeSelector,
	}
	if err := e.Clicker.ClickElement(ctx, tab, cmd); err != nil {
		log.Warn("scheduled click failed", "action", string(action), "selector", selector, "error", err)
		return
	}
	log.Debug("scheduled click dispatched", "action", string(action), "selector", selector)
}
