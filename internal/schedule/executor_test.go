package schedule

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabmon/internal/page"
	"tabmon/pkg/model"
)

type recordingClicker struct {
	mu   sync.Mutex
	cmds []page.ClickCommand
	err  error
}

func (c *recordingClicker) ClickElement(_ context.Context, _ model.TabID, cmd page.ClickCommand) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cmds = append(c.cmds, cmd)
	return c.err
}

func (c *recordingClicker) commands() []page.ClickCommand {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]page.ClickCommand(nil), c.cmds...)
}

func runningConfig(cfg model.Config) func() model.Snapshot {
	return func() model.Snapshot { return model.Snapshot{Running: true, Config: cfg} }
}

func tabProvider(ok bool) func() (model.TabID, bool) {
	return func() (model.TabID, bool) { return "tab-1", ok }
}

func TestPerformDispatchesQueryClick(t *testing.T) {
	c := &recordingClicker{}
	e := &Executor{
		Snapshot: runningConfig(model.Config{
			QueryButtonSelector: "#query",
			IframeSelector:      "#main-frame",
			UseXPath:            false,
		}),
		Tab:     tabProvider(true),
		Clicker: c,
	}
	e.Perform(context.Background(), ActionQuery)

	cmds := c.commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, "#query", cmds[0].Selector)
	assert.Equal(t, "query", cmds[0].ButtonType)
	assert.Equal(t, "#main-frame", cmds[0].IframeSelector)
}

func TestPerformUsesXPathSelector(t *testing.T) {
	c := &recordingClicker{}
	e := &Executor{
		Snapshot: runningConfig(model.Config{
			NextPageButtonSelector: `//button[text()="next"]`,
			UseXPath:               true,
		}),
		Tab:     tabProvider(true),
		Clicker: c,
	}
	e.Perform(context.Background(), ActionNextPage)

	cmds := c.commands()
	require.Len(t, cmds, 1)
	assert.True(t, cmds[0].IsXPath)
	assert.Equal(t, "nextPage", cmds[0].ButtonType)
}

func TestPerformSkipsWhenStopped(t *testing.T) {
	c := &recordingClicker{}
	e := &Executor{
		Snapshot: func() model.Snapshot {
			return model.Snapshot{Config: model.Config{QueryButtonSelector: "#query"}}
		},
		Tab:     tabProvider(true),
		Clicker: c,
	}
	e.Perform(context.Background(), ActionQuery)
	assert.Empty(t, c.commands())
}

func TestPerformSkipsWithoutSelector(t *testing.T) {
	c := &recordingClicker{}
	e := &Executor{
		Snapshot: runningConfig(model.Config{}),
		Tab:      tabProvider(true),
		Clicker:  c,
	}
	e.Perform(context.Background(), ActionQuery)
	e.Perform(context.Background(), ActionNextPage)
	assert.Empty(t, c.commands())
}

func TestPerformSkipsWithoutTab(t *testing.T) {
	c := &recordingClicker{}
	e := &Executor{
		Snapshot: runningConfig(model.Config{QueryButtonSelector: "#query"}),
		Tab:      tabProvider(false),
		Clicker:  c,
	}
	e.Perform(context.Background(), ActionQuery)
	assert.Empty(t, c.commands())
}

func TestPerformSurvivesClickFailure(t *testing.T) {
	c := &recordingClicker{err: errors.New("evaluate failed")}
	e := &Executor{
		Snapshot: runningConfig(model.Config{QueryButtonSelector: "#query"}),
		Tab:      tabProvider(true),
		Clicker:  c,
	}
	e.Perform(context.Background(), ActionQuery)
	require.Len(t, c.commands(), 1)
}
