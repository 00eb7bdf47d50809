package debugger

import (
	"context"
	"fmt"
	"strings"
	"sync"

	cdpconv "tabmon/internal/adapter/cdp"
	"tabmon/internal/logger"
	"tabmon/pkg/model"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/network"
	"github.com/mafredri/cdp/protocol/runtime"
	"github.com/mafredri/cdp/rpcc"
)

type tabConn struct {
	conn   *rpcc.Conn
	client *cdp.Client
}

// CDP is the Chrome DevTools Protocol transport. One websocket
// connection is dialed per attached tab.
type CDP struct {
	devtoolsURL string
	log         logger.Logger

	mu   sync.Mutex
	tabs map[model.TabID]*tabConn
}

// NewCDP creates a transport against a browser devtools endpoint
// (http://host:port).
func NewCDP(devtoolsURL string, l logger.Logger) *CDP {
	if l == nil {
		l = logger.NewNop()
	}
	return &CDP{
		devtoolsURL: devtoolsURL,
		log:         l,
		tabs:        make(map[model.TabID]*tabConn),
	}
}

// ResolveTab picks the page target to monitor. A target whose URL
// starts with urlHint wins; with an empty hint the first page target is
// used.
func (c *CDP) ResolveTab(ctx context.Context, urlHint string) (model.TabID, error) {
	dt := devtool.New(c.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return "", fmt.Errorf("list targets: %w", err)
	}
	var first *devtool.Target
	for i := range targets {
		if targets[i].Type != devtool.Page {
			continue
		}
		if urlHint != "" && strings.HasPrefix(targets[i].URL, urlHint) {
			return model.TabID(targets[i].ID), nil
		}
		if first == nil {
			first = targets[i]
		}
	}
	if first == nil {
		return "", fmt.Errorf("no page target at %s", c.devtoolsURL)
	}
	return model.TabID(first.ID), nil
}

// Attach resolves the tab in the devtools target list and dials its
// debugger websocket.
func (c *CDP) Attach(ctx context.Context, tab model.TabID) error {
	dt := devtool.New(c.devtoolsURL)
	targets, err := dt.List(ctx)
	if err != nil {
		return fmt.Errorf("list targets: %w", err)
	}
	var sel *devtool.Target
	for i := range targets {
		if string(targets[i].ID) == string(tab) {
			sel = targets[i]
			break
		}
	}
	if sel == nil {
		return fmt.Errorf("no target for tab %q", tab)
	}
	conn, err := rpcc.DialContext(ctx, sel.WebSocketDebuggerURL)
	if err != nil {
		return fmt.Errorf("dial target: %w", err)
	}

	c.mu.Lock()
	c.tabs[tab] = &tabConn{conn: conn, client: cdp.NewClient(conn)}
	c.mu.Unlock()
	c.log.Debug("dialed debugger target", "tab", string(sel.ID), "url", sel.URL)
	return nil
}

// Detach closes the tab's websocket and forgets it.
func (c *CDP) Detach(ctx context.Context, tab model.TabID) error {
	c.mu.Lock()
	tc, ok := c.tabs[tab]
	delete(c.tabs, tab)
	c.mu.Unlock()
	if !ok {
		return ErrNotAttached
	}
	return tc.conn.Close()
}

// EnableNetwork turns on network-event observation for the tab.
func (c *CDP) EnableNetwork(ctx context.Context, tab model.TabID) error {
	tc := c.tab(tab)
	if tc == nil {
		return ErrNotAttached
	}
	return tc.client.Network.Enable(ctx, nil)
}

// GetResponseBody fetches the response body for a request identifier.
func (c *CDP) GetResponseBody(ctx context.Context, tab model.TabID, id model.RequestID) (model.ResponseBody, error) {
	tc := c.tab(tab)
	if tc == nil {
		return model.ResponseBody{}, ErrNotAttached
	}
	reply, err := tc.client.Network.GetResponseBody(ctx, &network.GetResponseBodyArgs{
		RequestID: network.RequestID(id),
	})
	if err != nil {
		return model.ResponseBody{}, classify(err)
	}
	return model.ResponseBody{Body: reply.Body, Base64Encoded: reply.Base64Encoded}, nil
}

// StreamNetwork merges the three lifecycle event streams for the tab
// into one channel of neutral events. The channel closes when all
// underlying streams terminate.
func (c *CDP) StreamNetwork(ctx context.Context, tab model.TabID) (<-chan model.NetworkEvent, error) {
	tc := c.tab(tab)
	if tc == nil {
		return nil, ErrNotAttached
	}
	sent, err := tc.client.Network.RequestWillBeSent(ctx)
	if err != nil {
		return nil, err
	}
	recv, err := tc.client.Network.ResponseReceived(ctx)
	if err != nil {
		sent.Close()
		return nil, err
	}
	fin, err := tc.client.Network.LoadingFinished(ctx)
	if err != nil {
		sent.Close()
		recv.Close()
		return nil, err
	}

	out := make(chan model.NetworkEvent, 64)
	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		defer sent.Close()
		for {
			ev, err := sent.Recv()
			if err != nil {
				return
			}
			out <- cdpconv.FromRequestWillBeSent(ev)
		}
	}()
	go func() {
		defer wg.Done()
		defer recv.Close()
		for {
			ev, err := recv.Recv()
			if err != nil {
				return
			}
			out <- cdpconv.FromResponseReceived(ev)
		}
	}()
	go func() {
		defer wg.Done()
		defer fin.Close()
		for {
			ev, err := fin.Recv()
			if err != nil {
				return
			}
			out <- cdpconv.FromLoadingFinished(ev)
		}
	}()
	go func() {
		wg.Wait()
		close(out)
	}()
	return out, nil
}

// Evaluate runs an expression in the tab's page context. The result is
// discarded; this is fire-and-forget messaging.
func (c *CDP) Evaluate(ctx context.Context, tab model.TabID, expression string) error {
	tc := c.tab(tab)
	if tc == nil {
		return ErrNotAttached
	}
	_, err := tc.client.Runtime.Evaluate(ctx, &runtime.EvaluateArgs{Expression: expression})
	return err
}

func (c *CDP) tab(tab model.TabID) *tabConn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tabs[tab]
}

// classify maps known transient CDP failures onto sentinel errors.
func classify(err error) error {
	if strings.Contains(err.Error(), "No resource with given identifier") {
		return fmt.Errorf("%w: %s", ErrResourceNotFound, err)
	}
	return err
}
