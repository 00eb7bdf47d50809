package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tabmon/pkg/model"
)

// pollTransport supports polling only, no streaming.
type pollTransport struct {
	fakeTransport

	mu      sync.Mutex
	pending []model.NetworkEvent
}

func (p *pollTransport) PollNetwork(context.Context, model.TabID) ([]model.NetworkEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	evs := p.pending
	p.pending = nil
	return evs, nil
}

// streamTransport supports direct subscription.
type streamTransport struct {
	fakeTransport
	ch chan model.NetworkEvent
}

func (s *streamTransport) StreamNetwork(context.Context, model.TabID) (<-chan model.NetworkEvent, error) {
	return s.ch, nil
}

func TestNewSourcePrefersStreaming(t *testing.T) {
	src, err := NewSource(&streamTransport{ch: make(chan model.NetworkEvent)}, time.Second, nil)
	require.NoError(t, err)
	assert.IsType(t, &streamSource{}, src)
}

func TestNewSourceFallsBackToPolling(t *testing.T) {
	src, err := NewSource(&pollTransport{}, time.Second, nil)
	require.NoError(t, err)
	assert.IsType(t, &pollSource{}, src)
}

func TestNewSourceRejectsIncapableTransport(t *testing.T) {
	_, err := NewSource(newFakeTransport(), time.Second, nil)
	assert.Error(t, err)
}

func TestPollSourceDeliversEvents(t *testing.T) {
	pt := &pollTransport{}
	pt.mu.Lock()
	pt.pending = []model.NetworkEvent{xhrRequest("req-1", "https://app.example.com/api/query")}
	pt.mu.Unlock()

	src, err := NewSource(pt, 5*time.Millisecond, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := src.Subscribe(ctx, "tab-1")
	require.NoError(t, err)

	select {
	case ev := <-events:
		assert.Equal(t, model.KindRequestSent, ev.Kind)
		assert.Equal(t, model.RequestID("req-1"), ev.RequestSent.RequestID)
	case <-time.After(5 * time.Second):
		t.Fatal("poll source delivered nothing")
	}

	// Channel closes once the subscription context ends.
	cancel()
	for range events {
	}
}

func TestEngineRunConsumesStreamUntilClose(t *testing.T) {
	st := &streamTransport{ch: make(chan model.NetworkEvent, 4)}
	te := newTestEngine(runningSnapshot("*/api/*"), fastOptions())
	src, err := NewSource(st, time.Second, nil)
	require.NoError(t, err)
	te.engine.source = src
	te.transport.reply(bodyReply{body: model.ResponseBody{Body: `{"ok":1}`}})

	st.ch <- xhrRequest("req-1", "https://app.example.com/api/query")
	st.ch <- jsonResponse("req-1", 200)
	close(st.ch)

	require.NoError(t, te.engine.Run(context.Background(), "tab-1"))
	require.Len(t, te.pipeline.records(), 1)

	// A stream that ends without cancellation means the tab closed:
	// the session is torn down.
	assert.Equal(t, []model.TabID{"tab-1"}, te.sessions.closedTabs())
}

func TestEngineRunCancellationIsNotTabClosure(t *testing.T) {
	st := &streamTransport{ch: make(chan model.NetworkEvent)}
	te := newTestEngine(runningSnapshot("*/api/*"), fastOptions())
	src, err := NewSource(st, time.Second, nil)
	require.NoError(t, err)
	te.engine.source = src

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		te.engine.Run(ctx, "tab-1")
	}()

	// Shutdown: the stream closes because we canceled, not because the
	// tab went away.
	cancel()
	close(st.ch)
	<-done
	assert.Empty(t, te.sessions.closedTabs())
}
