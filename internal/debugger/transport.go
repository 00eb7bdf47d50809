package debugger

import (
	"context"
	"errors"

	"tabmon/pkg/model"
)

var (
	// ErrNotAttached is returned for operations against a tab with no
	// open debugging connection.
	ErrNotAttached = errors.New("debugger: not attached")

	// ErrResourceNotFound marks the transient "no resource with given
	// identifier" condition: the renderer already discarded the
	// response. Callers retry it on a short fixed delay instead of
	// exponential backoff.
	ErrResourceNotFound = errors.New("debugger: no resource with given identifier")
)

// Transport is the debugging channel to the host browser. All calls are
// asynchronous with respect to the browser; completion order across tabs
// is not guaranteed.
type Transport interface {
	Attach(ctx context.Context, tab model.TabID) error
	Detach(ctx context.Context, tab model.TabID) error
	EnableNetwork(ctx context.Context, tab model.TabID) error
	GetResponseBody(ctx context.Context, tab model.TabID, id model.RequestID) (model.ResponseBody, error)
}

// Streamer is the optional subscription capability of a Transport:
// a merged stream of lifecycle events for one tab. The channel closes
// when the subscription ends.
type Streamer interface {
	StreamNetwork(ctx context.Context, tab model.TabID) (<-chan model.NetworkEvent, error)
}

// Poller is the fallback capability for environments without event
// subscription: a snapshot of lifecycle events accumulated since the
// previous poll.
type Poller interface {
	PollNetwork(ctx context.Context, tab model.TabID) ([]model.NetworkEvent, error)
}

// Evaluator runs a JavaScript expression in the page context of an
// attached tab. Used for cross-context messaging and click dispatch.
type Evaluator interface {
	Evaluate(ctx context.Context, tab model.TabID, expression string) error
}
