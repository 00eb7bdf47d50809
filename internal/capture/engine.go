package capture

import (
	"context"
	"strings"
	"sync"
	"time"

	"tabmon/internal/debugger"
	"tabmon/internal/ledger"
	"tabmon/internal/logger"
	"tabmon/pkg/model"
	"tabmon/pkg/traffic"
)

// Sessions is the slice of the session manager the engine needs.
type Sessions interface {
	IsAttached(tab model.TabID) bool
	Attach(ctx context.Context, tab model.TabID, url string) error
	OnTabClosed(ctx context.Context, tab model.TabID)
	TrackRequest(tab model.TabID, id model.RequestID)
	ForgetRequest(tab model.TabID, id model.RequestID)
}

// Pipeline consumes normalized records. Failures are logged by the
// engine; cleanup happens regardless.
type Pipeline interface {
	Process(ctx context.Context, rec model.NetworkResponse) error
}

// Messenger delivers the advisory page-context extraction request.
// Fire-and-forget: implementations log failures and never propagate.
type Messenger interface {
	ExtractResponseBody(ctx context.Context, tab model.TabID, url string, id model.RequestID, timestamp string)
}

// Options are the engine's tuning constants. Zero values take defaults.
type Options struct {
	Retries        int
	InitialDelay   time.Duration
	NotFoundDelay  time.Duration
	GraceWindow    time.Duration
	SweepInterval  time.Duration
	MaxEntryAge    time.Duration
	CommandTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.Retries <= 0 {
		o.Retries = 3
	}
	if o.InitialDelay <= 0 {
		o.InitialDelay = 250 * time.Millisecond
	}
	if o.NotFoundDelay <= 0 {
		o.NotFoundDelay = 150 * time.Millisecond
	}
	if o.GraceWindow <= 0 {
		o.GraceWindow = 3 * time.Second
	}
	if o.SweepInterval <= 0 {
		o.SweepInterval = time.Minute
	}
	if o.MaxEntryAge <= 0 {
		o.MaxEntryAge = 5 * time.Minute
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 3 * time.Second
	}
	return o
}

// Config wires an Engine.
type Config struct {
	Ledger    *ledger.Table
	Sessions  Sessions
	Transport debugger.Transport
	Source    Source
	Messenger Messenger
	Pipeline  Pipeline
	Snapshot  func() model.Snapshot
	Options   Options
	Logger    logger.Logger
}

// Engine correlates the lifecycle events of observed requests, drives
// body retrieval, and hands normalized records downstream. All state
// lives on the engine; there are no package-level globals.
type Engine struct {
	ledger    *ledger.Table
	sessions  Sessions
	transport debugger.Transport
	source    Source
	messenger Messenger
	pipeline  Pipeline
	snapshot  func() model.Snapshot
	opts      Options
	patterns  *patternCache
	log       logger.Logger

	wg sync.WaitGroup
}

// New creates an engine from cfg.
func New(cfg Config) *Engine {
	l := cfg.Logger
	if l == nil {
		l = logger.NewNop()
	}
	return &Engine{
		ledger:    cfg.Ledger,
		sessions:  cfg.Sessions,
		transport: cfg.Transport,
		source:    cfg.Source,
		messenger: cfg.Messenger,
		pipeline:  cfg.Pipeline,
		snapshot:  cfg.Snapshot,
		opts:      cfg.Options.withDefaults(),
		patterns:  newPatternCache(),
		log:       l,
	}
}

// Run consumes the tab's event stream until the stream closes or ctx is
// canceled, then waits for in-flight retrievals to settle.
func (e *Engine) Run(ctx context.Context, tab model.TabID) error {
	events, err := e.source.Subscribe(ctx, tab)
	if err != nil {
		return err
	}
	e.log.Info("consuming network events", "tab", string(tab))
	for ev := range events {
		e.Dispatch(ctx, tab, ev)
	}
	e.wg.Wait()
	if ctx.Err() == nil {
		// The stream ended on its own: the tab is gone. Tear the
		// session down; a later capture re-attaches if needed.
		e.sessions.OnTabClosed(ctx, tab)
	}
	return nil
}

// Dispatch routes one lifecycle event. Events for unknown identifiers
// are dropped silently; nothing on this path panics.
func (e *Engine) Dispatch(ctx context.Context, tab model.TabID, ev model.NetworkEvent) {
	switch ev.Kind {
	case model.KindRequestSent:
		e.handleRequestSent(tab, ev.RequestSent)
	case model.KindResponseReceived:
		e.handleResponseReceived(ctx, tab, ev.ResponseReceived)
	case model.KindLoadingFinished:
		e.handleLoadingFinished(ev.LoadingFinished)
	}
}

// handleRequestSent applies the activation policy and opens a ledger
// record for qualifying requests. Identifier reuse by the protocol is
// expected: the insert overwrites any prior record.
func (e *Engine) handleRequestSent(tab model.TabID, ev *model.RequestSent) {
	snap := e.snapshot()
	if !snap.Running || snap.Config.ListenURL == "" {
		return
	}
	if !isXHR(ev) {
		return
	}
	match, err := e.patterns.Match(snap.Config.ListenURL, ev.URL)
	if err != nil {
		e.log.Warn("listen pattern invalid", "pattern", snap.Config.ListenURL, "error", err)
		return
	}
	if !match {
		return
	}

	headers := ev.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	requestedAt := ev.Timestamp
	if requestedAt.IsZero() {
		requestedAt = time.Now()
	}
	e.ledger.Insert(ledger.Record{
		RequestID:      ev.RequestID,
		TabID:          tab,
		URL:            ev.URL,
		Method:         ev.Method,
		RequestedAt:    requestedAt,
		RequestHeaders: headers,
		RequestBody:    ev.PostData,
		ContentType:    traffic.FromMap(headers).Get("Content-Type"),
		State:          ledger.StatePending,
	})
	e.sessions.TrackRequest(tab, ev.RequestID)
	e.log.Debug("tracking xhr request", "url", ev.URL, "requestID", string(ev.RequestID))
}

// handleResponseReceived folds status, headers and content type into
// the record, re-checks the filter policy against a fresh configuration
// snapshot, and starts body retrieval for text-like responses.
func (e *Engine) handleResponseReceived(ctx context.Context, tab model.TabID, ev *model.ResponseReceived) {
	rec, ok := e.ledger.Get(ev.RequestID)
	if !ok {
		return
	}
	gen := rec.Generation

	contentType := traffic.FromMap(ev.Headers).Get("Content-Type")
	if contentType == "" {
		contentType = ev.MimeType
	}
	e.ledger.Update(ev.RequestID, func(r *ledger.Record) {
		if r.Generation != gen {
			return
		}
		r.Status = ev.Status
		r.ResponseHeaders = ev.Headers
		r.ContentType = contentType
	})

	snap := e.snapshot()
	if !snap.Running || snap.Config.ListenURL == "" {
		e.evict(tab, ev.RequestID, gen, "monitoring stopped")
		return
	}
	match, err := e.patterns.Match(snap.Config.ListenURL, rec.URL)
	if err != nil {
		e.log.Warn("listen pattern invalid", "pattern", snap.Config.ListenURL, "error", err)
		e.evict(tab, ev.RequestID, gen, "pattern error")
		return
	}
	if !match {
		e.evict(tab, ev.RequestID, gen, "url no longer matches")
		return
	}
	if !traffic.IsTextual(contentType) {
		e.evict(tab, ev.RequestID, gen, "non-text content type")
		return
	}

	e.ledger.Update(ev.RequestID, func(r *ledger.Record) {
		if r.Generation == gen {
			r.State = ledger.StateAwaitingBody
		}
	})
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.retrieveAndFinalize(ctx, tab, ev.RequestID, gen)
	}()
}

// handleLoadingFinished is observed for completeness; retrieval is
// driven off response-headers-received.
func (e *Engine) handleLoadingFinished(ev *model.LoadingFinished) {
	e.log.Debug("loading finished", "requestID", string(ev.RequestID))
}

func (e *Engine) evict(tab model.TabID, id model.RequestID, gen uint64, reason string) {
	if e.ledger.RemoveGeneration(id, gen) {
		e.sessions.ForgetRequest(tab, id)
		e.log.Debug("ledger entry evicted", "requestID", string(id), "reason", reason)
	}
}

// isXHR classifies the monitored transport type: an explicit type tag,
// the X-Requested-With header, or initiator metadata.
func isXHR(ev *model.RequestSent) bool {
	if strings.EqualFold(ev.Type, "XHR") {
		return true
	}
	if traffic.FromMap(ev.Headers).Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	return ev.InitiatorType == "xhr"
}
