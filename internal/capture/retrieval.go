package capture

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"tabmon/internal/debugger"
	"tabmon/internal/ledger"
	"tabmon/pkg/model"
)

// retrieveAndFinalize fetches the response body for one record, waits
// out the page-context grace window, and hands the normalized record to
// the pipeline. The ledger entry is cleaned up on every path.
func (e *Engine) retrieveAndFinalize(ctx context.Context, tab model.TabID, id model.RequestID, gen uint64) {
	rec, ok := e.ledger.Get(id)
	if !ok || rec.Generation != gen {
		return
	}

	if err := e.retrieve(ctx, tab, id, gen, e.opts.Retries, e.opts.InitialDelay); err != nil {
		e.log.Err(err, "body retrieval exhausted", "url", rec.URL, "requestID", string(id))
		e.ledger.Unprotect(id, gen)
		e.evict(tab, id, gen, "retrieval exhausted")
		return
	}

	// Let the page-context extractor race the debugger body. Its result
	// is advisory; the debugger body stays authoritative.
	if e.messenger != nil {
		e.messenger.ExtractResponseBody(ctx, tab, rec.URL, id, rec.RequestedAt.UTC().Format(time.RFC3339))
	}
	sleepCtx(ctx, e.opts.GraceWindow)

	e.finalize(ctx, tab, id, gen)
}

// retrieve fetches the body through the debugging channel with a
// bounded retry budget. The record stays protected from the sweeper for
// the whole attempt chain; the protection is released by the caller
// once the entry is removed (the window between "body fetched" and
// "handed to pipeline" must remain protected).
func (e *Engine) retrieve(ctx context.Context, tab model.TabID, id model.RequestID, gen uint64, retries int, delay time.Duration) error {
	e.ledger.Protect(id, gen)

	if !e.sessions.IsAttached(tab) {
		if err := e.sessions.Attach(ctx, tab, ""); err != nil {
			if retries > 0 {
				sleepCtx(ctx, delay)
				return e.retrieve(ctx, tab, id, gen, retries-1, delay*3/2)
			}
			return fmt.Errorf("reattach for body fetch: %w", err)
		}
	}

	cctx, cancel := context.WithTimeout(ctx, e.opts.CommandTimeout)
	body, err := e.transport.GetResponseBody(cctx, tab, id)
	cancel()
	if err == nil {
		text := body.Body
		if body.Base64Encoded {
			if decoded, derr := base64.StdEncoding.DecodeString(body.Body); derr == nil {
				text = string(decoded)
			} else {
				e.log.Warn("base64 decode failed, keeping raw body", "requestID", string(id), "error", derr)
			}
		}
		e.ledger.Update(id, func(r *ledger.Record) {
			if r.Generation != gen {
				return
			}
			r.ResponseBody = text
			r.BodyReady = true
		})
		return nil
	}

	if retries > 0 {
		// Resource-not-found is overwhelmingly transient: retry fast on
		// a fixed delay instead of backing off.
		if errors.Is(err, debugger.ErrResourceNotFound) {
			sleepCtx(ctx, e.opts.NotFoundDelay)
			return e.retrieve(ctx, tab, id, gen, retries-1, delay)
		}
		sleepCtx(ctx, delay)
		return e.retrieve(ctx, tab, id, gen, retries-1, delay*3/2)
	}
	return err
}

// finalize assembles the normalized record and hands it downstream.
// Entry removal is unconditional; a hand-off failure is logged, never
// propagated. A record superseded during the grace window is skipped:
// its data would describe a different request.
func (e *Engine) finalize(ctx context.Context, tab model.TabID, id model.RequestID, gen uint64) {
	rec, ok := e.ledger.Get(id)
	if !ok || rec.Generation != gen {
		e.log.Debug("skipping hand-off for superseded request", "requestID", string(id))
		return
	}
	defer func() {
		e.ledger.RemoveGeneration(id, gen)
		e.sessions.ForgetRequest(tab, id)
	}()

	if err := e.pipeline.Process(ctx, normalize(rec)); err != nil {
		e.log.Err(err, "pipeline hand-off failed", "url", rec.URL)
	}
}

// normalize flattens a ledger record into the downstream shape. Every
// field is populated; absent values default to empty string or map.
func normalize(rec ledger.Record) model.NetworkResponse {
	reqHeaders := rec.RequestHeaders
	if reqHeaders == nil {
		reqHeaders = map[string]string{}
	}
	respHeaders := rec.ResponseHeaders
	if respHeaders == nil {
		respHeaders = map[string]string{}
	}
	return model.NetworkResponse{
		URL:             rec.URL,
		Method:          rec.Method,
		Status:          rec.Status,
		Timestamp:       rec.RequestedAt.UTC().Format(time.RFC3339),
		ResponseBody:    rec.ResponseBody,
		ContentType:     rec.ContentType,
		ResponseHeaders: respHeaders,
		RequestHeaders:  reqHeaders,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
