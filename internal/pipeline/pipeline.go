package pipeline

import (
	"context"
	"fmt"

	"tabmon/internal/logger"
	"tabmon/pkg/model"
)

// Pipeline validates, transforms, and submits finalized captures. It is
// the hand-off target of the capture core.
type Pipeline struct {
	snapshot  func() model.Snapshot
	runID     func() string
	processor *Processor
	submitter *Submitter
	log       logger.Logger
}

// New assembles a pipeline. snapshot and runID supply the active
// configuration and run identifier at processing time.
func New(snapshot func() model.Snapshot, runID func() string, processor *Processor, submitter *Submitter, l logger.Logger) *Pipeline {
	if l == nil {
		l = logger.NewNop()
	}
	return &Pipeline{
		snapshot:  snapshot,
		runID:     runID,
		processor: processor,
		submitter: submitter,
		log:       l,
	}
}

// Process handles one finalized capture.
func (p *Pipeline) Process(ctx context.Context, rec model.NetworkResponse) error {
	if err := Validate(rec); err != nil {
		return fmt.Errorf("invalid capture: %w", err)
	}

	snap := p.snapshot()
	out := p.processor.Transform(ctx, snap.Config, rec)

	if snap.Config.SubmitURL == "" {
		p.log.Debug("no submit url configured, capture dropped after processing", "url", rec.URL)
		return nil
	}
	return p.submitter.Submit(ctx, snap.Config.SubmitURL, p.runID(), out)
}

// Validate checks the structural invariants of a finalized capture.
func Validate(rec model.NetworkResponse) error {
	if rec.URL == "" {
		return fmt.Errorf("missing url")
	}
	if rec.Method == "" {
		return fmt.Errorf("missing method")
	}
	if rec.Status != 0 && (rec.Status < 100 || rec.Status > 599) {
		return fmt.Errorf("status %d out of range", rec.Status)
	}
	return nil
}
