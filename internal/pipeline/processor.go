package pipeline

import (
	"context"
	"time"

	"tabmon/internal/logger"
	"tabmon/pkg/model"

	"github.com/tidwall/gjson"
)

// Processing method names accepted in the configuration.
const (
	MethodNone         = "none"
	MethodExtractField = "extractJsonField"
	MethodCustomScript = "customScript"
)

const defaultExtractField = "result.records"

// Processor transforms captured records according to the configured
// processing method. A transform that cannot be applied falls back to
// the original record instead of failing the capture.
type Processor struct {
	scripts *scriptRunner
	log     logger.Logger
}

// NewProcessor creates a processor. scriptTimeout bounds custom script
// execution.
func NewProcessor(scriptTimeout time.Duration, l logger.Logger) *Processor {
	if l == nil {
		l = logger.NewNop()
	}
	return &Processor{scripts: newScriptRunner(scriptTimeout), log: l}
}

// Transform applies cfg's processing method to rec and returns the
// value to submit.
func (p *Processor) Transform(ctx context.Context, cfg model.Config, rec model.NetworkResponse) any {
	switch cfg.DataProcessingMethod {
	case "", MethodNone:
		return rec
	case MethodExtractField:
		return p.extractField(cfg, rec)
	case MethodCustomScript:
		return p.runScript(ctx, cfg, rec)
	default:
		p.log.Warn("unknown processing method, passing record through",
			"method", cfg.DataProcessingMethod)
		return rec
	}
}

// extractField pulls a JSON field out of the response body. The
// well-known data.result path wins; otherwise the configured field path
// is tried. When neither matches the record passes through untouched.
func (p *Processor) extractField(cfg model.Config, rec model.NetworkResponse) any {
	if !gjson.Valid(rec.ResponseBody) {
		p.log.Debug("response body is not json, passing record through", "url", rec.URL)
		return rec
	}
	if r := gjson.Get(rec.ResponseBody, "data.result"); r.Exists() {
		return r.Value()
	}
	field := cfg.ExtractField
	if field == "" {
		field = defaultExtractField
	}
	if r := gjson.Get(rec.ResponseBody, field); r.Exists() {
		return r.Value()
	}
	p.log.Debug("extract field not present, passing record through",
		"field", field, "url", rec.URL)
	return rec
}

// runScript applies the operator's custom script. Script failures are
// surfaced in the submitted payload next to the original record.
func (p *Processor) runScript(ctx context.Context, cfg model.Config, rec model.NetworkResponse) any {
	if cfg.CustomScript == "" {
		p.log.Warn("custom script method selected but no script configured")
		return rec
	}
	out, err := p.scripts.Run(ctx, cfg.CustomScript, rec)
	if err != nil {
		p.log.Err(err, "custom script failed", "url", rec.URL)
		return map[string]any{
			"originalData": rec,
			"error":        err.Error(),
		}
	}
	return out
}
