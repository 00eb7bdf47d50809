package page

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"tabmon/internal/debugger"
	"tabmon/internal/logger"
	"tabmon/pkg/model"
)

// ClickCommand asks the page to click one element. Selector resolution
// happens inside the page context; iframe traversal and XPath lookup
// are supported.
type ClickCommand struct {
	Selector       string
	ButtonType     string
	IsXPath        bool
	IframeSelector string
}

// Messenger performs cross-context calls into an attached tab through
// the debugging channel's script evaluation. It stands in for a content
// script: the page sees plain DOM calls and window messages.
type Messenger struct {
	eval debugger.Evaluator
	log  logger.Logger
}

// NewMessenger creates a messenger over an evaluator.
func NewMessenger(eval debugger.Evaluator, l logger.Logger) *Messenger {
	if l == nil {
		l = logger.NewNop()
	}
	return &Messenger{eval: eval, log: l}
}

// ClickElement dispatches a click in the page. The error reports only
// evaluation failure; element lookup failures stay inside the page.
func (m *Messenger) ClickElement(ctx context.Context, tab model.TabID, cmd ClickCommand) error {
	if cmd.Selector == "" {
		return fmt.Errorf("page: empty selector")
	}
	return m.eval.Evaluate(ctx, tab, clickScript(cmd))
}

// ExtractResponseBody posts the advisory extraction request into the
// page. Fire-and-forget: failures are logged, never propagated.
func (m *Messenger) ExtractResponseBody(ctx context.Context, tab model.TabID, url string, id model.RequestID, timestamp string) {
	payload, err := json.Marshal(map[string]any{
		"command":   "extractResponseBody",
		"url":       url,
		"requestId": string(id),
		"timestamp": timestamp,
	})
	if err != nil {
		m.log.Warn("marshal extract message", "error", err)
		return
	}
	expr := fmt.Sprintf("window.postMessage(%s, '*')", payload)
	if err := m.eval.Evaluate(ctx, tab, expr); err != nil {
		m.log.Warn("extract message not delivered", "tab", string(tab), "error", err)
	}
}

func clickScript(cmd ClickCommand) string {
	doc := "document"
	if cmd.IframeSelector != "" {
		doc = fmt.Sprintf("((document.querySelector(%s)||{}).contentDocument||document)", strconv.Quote(cmd.IframeSelector))
	}
	sel := strconv.Quote(cmd.Selector)
	if cmd.IsXPath {
		return fmt.Sprintf(
			`(function(){var d=%s;var n=d.evaluate(%s,d,null,XPathResult.FIRST_ORDERED_NODE_TYPE,null).singleNodeValue;if(n){n.click();return "ok"}return "not found"})()`,
			doc, sel)
	}
	return fmt.Sprintf(
		`(function(){var d=%s;var n=d.querySelector(%s);if(n){n.click();return "ok"}return "not found"})()`,
		doc, sel)
}
