package page

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"tabmon/pkg/model"
)

type recordingEvaluator struct {
	exprs []string
	err   error
}

func (r *recordingEvaluator) Evaluate(_ context.Context, _ model.TabID, expression string) error {
	r.exprs = append(r.exprs, expression)
	return r.err
}

func TestClickElementBuildsSelectorExpression(t *testing.T) {
	ev := &recordingEvaluator{}
	m := NewMessenger(ev, nil)

	err := m.ClickElement(context.Background(), "tab-1", ClickCommand{Selector: "#query"})
	require.NoError(t, err)
	require.Len(t, ev.exprs, 1)
	assert.Contains(t, ev.exprs[0], `querySelector("#query")`)
	assert.Contains(t, ev.exprs[0], ".click()")
	assert.NotContains(t, ev.exprs[0], "evaluate(")
}

func TestClickElementBuildsXPathExpression(t *testing.T) {
	ev := &recordingEvaluator{}
	m := NewMessenger(ev, nil)

	err := m.ClickElement(context.Background(), "tab-1", ClickCommand{
		Selector: `//button[text()="query"]`,
		IsXPath:  true,
	})
	require.NoError(t, err)
	require.Len(t, ev.exprs, 1)
	assert.Contains(t, ev.exprs[0], "d.evaluate(")
	assert.Contains(t, ev.exprs[0], "FIRST_ORDERED_NODE_TYPE")
}

func TestClickElementTraversesIframe(t *testing.T) {
	ev := &recordingEvaluator{}
	m := NewMessenger(ev, nil)

	err := m.ClickElement(context.Background(), "tab-1", ClickCommand{
		Selector:       "#next",
		IframeSelector: "#content-frame",
	})
	require.NoError(t, err)
	require.Len(t, ev.exprs, 1)
	assert.Contains(t, ev.exprs[0], `querySelector("#content-frame")`)
	assert.Contains(t, ev.exprs[0], "contentDocument")
}

func TestClickElementRejectsEmptySelector(t *testing.T) {
	m := NewMessenger(&recordingEvaluator{}, nil)
	err := m.ClickElement(context.Background(), "tab-1", ClickCommand{})
	assert.Error(t, err)
}

func TestExtractResponseBodyPostsMessage(t *testing.T) {
	ev := &recordingEvaluator{}
	m := NewMessenger(ev, nil)

	m.ExtractResponseBody(context.Background(), "tab-1",
		"https://app.example.com/api/query", "req-9", "2026-08-30T10:00:00Z")

	require.Len(t, ev.exprs, 1)
	expr := ev.exprs[0]
	assert.Contains(t, expr, "window.postMessage(")

	// The embedded payload is well-formed JSON.
	start := len("window.postMessage(")
	end := len(expr) - len(", '*')")
	payload := expr[start:end]
	assert.Equal(t, "extractResponseBody", gjson.Get(payload, "command").String())
	assert.Equal(t, "req-9", gjson.Get(payload, "requestId").String())
	assert.Equal(t, "https://app.example.com/api/query", gjson.Get(payload, "url").String())
}

func TestExtractResponseBodySwallowsEvaluateError(t *testing.T) {
	ev := &recordingEvaluator{err: errors.New("target gone")}
	m := NewMessenger(ev, nil)
	m.ExtractResponseBody(context.Background(), "tab-1", "https://x.example.com/", "req-1", "")
	require.Len(t, ev.exprs, 1)
}
