package pipeline

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"tabmon/pkg/model"
)

func TestValidate(t *testing.T) {
	rec := jsonRecord(`{}`)
	assert.NoError(t, Validate(rec))

	noURL := rec
	noURL.URL = ""
	assert.Error(t, Validate(noURL))

	noMethod := rec
	noMethod.Method = ""
	assert.Error(t, Validate(noMethod))

	badStatus := rec
	badStatus.Status = 42
	assert.Error(t, Validate(badStatus))

	// Zero status means the response never arrived; still structurally valid.
	noStatus := rec
	noStatus.Status = 0
	assert.NoError(t, Validate(noStatus))
}

func newPipeline(cfg model.Config) *Pipeline {
	snapshot := func() model.Snapshot {
		return model.Snapshot{Running: true, Config: cfg}
	}
	runID := func() string { return "run-abc" }
	return New(snapshot, runID, NewProcessor(time.Second, nil), NewSubmitter(nil), nil)
}

func TestProcessRejectsInvalidRecord(t *testing.T) {
	p := newPipeline(model.Config{})
	err := p.Process(context.Background(), model.NetworkResponse{})
	assert.Error(t, err)
}

func TestProcessWithoutSubmitURLDropsQuietly(t *testing.T) {
	p := newPipeline(model.Config{})
	err := p.Process(context.Background(), jsonRecord(`{"a":1}`))
	assert.NoError(t, err)
}

func TestProcessExtractsAndSubmits(t *testing.T) {
	var (
		mu   sync.Mutex
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(raw)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	p := newPipeline(model.Config{
		SubmitURL:            srv.URL,
		DataProcessingMethod: MethodExtractField,
	})
	err := p.Process(context.Background(), jsonRecord(`{"data":{"result":[{"id":5}]}}`))
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "run-abc", gjson.Get(body, "runId").String())
	assert.Equal(t, int64(5), gjson.Get(body, "data.0.id").Int())
}
