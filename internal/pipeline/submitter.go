package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"tabmon/internal/logger"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/sjson"
)

// Submitter posts processed captures to the configured endpoint with
// retries on transient failures.
type Submitter struct {
	client *retryablehttp.Client
	log    logger.Logger
}

// NewSubmitter creates a submitter with the default retry policy.
func NewSubmitter(l logger.Logger) *Submitter {
	if l == nil {
		l = logger.NewNop()
	}
	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.RetryWaitMin = 1 * time.Second
	client.RetryWaitMax = 10 * time.Second
	client.Logger = nil
	return &Submitter{client: client, log: l}
}

// Submit posts payload to url inside a run-stamped envelope.
func (s *Submitter) Submit(ctx context.Context, url, runID string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode payload: %w", err)
	}

	env := "{}"
	env, _ = sjson.Set(env, "runId", runID)
	env, _ = sjson.Set(env, "capturedAt", time.Now().UTC().Format(time.RFC3339))
	env, err = sjson.SetRaw(env, "data", string(body))
	if err != nil {
		return fmt.Errorf("build envelope: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, url, []byte(env))
	if err != nil {
		return fmt.Errorf("build submit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("submit to %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("submit to %s: status %d: %s", url, resp.StatusCode, snippet)
	}
	s.log.Debug("capture submitted", "url", url, "status", resp.StatusCode, "bytes", len(env))
	return nil
}
