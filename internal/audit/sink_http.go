package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gravitational/trace"

	"github.com/ohitslaurence/loom/internal/secret"
)

// HTTPSink POSTs a batch of events as a JSON array, retrying up to
// maxRetries times with linear backoff before surfacing a
// SinkUnavailableError. Headers are secret-wrapped so a caller that
// logs the sink's configuration (Debug, config.HTTPSinkConfig) never
// leaks credential header values.
type HTTPSink struct {
	baseSink
	url        string
	headers    map[string]secret.String
	maxRetries int
	client     *http.Client
}

func NewHTTPSink(name, url string, headers map[string]secret.String, maxRetries int, minSeverity Severity, client *http.Client) *HTTPSink {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &HTTPSink{
		baseSink:   baseSink{name: name, minSeverity: minSeverity},
		url:        url,
		headers:    headers,
		maxRetries: maxRetries,
		client:     client,
	}
}

func (s *HTTPSink) Deliver(ctx context.Context, batch []Event) error {
	body, err := json.Marshal(toStreamEventBatch(batch))
	if err != nil {
		return trace.Wrap(&SinkFormatError{Sink: s.name, Detail: err.Error()})
	}

	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * 200 * time.Millisecond):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
		if err != nil {
			return trace.Wrap(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range s.headers {
			req.Header.Set(k, v.Expose())
		}

		resp, err := s.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return trace.Wrap(lastErr, "audit: sink %q unavailable after %d attempts", s.name, s.maxRetries+1)
}

func toStreamEventBatch(batch []Event) []streamEvent {
	out := make([]streamEvent, len(batch))
	for i, e := range batch {
		out[i] = toStreamEvent(e)
	}
	return out
}
