package checker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ankityadav/uptimed/internal/config"
	"github.com/ankityadav/uptimed/internal/storage"
)

// maxDrain bounds how much of a response body is read so the connection
// can go back to the pool.
const maxDrain = 64 << 10

// Prober performs one health check. Outcomes are data, never errors.
type Prober interface {
	Probe(ctx context.Context, target storage.Target) storage.CheckResult
}

type HTTPProber struct {
	client *http.Client
}

// NewHTTPProber wraps client, or a fresh one when nil. Deadlines come from
// each target, so the client itself carries no timeout.
func NewHTTPProber(client *http.Client) *HTTPProber {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPProber{client: client}
}

func (p *HTTPProber) Probe(ctx context.Context, target storage.Target) storage.CheckResult {
	timeout := target.TimeoutDuration(config.DefaultTimeout)
	expected := target.ExpectedStatusCode
	if expected == 0 {
		expected = http.StatusOK
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	result := storage.CheckResult{MonitorID: target.ID, CheckedAt: start}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.URL, nil)
	if err != nil {
		return finish(result, start, storage.OutcomeOffline, err.Error())
	}
	req.Header.Set("User-Agent", config.UserAgent)

	resp, err := p.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return finish(result, start, storage.OutcomeTimeout,
				fmt.Sprintf("request timed out after %d seconds", int(timeout/time.Second)))
		}
		return finish(result, start, storage.OutcomeOffline, err.Error())
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrain))
	resp.Body.Close()

	code := resp.StatusCode
	result.StatusCode = &code
	if code == expected {
		return finish(result, start, storage.OutcomeOnline, "")
	}
	return finish(result, start, storage.OutcomeStatusCodeError, fmt.Sprintf("expected %d, got %d", expected, code))
}

func finish(r storage.CheckResult, start time.Time, outcome storage.Outcome, msg string) storage.CheckResult {
	elapsed := time.Since(start).Milliseconds()
	if elapsed < 0 {
		elapsed = 0
	}
	r.ResponseTime = &elapsed
	r.Status = outcome
	if msg != "" {
		r.ErrorMessage = &msg
	}
	return r
}
