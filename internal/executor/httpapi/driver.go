// Package httpapi implements the HTTP-API driver: a RunbookStep can call a
// REST endpoint instead of running a shell command, retrying on a
// configurable set of status codes.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/maftabmirza/remediation-engine-sub001/internal/executor"
)

// StepRequest carries the fields a RunbookStep's http_api type decodes into;
// Driver.Run takes the already-rendered command string only, so the
// orchestrator marshals one of these to JSON before calling Run.
type StepRequest struct {
	Method        string            `json:"method"`
	Endpoint      string            `json:"endpoint"`
	Headers       map[string]string `json:"headers,omitempty"`
	BodyType      string            `json:"body_type,omitempty"` // "json" | "raw"
	Body          string            `json:"body,omitempty"`
	RetryOnStatus []int             `json:"retry_on_status_codes,omitempty"`
}

// Driver implements executor.Driver by issuing one HTTP request per run.
// "command" is the JSON encoding of a StepRequest; target.APIBaseURL is
// joined against a relative Endpoint.
type Driver struct {
	log    *zap.Logger
	client *http.Client

	mu sync.Mutex
}

func New(log *zap.Logger) *Driver {
	return &Driver{log: log, client: &http.Client{}}
}

// Run decodes command as a StepRequest, issues it against target, and
// retries on network errors or a status in RetryOnStatus.
func (d *Driver) Run(ctx context.Context, target executor.Target, command string, timeout time.Duration, retries int, retryDelay time.Duration) *executor.Result {
	start := time.Now()

	var req StepRequest
	if err := json.Unmarshal([]byte(command), &req); err != nil {
		return &executor.Result{Success: false, ExitCode: -1, Err: fmt.Sprintf("decode step request: %v", err), DurationSecs: time.Since(start).Seconds()}
	}

	fullURL, err := joinURL(target.APIBaseURL, req.Endpoint)
	if err != nil {
		return &executor.Result{Success: false, ExitCode: -1, Err: err.Error(), DurationSecs: time.Since(start).Seconds()}
	}

	retryStatus := make(map[int]bool, len(req.RetryOnStatus))
	for _, s := range req.RetryOnStatus {
		retryStatus[s] = true
	}

	var lastErr string
	retryCount := 0

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return executor.TimedOutResult(start, retryCount, "context cancelled")
			case <-time.After(time.Duration(int64(retryDelay) * int64(attempt))):
			}
			retryCount++
		}

		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err := d.runOnce(reqCtx, req, fullURL)
		cancel()

		if err != nil {
			lastErr = err.Error()
			d.log.Warn("http-api execution failed", zap.String("url", fullURL), zap.Error(err))
			continue
		}
		if retryStatus[res.ExitCode] && attempt < retries {
			lastErr = fmt.Sprintf("status %d in retry set", res.ExitCode)
			continue
		}
		// Report the HTTP status on Stderr and map it to a shell-style exit
		// code (0 for 2xx, 1 otherwise) for the expected_exit_code check.
		res.Stderr = fmt.Sprintf("HTTP status %d", res.ExitCode)
		if res.Success {
			res.ExitCode = 0
		} else {
			res.ExitCode = 1
		}
		res.DurationSecs = time.Since(start).Seconds()
		res.RetryCount = retryCount
		return res
	}

	return &executor.Result{Success: false, ExitCode: -1, Err: lastErr, Stderr: lastErr, DurationSecs: time.Since(start).Seconds(), RetryCount: retryCount}
}

func (d *Driver) runOnce(ctx context.Context, sr StepRequest, fullURL string) (*executor.Result, error) {
	var body io.Reader
	if sr.Body != "" {
		body = strings.NewReader(sr.Body)
	}

	method := sr.Method
	if method == "" {
		method = http.MethodGet
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range sr.Headers {
		httpReq.Header.Set(k, v)
	}
	if sr.BodyType == "json" && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := d.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed any
	_ = json.Unmarshal(respBody, &parsed)

	return &executor.Result{
		Success:  resp.StatusCode >= 200 && resp.StatusCode < 300,
		ExitCode: resp.StatusCode,
		Stdout:   string(respBody),
		Parsed:   parsed,
	}, nil
}

// joinURL joins base and a possibly-relative endpoint, rejecting endpoints
// that escape base via an absolute URL to a different host — the same
// allowlist-style caution the teacher applies to download URLs.
func joinURL(base, endpoint string) (string, error) {
	if base == "" {
		if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
			return "", fmt.Errorf("no api_base_url configured for relative endpoint %q", endpoint)
		}
		return endpoint, nil
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parse api_base_url: %w", err)
	}
	ref, err := url.Parse(endpoint)
	if err != nil {
		return "", fmt.Errorf("parse endpoint: %w", err)
	}
	if ref.IsAbs() && ref.Host != baseURL.Host {
		return "", fmt.Errorf("endpoint host %q does not match configured api_base_url host %q", ref.Host, baseURL.Host)
	}
	return baseURL.ResolveReference(ref).String(), nil
}

// Invalidate is a no-op: the HTTP driver holds no per-host session state.
func (d *Driver) Invalidate(hostname string) {}

// CloseAll is a no-op for the same reason.
func (d *Driver) CloseAll() {}
