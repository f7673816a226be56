// Package llmclient is the thinnest possible adapter for the LLM contract:
// Analyze(alert) -> {root_cause, impact, recommendations}. Deep LLM
// integration is out of scope; this just POSTs the alert to a configurable
// endpoint and decodes the expected envelope.
package llmclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/maftabmirza/remediation-engine-sub001/pkg/model"
)

// Analysis is the LLM contract's response envelope.
type Analysis struct {
	RootCause       string   `json:"root_cause"`
	Impact          string   `json:"impact"`
	Recommendations []string `json:"recommendations"`
}

// Analyzer is implemented by anything that can analyze an alert. Modeling
// it as an interface keeps the rules engine decoupled from any particular
// backend.
type Analyzer interface {
	Analyze(ctx context.Context, alert model.Alert) (Analysis, error)
}

// Client is the stub HTTP implementation of Analyzer.
type Client struct {
	endpoint string
	http     *http.Client
}

func New(endpoint string) *Client {
	return &Client{endpoint: endpoint, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *Client) Analyze(ctx context.Context, alert model.Alert) (Analysis, error) {
	if c.endpoint == "" {
		return Analysis{}, fmt.Errorf("llmclient: no endpoint configured")
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return Analysis{}, fmt.Errorf("llmclient: marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return Analysis{}, fmt.Errorf("llmclient: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Analysis{}, fmt.Errorf("llmclient: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return Analysis{}, fmt.Errorf("llmclient: endpoint returned status %d", resp.StatusCode)
	}

	var out Analysis
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Analysis{}, fmt.Errorf("llmclient: decode response: %w", err)
	}
	return out, nil
}
