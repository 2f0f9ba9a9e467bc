// Package oktaclient implements the one mediated call path the Sandbox
// Proxy uses to reach a real Okta tenant. No Okta Go SDK appears anywhere
// in the retrieval pack, so this is built on net/http directly, the same
// justification pkg/llm/vertex.go uses for the Vertex AI driver: see
// DESIGN.md.
package oktaclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/oktareact/core/pkg/catalog"
)

// Client authenticates every request against one Okta tenant with an SSWS
// API token, the scheme Okta's REST API documents for server-to-server
// callers.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiToken   string
}

// New returns a Client against baseURL (e.g. "https://example.okta.com")
// authenticated with apiToken.
func New(baseURL, apiToken string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiToken:   apiToken,
	}
}

// Call performs op against the tenant, substituting params into op.Path's
// "{placeholder}" segments and, for GET/DELETE, the remainder into the
// query string. It satisfies sandbox.OktaCaller.
func (c *Client) Call(ctx context.Context, op catalog.Operation, params map[string]any) (json.RawMessage, error) {
	path, remaining := substitutePathParams(op.Path, params)

	var body io.Reader
	reqURL := c.baseURL + path
	switch strings.ToUpper(op.Method) {
	case http.MethodGet, http.MethodDelete:
		if q := encodeQuery(remaining); q != "" {
			reqURL += "?" + q
		}
	default:
		payload, err := json.Marshal(remaining)
		if err != nil {
			return nil, fmt.Errorf("okta call %s: encode body: %w", op.ID, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, strings.ToUpper(op.Method), reqURL, body)
	if err != nil {
		return nil, fmt.Errorf("okta call %s: build request: %w", op.ID, err)
	}
	req.Header.Set("Authorization", "SSWS "+c.apiToken)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("okta call %s: %w", op.ID, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("okta call %s: read response: %w", op.ID, err)
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("okta call %s: status %d: %s", op.ID, resp.StatusCode, truncate(string(data), 500))
	}
	return data, nil
}

// substitutePathParams replaces every "{name}" segment in path with
// params["name"] and returns the remaining, unconsumed params.
func substitutePathParams(path string, params map[string]any) (string, map[string]any) {
	remaining := make(map[string]any, len(params))
	for k, v := range params {
		remaining[k] = v
	}
	out := path
	for k, v := range params {
		placeholder := "{" + k + "}"
		if strings.Contains(out, placeholder) {
			out = strings.ReplaceAll(out, placeholder, fmt.Sprintf("%v", v))
			delete(remaining, k)
		}
	}
	return out, remaining
}

func encodeQuery(params map[string]any) string {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, fmt.Sprintf("%v", v))
	}
	return values.Encode()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}
