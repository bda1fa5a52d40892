// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package browser is the client boundary to the browser-automation service.
// The service itself is a black box reached over HTTP: it receives a
// natural-language prompt and an optional page URL and answers with the
// extracted content.
package browser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"kpiflow/connectors/base"
	"kpiflow/shared/logger"
	"kpiflow/shared/toolerr"
)

const (
	// DefaultTimeout bounds one browsing session.
	DefaultTimeout = 60 * time.Second
	// MaxResponseSize caps the reply body read from the service.
	MaxResponseSize = 1 << 20

	connectorName = "browser"

	actionCustom  = "custom"
	actionExtract = "extract_data"
)

// Request is one external search.
type Request struct {
	URL    string `json:"url,omitempty"`
	Prompt string `json:"prompt"`
}

// Result is the normalized reply of the browser service.
type Result struct {
	Success bool   `json:"success"`
	Content string `json:"content,omitempty"`
	Source  string `json:"source,omitempty"`
	Error   string `json:"error,omitempty"`
}

// payload is the body posted to the service.
type payload struct {
	Action                 string `json:"action"`
	Prompt                 string `json:"prompt,omitempty"`
	URL                    string `json:"url,omitempty"`
	ExtractionInstructions string `json:"extraction_instructions,omitempty"`
}

// Client posts search requests to the browser service.
type Client struct {
	endpoint   string
	httpClient *http.Client
	urlOptions base.URLValidationOptions
	logger     *logger.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithURLValidation replaces the SSRF rules applied to target URLs.
func WithURLValidation(opts base.URLValidationOptions) Option {
	return func(c *Client) { c.urlOptions = opts }
}

// NewClient returns a client for the service at endpoint.
func NewClient(endpoint string, timeout time.Duration, opts ...Option) (*Client, error) {
	endpoint = strings.TrimRight(strings.TrimSpace(endpoint), "/")
	if endpoint == "" {
		return nil, fmt.Errorf("browser service URL is required")
	}
	if !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		return nil, fmt.Errorf("browser service URL must be http or https: %q", endpoint)
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		urlOptions: base.DefaultURLValidationOptions(),
		logger:     logger.New("browser"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Endpoint returns the service URL.
func (c *Client) Endpoint() string { return c.endpoint }

// Search runs one browsing session. A reply in which the service reports a
// failure is returned as a Result with Success false; transport and HTTP
// failures are returned as KindUpstream errors.
func (c *Client) Search(ctx context.Context, tenantID string, req Request) (*Result, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, toolerr.InvalidRequest("ExternalSearch", "prompt parameter is required")
	}

	body := payload{Action: actionCustom, Prompt: prompt}
	source := connectorName
	if req.URL != "" {
		if err := base.ValidateURL(req.URL, c.urlOptions); err != nil {
			return nil, toolerr.New(toolerr.KindInvalidRequest, "ExternalSearch",
				"Invalid URL: "+err.Error(), err)
		}
		body = payload{Action: actionExtract, URL: req.URL, ExtractionInstructions: prompt}
		source = req.URL
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, toolerr.New(toolerr.KindInternal, "ExternalSearch", "failed to encode request", err)
	}

	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return nil, upstream("failed to create request", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, upstream("request failed", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, upstream("failed to read response", err)
	}
	if len(raw) > MaxResponseSize {
		return nil, upstream(fmt.Sprintf("response size exceeds limit of %d bytes", MaxResponseSize), nil)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := string(raw)
		if len(msg) > 200 {
			msg = msg[:200] + "..."
		}
		return nil, upstream("HTTP "+strconv.Itoa(resp.StatusCode)+": "+msg, nil)
	}

	result := decodeReply(raw)
	if result.Source == "" {
		result.Source = source
	}

	c.logger.InfoWithDuration(tenantID, "", "External search completed", time.Since(start), map[string]interface{}{
		"action":  body.Action,
		"success": result.Success,
		"bytes":   len(raw),
	})
	return result, nil
}

// decodeReply accepts a JSON object with success/content/error fields or
// any other body, which is wrapped as successful content.
func decodeReply(raw []byte) *Result {
	var reply map[string]interface{}
	if err := json.Unmarshal(raw, &reply); err != nil || reply == nil {
		return &Result{Success: true, Content: strings.TrimSpace(string(raw))}
	}

	result := &Result{Success: true}
	if v, ok := reply["success"].(bool); ok {
		result.Success = v
	}
	if v, ok := reply["error"].(string); ok && v != "" {
		result.Error = v
		result.Success = false
	}
	if v, ok := reply["source"].(string); ok {
		result.Source = v
	}

	switch content := reply["content"].(type) {
	case nil:
		if result.Success {
			result.Content = string(raw)
		}
	case string:
		result.Content = content
	default:
		encoded, err := json.Marshal(content)
		if err == nil {
			result.Content = string(encoded)
		}
	}
	return result
}

func upstream(msg string, cause error) error {
	return toolerr.New(toolerr.KindUpstream, "ExternalSearch",
		"Browser service error: "+msg,
		base.NewConnectorError(connectorName, "Search", msg, cause))
}

// HealthCheck issues a GET against the service root.
func (c *Client) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint, nil)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Timestamp: time.Now(), Error: err.Error()}, nil
	}
	resp, err := c.httpClient.Do(req)
	latency := time.Since(start)
	if err != nil {
		return &base.HealthStatus{Healthy: false, Latency: latency, Timestamp: time.Now(), Error: err.Error()}, nil
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1024))

	return &base.HealthStatus{
		Healthy:   resp.StatusCode < 500,
		Latency:   latency,
		Details:   map[string]string{"endpoint": c.endpoint, "status_code": strconv.Itoa(resp.StatusCode)},
		Timestamp: time.Now(),
	}, nil
}
