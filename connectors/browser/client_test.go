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

package browser

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiflow/connectors/base"
	"kpiflow/shared/toolerr"
)

// publicResolver resolves IP literals to themselves and every name to a
// public address, so tests never touch DNS.
func publicResolver(host string) ([]net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []net.IP{ip}, nil
	}
	return []net.IP{net.ParseIP("93.184.216.34")}, nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *[]payload) {
	t.Helper()
	var received []payload
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			var p payload
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&p))
			received = append(received, p)
		}
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	opts := base.DefaultURLValidationOptions()
	opts.Resolve = publicResolver
	client, err := NewClient(server.URL+"/", time.Second, WithURLValidation(opts))
	require.NoError(t, err)
	return client, &received
}

func TestNewClient(t *testing.T) {
	_, err := NewClient("", 0)
	assert.Error(t, err)

	_, err = NewClient("ftp://browser.internal", 0)
	assert.Error(t, err)

	c, err := NewClient("https://browser.internal/", 0)
	require.NoError(t, err)
	assert.Equal(t, "https://browser.internal", c.Endpoint())
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestSearch_PromptOnly(t *testing.T) {
	client, received := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success": true, "content": "Acme opened 12 stores in Q1."}`))
	})

	result, err := client.Search(context.Background(), "acme", Request{Prompt: "  Acme store openings  "})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, "Acme opened 12 stores in Q1.", result.Content)
	assert.Equal(t, "browser", result.Source)

	require.Len(t, *received, 1)
	assert.Equal(t, payload{Action: "custom", Prompt: "Acme store openings"}, (*received)[0])
}

func TestSearch_WithURL(t *testing.T) {
	client, received := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"content": {"price": "4.99"}}`))
	})

	result, err := client.Search(context.Background(), "acme", Request{
		URL:    "https://example.com/prices",
		Prompt: "Find the bag ice price",
	})
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.JSONEq(t, `{"price": "4.99"}`, result.Content)
	assert.Equal(t, "https://example.com/prices", result.Source)

	require.Len(t, *received, 1)
	assert.Equal(t, "extract_data", (*received)[0].Action)
	assert.Equal(t, "https://example.com/prices", (*received)[0].URL)
	assert.Equal(t, "Find the bag ice price", (*received)[0].ExtractionInstructions)
}

func TestSearch_NonJSONReplyIsWrapped(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("plain text answer\n"))
	})

	result, err := client.Search(context.Background(), "acme", Request{Prompt: "anything"})
	require.NoError(t, err)
	assert.Equal(t, &Result{Success: true, Content: "plain text answer", Source: "browser"}, result)
}

func TestSearch_ServiceReportsFailure(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"success": false, "error": "page did not load"}`))
	})

	result, err := client.Search(context.Background(), "acme", Request{Prompt: "anything"})
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Equal(t, "page did not load", result.Error)
	assert.Empty(t, result.Content)
}

func TestSearch_Errors(t *testing.T) {
	client, received := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(strings.Repeat("x", 300)))
	})

	tests := []struct {
		name string
		req  Request
		kind toolerr.Kind
	}{
		{"missing prompt", Request{Prompt: " "}, toolerr.KindInvalidRequest},
		{"private address", Request{URL: "http://10.0.0.8/admin", Prompt: "x"}, toolerr.KindInvalidRequest},
		{"bad scheme", Request{URL: "file:///etc/passwd", Prompt: "x"}, toolerr.KindInvalidRequest},
		{"upstream status", Request{Prompt: "x"}, toolerr.KindUpstream},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := client.Search(context.Background(), "acme", tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.kind, toolerr.KindOf(err))
		})
	}

	assert.Len(t, *received, 1, "rejected requests must not reach the service")
}

func TestSearch_UpstreamMessageTruncated(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(strings.Repeat("y", 300)))
	})

	_, err := client.Search(context.Background(), "acme", Request{Prompt: "x"})
	require.Error(t, err)
	msg := toolerr.Message(err)
	assert.True(t, strings.HasPrefix(msg, "Browser service error: HTTP 502: "))
	assert.True(t, strings.HasSuffix(msg, "..."))

	var connErr *base.ConnectorError
	assert.ErrorAs(t, err, &connErr)
}

func TestSearch_Unreachable(t *testing.T) {
	client, err := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "acme", Request{Prompt: "x"})
	assert.Equal(t, toolerr.KindUpstream, toolerr.KindOf(err))
}

func TestHealthCheck(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	status, err := client.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	assert.Equal(t, "200", status.Details["status_code"])

	down, _ := NewClient("http://127.0.0.1:1", 200*time.Millisecond)
	status, err = down.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Healthy)
}
