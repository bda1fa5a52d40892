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

// Package actiongroup decodes and encodes the managed-agent action-group
// envelope. An orchestrating agent calls a tool by posting an event that
// names the tool's apiPath and carries its parameters as name/value pairs;
// the reply wraps the tool's JSON body in a versioned response.
package actiongroup

import (
	"encoding/json"
	"fmt"
	"strings"
)

// MessageVersion is the envelope version emitted in every response.
const MessageVersion = "1.0"

const jsonContentType = "application/json"

// Parameter is one name/value pair. Values are usually strings even for
// numeric and array parameters.
type Parameter struct {
	Name  string      `json:"name"`
	Type  string      `json:"type,omitempty"`
	Value interface{} `json:"value"`
}

// Properties holds the parameters of one request body content type.
type Properties struct {
	Properties []Parameter `json:"properties"`
}

// RequestBody carries parameters keyed by content type.
type RequestBody struct {
	Content map[string]Properties `json:"content"`
}

// Event is an action-group invocation.
type Event struct {
	MessageVersion    string            `json:"messageVersion,omitempty"`
	ActionGroup       string            `json:"actionGroup,omitempty"`
	APIPath           string            `json:"apiPath,omitempty"`
	HTTPMethod        string            `json:"httpMethod,omitempty"`
	Parameters        []Parameter       `json:"parameters,omitempty"`
	RequestBody       *RequestBody      `json:"requestBody,omitempty"`
	SessionAttributes map[string]string `json:"sessionAttributes,omitempty"`

	// Body is set by API gateways that forward the raw request as a string.
	Body string `json:"body,omitempty"`

	params map[string]interface{}
}

// envelopeKeys are dropped when the event itself is used as the
// parameter map.
var envelopeKeys = map[string]bool{
	"messageVersion":    true,
	"actionGroup":       true,
	"apiPath":           true,
	"httpMethod":        true,
	"parameters":        true,
	"requestBody":       true,
	"sessionAttributes": true,
	"agent":             true,
	"inputText":         true,
	"sessionId":         true,
	"body":              true,
}

// Decode parses an event and resolves its parameters. Parameters come from
// requestBody.content["application/json"].properties when present, then the
// parameters list, then a JSON string body, and finally the remaining
// top-level fields of the event.
func Decode(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("invalid action group event: %w", err)
	}

	switch {
	case event.RequestBody != nil && hasProperties(event.RequestBody):
		event.params = toMap(event.RequestBody.Content[jsonContentType].Properties)
	case len(event.Parameters) > 0:
		event.params = toMap(event.Parameters)
	case strings.TrimSpace(event.Body) != "":
		params := make(map[string]interface{})
		if err := json.Unmarshal([]byte(event.Body), &params); err != nil {
			return nil, fmt.Errorf("invalid JSON in request body: %w", err)
		}
		event.params = params
	default:
		var raw map[string]interface{}
		if err := json.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("invalid action group event: %w", err)
		}
		params := make(map[string]interface{}, len(raw))
		for k, v := range raw {
			if !envelopeKeys[k] {
				params[k] = v
			}
		}
		event.params = params
	}
	return &event, nil
}

func hasProperties(rb *RequestBody) bool {
	c, ok := rb.Content[jsonContentType]
	return ok && c.Properties != nil
}

func toMap(list []Parameter) map[string]interface{} {
	params := make(map[string]interface{}, len(list))
	for _, p := range list {
		if p.Name != "" {
			params[p.Name] = p.Value
		}
	}
	return params
}

// Params returns the resolved parameters.
func (e *Event) Params() map[string]interface{} {
	if e.params == nil {
		return map[string]interface{}{}
	}
	return e.params
}

// Path returns the apiPath with a leading slash, or def when unset.
func (e *Event) Path(def string) string {
	p := strings.TrimSpace(e.APIPath)
	if p == "" {
		return def
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Body is the JSON document returned for one content type.
type Body struct {
	Body string `json:"body"`
}

// Result is the inner response block.
type Result struct {
	ActionGroup    string          `json:"actionGroup"`
	APIPath        string          `json:"apiPath"`
	HTTPMethod     string          `json:"httpMethod"`
	HTTPStatusCode int             `json:"httpStatusCode"`
	ResponseBody   map[string]Body `json:"responseBody"`
}

// Response is the envelope returned to the orchestrating agent.
type Response struct {
	MessageVersion    string            `json:"messageVersion"`
	Response          Result            `json:"response"`
	SessionAttributes map[string]string `json:"sessionAttributes,omitempty"`
}

// Route names the defaults used when an event omits its actionGroup or
// apiPath.
type Route struct {
	ActionGroup string
	APIPath     string
}

// NewResponse wraps payload for the event. Fields missing from the event
// fall back to route, and the method defaults to POST.
func NewResponse(e *Event, route Route, status int, payload interface{}) (*Response, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode response body: %w", err)
	}

	actionGroup, apiPath, method := route.ActionGroup, route.APIPath, "POST"
	var session map[string]string
	if e != nil {
		if e.ActionGroup != "" {
			actionGroup = e.ActionGroup
		}
		apiPath = e.Path(apiPath)
		if e.HTTPMethod != "" {
			method = e.HTTPMethod
		}
		session = e.SessionAttributes
	}

	return &Response{
		MessageVersion: MessageVersion,
		Response: Result{
			ActionGroup:    actionGroup,
			APIPath:        apiPath,
			HTTPMethod:     method,
			HTTPStatusCode: status,
			ResponseBody: map[string]Body{
				jsonContentType: {Body: string(body)},
			},
		},
		SessionAttributes: session,
	}, nil
}

// DecodeBody unmarshals the JSON body of a response into out.
func (r *Response) DecodeBody(out interface{}) error {
	b, ok := r.Response.ResponseBody[jsonContentType]
	if !ok {
		return fmt.Errorf("response has no %s body", jsonContentType)
	}
	return json.Unmarshal([]byte(b.Body), out)
}
