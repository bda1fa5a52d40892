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

package actiongroup

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeParameterSources(t *testing.T) {
	tests := []struct {
		name  string
		event string
		want  map[string]interface{}
	}{
		{
			name: "request body properties",
			event: `{"actionGroup":"GetKpiDataActionGroup","apiPath":"/get_kpi_data","httpMethod":"POST",
				"requestBody":{"content":{"application/json":{"properties":[
					{"name":"kpi_ids","type":"string","value":"17870,17868"},
					{"name":"date_range","type":"string","value":"2024-01 to 2024-03"}]}}}}`,
			want: map[string]interface{}{"kpi_ids": "17870,17868", "date_range": "2024-01 to 2024-03"},
		},
		{
			name: "request body wins over parameters",
			event: `{"parameters":[{"name":"org_id","value":"ignored"}],
				"requestBody":{"content":{"application/json":{"properties":[{"name":"org_id","value":"acme"}]}}}}`,
			want: map[string]interface{}{"org_id": "acme"},
		},
		{
			name:  "parameters list",
			event: `{"apiPath":"/get_available_kpis","parameters":[{"name":"customer","value":"Customer A"}]}`,
			want:  map[string]interface{}{"customer": "Customer A"},
		},
		{
			name:  "gateway string body",
			event: `{"body":"{\"query\":\"SELECT 1\",\"org_id\":\"acme\"}"}`,
			want:  map[string]interface{}{"query": "SELECT 1", "org_id": "acme"},
		},
		{
			name:  "direct invocation",
			event: `{"apiPath":"/execute_sql_query","query":"SELECT 1","org_id":"acme","timeout":10}`,
			want:  map[string]interface{}{"query": "SELECT 1", "org_id": "acme", "timeout": float64(10)},
		},
		{
			name:  "empty event",
			event: `{}`,
			want:  map[string]interface{}{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event, err := Decode([]byte(tt.event))
			require.NoError(t, err)
			assert.Equal(t, tt.want, event.Params())
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	assert.ErrorContains(t, err, "invalid action group event")

	_, err = Decode([]byte(`{"body":"{broken"}`))
	assert.ErrorContains(t, err, "invalid JSON in request body")
}

func TestPath(t *testing.T) {
	assert.Equal(t, "/get_kpi_data", (&Event{APIPath: "get_kpi_data"}).Path("/x"))
	assert.Equal(t, "/x", (&Event{}).Path("/x"))
	assert.Equal(t, "/external_search", (&Event{APIPath: " /external_search "}).Path(""))
}

func TestNewResponse(t *testing.T) {
	event, err := Decode([]byte(`{"actionGroup":"KpiTools","apiPath":"/get_kpi_data","httpMethod":"GET",
		"sessionAttributes":{"user":"u1"},"parameters":[{"name":"kpi_ids","value":"17870"}]}`))
	require.NoError(t, err)

	resp, err := NewResponse(event, Route{ActionGroup: "GetKpiDataActionGroup", APIPath: "/get_kpi_data"}, 200,
		map[string]interface{}{"count": 3})
	require.NoError(t, err)

	assert.Equal(t, "1.0", resp.MessageVersion)
	assert.Equal(t, "KpiTools", resp.Response.ActionGroup)
	assert.Equal(t, "/get_kpi_data", resp.Response.APIPath)
	assert.Equal(t, "GET", resp.Response.HTTPMethod)
	assert.Equal(t, 200, resp.Response.HTTPStatusCode)
	assert.Equal(t, map[string]string{"user": "u1"}, resp.SessionAttributes)
	assert.JSONEq(t, `{"count":3}`, resp.Response.ResponseBody["application/json"].Body)

	var body struct {
		Count int `json:"count"`
	}
	require.NoError(t, resp.DecodeBody(&body))
	assert.Equal(t, 3, body.Count)
}

func TestNewResponseDefaults(t *testing.T) {
	route := Route{ActionGroup: "GetAvailableKpisActionGroup", APIPath: "/get_available_kpis"}

	for _, event := range []*Event{nil, {}} {
		resp, err := NewResponse(event, route, 500, map[string]interface{}{"error": "boom", "kpis": []interface{}{}})
		require.NoError(t, err)
		assert.Equal(t, "GetAvailableKpisActionGroup", resp.Response.ActionGroup)
		assert.Equal(t, "/get_available_kpis", resp.Response.APIPath)
		assert.Equal(t, "POST", resp.Response.HTTPMethod)
		assert.Equal(t, 500, resp.Response.HTTPStatusCode)
		assert.JSONEq(t, `{"error":"boom","kpis":[]}`, resp.Response.ResponseBody["application/json"].Body)
	}
}

func TestNewResponseEncodeError(t *testing.T) {
	_, err := NewResponse(nil, Route{}, 200, map[string]interface{}{"bad": make(chan int)})
	assert.Error(t, err)
}
