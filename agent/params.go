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

package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"kpiflow/agent/catalog"
	"kpiflow/shared/toolerr"
)

// Params are tool parameters decoded from a JSON body or an action-group
// event. Action-group values usually arrive as strings, so every accessor
// accepts both the typed and the string form.
type Params map[string]interface{}

// String returns the trimmed string value of key, or def when it is unset
// or empty.
func (p Params) String(key, def string) string {
	v, ok := p[key]
	if !ok || v == nil {
		return def
	}
	var s string
	switch val := v.(type) {
	case string:
		s = val
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	default:
		s = fmt.Sprint(val)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

// First returns the first non-empty string among keys.
func (p Params) First(def string, keys ...string) string {
	for _, k := range keys {
		if s := p.String(k, ""); s != "" {
			return s
		}
	}
	return def
}

// Int returns the integer value of key, or def when it is unset.
func (p Params) Int(key string, def int) (int, error) {
	s := p.String(key, "")
	if s == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int(f)) {
		return 0, toolerr.InvalidRequest("Params", fmt.Sprintf("%s must be an integer, got %q", key, s))
	}
	return int(f), nil
}

// IDs returns the KPI ids in key. A comma-separated string, a JSON array
// literal such as "[17870, 17868]", a list and a single number are all
// accepted.
func (p Params) IDs(key string) ([]int, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}

	switch val := v.(type) {
	case []interface{}:
		parts := make([]string, 0, len(val))
		for _, item := range val {
			parts = append(parts, Params{"v": item}.String("v", ""))
		}
		return catalog.ParseIDs(strings.Join(parts, ","))
	case []int:
		return val, nil
	default:
		s := Params{"v": val}.String("v", "")
		s = strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")
		return catalog.ParseIDs(s)
	}
}
