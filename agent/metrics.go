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
	"github.com/prometheus/client_golang/prometheus"
)

var (
	promToolRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpiflow_tool_requests_total",
			Help: "Tool invocations by tool and outcome",
		},
		[]string{"tool", "status"},
	)
	promToolDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "kpiflow_tool_request_duration_milliseconds",
			Help:    "Tool request duration in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
		[]string{"tool"},
	)
	promRateLimited = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "kpiflow_rate_limited_requests_total",
			Help: "Requests rejected by the per-tenant rate limit",
		},
	)
)

func init() {
	prometheus.MustRegister(promToolRequests)
	prometheus.MustRegister(promToolDuration)
	prometheus.MustRegister(promRateLimited)
}
