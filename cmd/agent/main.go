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

// Package main is the entry point for the KPI tools agent.
//
// The agent serves the execute_sql_query, get_kpi_data, get_available_kpis
// and external_search tools over HTTP and the action-group envelope.
//
// Usage:
//
//	./agent
//
// Environment Variables:
//
//	PORT - HTTP server port (default: 8080)
//	DB_DRIVER - mysql or postgres
//	DB_SECRET_ARN - secret holding the store credentials
//	REDIS_URL - enables the distributed rate limiter
//	TOOL_AUTH_SECRET - HS256 secret for service tokens
//	BROWSER_SERVICE_URL - browser automation service for external_search
package main

import (
	"fmt"
	"os"

	"kpiflow/agent"
)

func main() {
	if err := agent.Run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
