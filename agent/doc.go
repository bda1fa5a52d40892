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

/*
Package agent serves the KPI analytics tools: ad-hoc read-only SQL over the
commercial data store, catalog-driven KPI aggregation, catalog browsing and
an external web search backed by a browser automation service.

# Overview

Every tool call goes through the same path:

	Caller → auth (service token) → tenant resolution → rate limit → tool → JSON

Tools are reachable directly (POST /tools/<name>) or through the
action-group envelope used by LLM orchestrators (POST /invoke). Envelope
calls always answer HTTP 200; the tool status travels in httpStatusCode.

# Tools

  - execute_sql_query - validates caller SQL with sqlguard, then runs it
    under a session statement timeout
  - get_kpi_data - resolves KPI ids through the catalog, builds a grouped
    aggregation, audits the rows and adds *_formatted siblings
  - get_available_kpis - lists catalog KPIs, optionally for one customer
  - external_search - forwards a prompt (and optional URL) to the browser
    service

Only statements approved by sqlguard reach the database, including the
ones the query builder generates. Every approved statement filters on the
caller's tenant.

# Usage

	// Start the agent
	if err := agent.Run(); err != nil {
		log.Fatal(err)
	}

	// Configuration comes from the environment (and .env in development):
	// PORT, DB_DRIVER, DB_SECRET_ARN, KPI_CATALOG, REDIS_URL,
	// RATE_LIMIT_PER_MINUTE, TOOL_AUTH_SECRET, BROWSER_SERVICE_URL

# Metrics

Prometheus metrics are served at /metrics:

  - kpiflow_tool_requests_total - tool calls by tool and outcome
  - kpiflow_tool_request_duration_milliseconds - tool latency histogram
  - kpiflow_rate_limited_requests_total - calls refused by the rate limiter
  - kpiflow_sqlguard_verdicts_total - SQL guard decisions by category
  - kpiflow_query_duration_seconds - statement execution time
  - go_sql_* - connection pool statistics of the KPI store
*/
package agent
