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

// Package logger provides structured, multi-tenant logging for kpiflow
// components.
//
// Each component creates its own Logger with New and logs with the tenant
// (client id) and request id of the call being served:
//
//	log := logger.New("kpi-tool")
//	log.Info(orgID, requestID, "KPI query executed", map[string]interface{}{
//	    "rows": 3,
//	})
//
// Entries are encoded by a process-wide zap backend configured once with
// Init(level, env). Production uses the JSON encoder so entries can be
// shipped to CloudWatch or Loki unchanged; development uses the console
// encoder.
package logger
