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

// Package mysql provides the MySQL dialect used by the executor and the
// KPI query builder.
//
// The dialect builds go-sql-driver DSNs from either a DSN/URL or discrete
// host/port/database options, bounds statement execution with the
// max_execution_time session variable and recognises the server's
// ER_QUERY_TIMEOUT so a runaway SELECT is reported as a timeout rather than a
// generic database fault.
package mysql
