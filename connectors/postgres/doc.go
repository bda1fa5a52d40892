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

// Package postgres provides the PostgreSQL dialect, an alternative store for
// deployments that keep the commercial KPI tables in PostgreSQL.
//
// Statements use $n placeholders, statement_timeout bounds execution and
// SQLSTATE 57014 (query_canceled) is reported as a timeout.
package postgres
