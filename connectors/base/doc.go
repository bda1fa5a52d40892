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

// Package base defines the types shared by the relational store connectors
// and the components that build and run statements against them.
//
// A store is described by a ConnectorConfig and driven through a Dialect,
// which hides placeholder syntax, identifier quoting, server-side statement
// timeouts and period truncation differences between MySQL and PostgreSQL.
// Statements travel as Statement values (SQL plus positional arguments) and
// come back as a QueryResult.
//
// security.go holds the input checks every tool applies before touching a
// store or an external URL: SQL identifier and tenant id validation, SSRF
// protection for outbound URLs, and log sanitization.
package base
