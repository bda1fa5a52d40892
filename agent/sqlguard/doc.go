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

// Package sqlguard enforces the read-only SQL policy of the data-access
// tools.
//
// Validate is a pure textual check that a string is exactly one read-only
// statement (SELECT or WITH) containing none of the forbidden operations:
//
//	INSERT UPDATE DELETE MERGE CREATE ALTER DROP TRUNCATE
//	EXEC EXECUTE GRANT REVOKE COMMIT ROLLBACK
//
// Keywords are matched case-insensitively on word boundaries anywhere in the
// text, string literals included. Comments, unterminated quotes and stacked
// statements are rejected, and so are delay functions, file access and
// locking statements. Strict mode (the default) also refuses UNION and
// OR-true shapes.
//
// CheckTenant enforces tenant isolation: the top-level WHERE clause must
// contain org_id = <tenant> as an AND-joined conjunct, the tenant given as a
// literal or as a bound placeholder argument. Filters inside subqueries do
// not count.
//
// Approve runs both and returns an *Approved token, the only input the
// executor accepts. This is a heuristic filter, not a SQL parser; when in
// doubt it rejects.
package sqlguard
