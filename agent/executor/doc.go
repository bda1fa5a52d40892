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
Package executor runs guard-approved statements against the KPI store.

A single Pool is shared by the process. Each Execute reserves one
connection, bounds the statement server side with the dialect's session
timeout and client side with a context deadline, and reads the full row
set. A connection that timed out is closed rather than pooled.

Errors are classified with shared/toolerr:

	Forbidden  statement was not approved
	Timeout    deadline exceeded or the server cancelled the statement
	Database   any other driver or connectivity failure
*/
package executor
