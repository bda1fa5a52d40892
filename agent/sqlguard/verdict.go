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

package sqlguard

import (
	"fmt"
	"strings"
)

// Mode selects how much beyond the forbidden-operation list is checked.
type Mode string

const (
	// ModeBasic checks structure (single statement, read-only prefix), the
	// forbidden-operation keywords and the file, delay and locking patterns.
	ModeBasic Mode = "basic"

	// ModeStrict additionally rejects UNION and OR-true injection shapes and
	// refuses OR, XOR and negated groups in tenant-scoped raw SQL.
	ModeStrict Mode = "strict"
)

// DefaultMode is the mode used when none is configured.
const DefaultMode = ModeStrict

// IsValid checks if the mode is a known mode.
func (m Mode) IsValid() bool {
	return m == ModeBasic || m == ModeStrict
}

// ParseMode parses a string into a Mode, returning an error if invalid.
func ParseMode(s string) (Mode, error) {
	if s == "" {
		return DefaultMode, nil
	}
	mode := Mode(strings.ToLower(s))
	if !mode.IsValid() {
		return "", fmt.Errorf("invalid guard mode: %q, valid modes are: basic, strict", s)
	}
	return mode, nil
}

// Category classifies why a statement was rejected.
type Category string

const (
	// CategoryEmpty means no statement was supplied.
	CategoryEmpty Category = "empty"

	// CategoryForbiddenOperation means a mutation, DDL, privilege or
	// transaction-control keyword was found.
	CategoryForbiddenOperation Category = "forbidden_operation"

	// CategoryStackedQueries means more than one statement was supplied.
	CategoryStackedQueries Category = "stacked_queries"

	// CategoryNotReadOnly means the statement does not start with a
	// read-only retrieval keyword.
	CategoryNotReadOnly Category = "not_read_only"

	// CategoryAmbiguous means the text could not be split reliably
	// (unterminated quote).
	CategoryAmbiguous Category = "ambiguous"

	// CategoryCommentInjection means a SQL comment was found.
	CategoryCommentInjection Category = "comment_injection"

	// CategoryUnionBased means a UNION was found.
	CategoryUnionBased Category = "union_based"

	// CategoryBooleanBlind means an always-true/false comparison was found.
	CategoryBooleanBlind Category = "boolean_blind"

	// CategoryTimeBased means a delay function was found.
	CategoryTimeBased Category = "time_based"

	// CategoryFileAccess means server file read/write was attempted.
	CategoryFileAccess Category = "file_access"

	// CategoryDangerousQuery covers other statements with side effects
	// (REPLACE INTO, CALL, LOCK TABLES, HANDLER).
	CategoryDangerousQuery Category = "dangerous_query"

	// CategoryTenantScope means the tenant equality filter is missing or
	// conflicts with the caller's tenant.
	CategoryTenantScope Category = "tenant_scope"
)

// Verdict is the outcome of validating one statement.
type Verdict struct {
	Allowed  bool     `json:"allowed"`
	Reason   string   `json:"reason,omitempty"`
	Keyword  string   `json:"keyword,omitempty"`
	Pattern  string   `json:"pattern,omitempty"`
	Category Category `json:"category,omitempty"`
}

func allow() Verdict {
	return Verdict{Allowed: true}
}

func reject(category Category, reason string) Verdict {
	return Verdict{Allowed: false, Category: category, Reason: reason}
}
