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
	"regexp"
	"strings"
)

var whitespaceRegex = regexp.MustCompile(`\s+`)

// Validator decides whether a SQL string may reach the executor.
// It is a conservative textual filter, not a parser: anything it cannot
// classify with confidence is rejected.
type Validator struct {
	mode         Mode
	patterns     *PatternSet
	tenantColumn string
	maxLength    int
}

// Option is a functional option for configuring a Validator.
type Option func(*Validator)

// WithMode sets the validation mode.
func WithMode(mode Mode) Option {
	return func(v *Validator) {
		if mode.IsValid() {
			v.mode = mode
		}
	}
}

// WithPatternSet replaces the strict-mode pattern set.
func WithPatternSet(ps *PatternSet) Option {
	return func(v *Validator) {
		v.patterns = ps
	}
}

// WithTenantColumn sets the column carrying the tenant id (default org_id).
func WithTenantColumn(column string) Option {
	return func(v *Validator) {
		v.tenantColumn = column
	}
}

// WithMaxLength sets the maximum accepted statement length in bytes.
func WithMaxLength(n int) Option {
	return func(v *Validator) {
		v.maxLength = n
	}
}

// New creates a Validator with the given options.
func New(opts ...Option) *Validator {
	v := &Validator{
		mode:         DefaultMode,
		patterns:     NewPatternSet(),
		tenantColumn: "org_id",
		maxLength:    64 * 1024,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Mode returns the validation mode.
func (v *Validator) Mode() Mode {
	return v.mode
}

// Normalize collapses whitespace and upper-cases sql for keyword checks.
func Normalize(sql string) string {
	return strings.ToUpper(strings.TrimSpace(whitespaceRegex.ReplaceAllString(sql, " ")))
}

// Validate checks that sql is exactly one read-only statement free of
// forbidden operations. It has no side effects.
func (v *Validator) Validate(sql string) Verdict {
	if strings.TrimSpace(sql) == "" {
		return reject(CategoryEmpty, "Query is empty.")
	}
	if len(sql) > v.maxLength {
		return reject(CategoryAmbiguous, fmt.Sprintf("Query exceeds the maximum length of %d bytes.", v.maxLength))
	}

	if loc := forbiddenRegex.FindStringSubmatchIndex(sql); loc != nil {
		keyword := strings.ToUpper(sql[loc[2]:loc[3]])
		verdict := reject(CategoryForbiddenOperation,
			fmt.Sprintf("Forbidden operation detected: %s. Only SELECT queries are allowed.", keyword))
		verdict.Keyword = keyword
		return verdict
	}

	s := scanSQL(sql)
	if s.unterminated {
		return reject(CategoryAmbiguous, "Query contains an unterminated quoted string.")
	}
	if s.comment != "" {
		verdict := reject(CategoryCommentInjection,
			fmt.Sprintf("SQL comments (%s) are not allowed.", s.comment))
		verdict.Keyword = s.comment
		return verdict
	}
	if len(s.statements) != 1 {
		return reject(CategoryStackedQueries,
			fmt.Sprintf("Multiple SQL statements are not allowed (found %d).", len(s.statements)))
	}

	if p := v.patterns.Match(sql, v.mode == ModeStrict); p != nil {
		verdict := reject(p.Category, fmt.Sprintf("Query rejected: %s.", p.Description))
		verdict.Pattern = p.Name
		return verdict
	}

	normalized := Normalize(s.statements[0])
	first := normalized
	if i := strings.IndexAny(normalized, " (\t"); i != -1 {
		first = normalized[:i]
	}
	for _, kw := range ReadOnlyKeywords {
		if first == kw {
			return allow()
		}
	}
	return reject(CategoryNotReadOnly,
		fmt.Sprintf("Only SELECT queries are allowed. Query must start with %s.", strings.Join(ReadOnlyKeywords, " or ")))
}

// Statement returns the single statement in sql with surrounding whitespace
// and a trailing semicolon removed. It assumes Validate accepted sql.
func Statement(sql string) string {
	s := scanSQL(sql)
	if len(s.statements) == 0 {
		return ""
	}
	return s.statements[0]
}
