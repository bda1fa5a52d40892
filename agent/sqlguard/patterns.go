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
	"regexp"
	"strings"
)

// ForbiddenKeywords are refused anywhere in a statement, including inside
// string literals.
var ForbiddenKeywords = []string{
	// data mutation
	"INSERT", "UPDATE", "DELETE", "MERGE",
	// schema mutation
	"CREATE", "ALTER", "DROP", "TRUNCATE",
	// execution and privileges
	"EXEC", "EXECUTE", "GRANT", "REVOKE",
	// transaction control
	"COMMIT", "ROLLBACK",
}

// ReadOnlyKeywords are the statement prefixes accepted.
var ReadOnlyKeywords = []string{"SELECT", "WITH"}

var forbiddenRegex = regexp.MustCompile(`(?i)\b(` + strings.Join(ForbiddenKeywords, "|") + `)\b`)

// Pattern is a conservative rejection rule.
type Pattern struct {
	// Name is a human-readable identifier for the pattern.
	Name string

	// Category classifies what the pattern detects.
	Category Category

	// Regex is the compiled regular expression.
	Regex *regexp.Regexp

	// Description explains what this pattern detects.
	Description string

	// StrictOnly limits the pattern to strict mode.
	StrictOnly bool
}

// PatternSet holds a collection of rejection patterns.
type PatternSet struct {
	patterns []*Pattern
}

// NewPatternSet creates a pattern set with the default patterns.
func NewPatternSet() *PatternSet {
	return &PatternSet{patterns: defaultPatterns()}
}

// NewCustomPatternSet creates a pattern set from the given patterns only.
func NewCustomPatternSet(patterns []*Pattern) *PatternSet {
	return &PatternSet{patterns: patterns}
}

// Patterns returns all patterns in the set.
func (ps *PatternSet) Patterns() []*Pattern {
	return ps.patterns
}

// Match returns the first pattern matching sql, or nil. Strict-only
// patterns are skipped unless strict is set.
func (ps *PatternSet) Match(sql string, strict bool) *Pattern {
	for _, p := range ps.patterns {
		if p.StrictOnly && !strict {
			continue
		}
		if p.Regex.MatchString(sql) {
			return p
		}
	}
	return nil
}

// defaultPatterns are checked against the full statement text. Comment
// markers are detected separately by the quote-aware scanner.
func defaultPatterns() []*Pattern {
	return []*Pattern{
		{
			Name:        "union_select",
			Category:    CategoryUnionBased,
			Regex:       regexp.MustCompile(`(?i)\bUNION\b`),
			Description: "UNION can append rows outside the tenant filter",
			StrictOnly:  true,
		},
		{
			Name:        "or_true_condition",
			Category:    CategoryBooleanBlind,
			Regex:       regexp.MustCompile(`(?i)\bOR\s+['"]?\w+['"]?\s*=\s*['"]?\w+['"]?\s*($|\)|;)`),
			Description: "Trailing OR comparison such as OR 1=1",
			StrictOnly:  true,
		},
		{
			Name:        "sleep_function",
			Category:    CategoryTimeBased,
			Regex:       regexp.MustCompile(`(?i)\b(SLEEP|PG_SLEEP|BENCHMARK)\s*\(`),
			Description: "Delay functions used for time-based probing",
		},
		{
			Name:        "waitfor_delay",
			Category:    CategoryTimeBased,
			Regex:       regexp.MustCompile(`(?i)\bWAITFOR\s+(DELAY|TIME)\b`),
			Description: "SQL Server WAITFOR",
		},
		{
			Name:        "into_outfile",
			Category:    CategoryFileAccess,
			Regex:       regexp.MustCompile(`(?i)\bINTO\s+(OUT|DUMP)FILE\b`),
			Description: "Writes query results to a server file",
		},
		{
			Name:        "load_file",
			Category:    CategoryFileAccess,
			Regex:       regexp.MustCompile(`(?i)\bLOAD_FILE\s*\(|\bLOAD\s+DATA\b`),
			Description: "Reads server files",
		},
		{
			Name:        "replace_into",
			Category:    CategoryDangerousQuery,
			Regex:       regexp.MustCompile(`(?i)\bREPLACE\s+INTO\b`),
			Description: "MySQL REPLACE statement",
		},
		{
			Name:        "call_procedure",
			Category:    CategoryDangerousQuery,
			Regex:       regexp.MustCompile(`(?i)\bCALL\s+\w`),
			Description: "Stored procedure invocation",
		},
		{
			Name:        "lock_tables",
			Category:    CategoryDangerousQuery,
			Regex:       regexp.MustCompile(`(?i)\bLOCK\s+TABLES?\b|\bFOR\s+SHARE\b|\bLOCK\s+IN\s+SHARE\s+MODE\b`),
			Description: "Explicit locking",
		},
		{
			Name:        "handler_statement",
			Category:    CategoryDangerousQuery,
			Regex:       regexp.MustCompile(`(?i)^\s*HANDLER\b`),
			Description: "MySQL HANDLER interface",
		},
	}
}
