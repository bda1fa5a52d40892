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
	"strconv"
	"strings"
)

var (
	orRegex = regexp.MustCompile(`(?i)\bOR\b|\|\|`)

	// strictNegationRegex matches constructs that can invert or re-test a
	// predicate without touching its text.
	strictNegationRegex = regexp.MustCompile(`(?i)\bXOR\b|\bIS\s+(NOT\s+)?(TRUE|FALSE|UNKNOWN)\b|\bNOT\s*\(`)
)

// tenantComparisonRegex matches the tenant column followed by a comparison
// operator. It runs over scan.code, so columns named inside string literals
// are ignored.
func tenantComparisonRegex(column string) *regexp.Regexp {
	col := regexp.QuoteMeta(column)
	return regexp.MustCompile("(?i)`?\\b" + col + "\\b`?\\s*(<=>|<>|!=|>=|<=|=|<|>|\\bNOT\\s+IN\\b|\\bIN\\b|\\bNOT\\s+LIKE\\b|\\bLIKE\\b|\\bBETWEEN\\b|\\bIS\\b)")
}

// CheckTenant verifies that sql filters the tenant column by equality with
// tenantID, either as a string literal or through a bound placeholder
// (? or $n) whose argument equals tenantID.
//
// The equality must be a conjunct of the top-level WHERE clause: at
// parenthesis depth 0, preceded by WHERE or AND and followed by AND or the
// end of the clause. Filters that only appear in subqueries, CTEs or join
// conditions do not count. Any comparison of the tenant column against
// another value is a conflict and is rejected; comparisons with other
// columns (join conditions) are ignored.
func (v *Validator) CheckTenant(sql string, args []interface{}, tenantID string) Verdict {
	s := scanSQL(sql)
	if s.unterminated {
		return reject(CategoryAmbiguous, "Query contains an unterminated quoted string.")
	}

	missing := reject(CategoryTenantScope,
		fmt.Sprintf("Query must filter by %s = '%s' for data isolation.", v.tenantColumn, tenantID))

	matches := tenantComparisonRegex(v.tenantColumn).FindAllStringSubmatchIndex(s.code, -1)
	if len(matches) == 0 {
		return missing
	}

	toks := tokenize(s.code)
	for _, t := range toks {
		if t.depth == 0 && setOperators[strings.ToUpper(t.text)] {
			return reject(CategoryTenantScope,
				fmt.Sprintf("%s is not allowed in tenant-scoped queries.", strings.ToUpper(t.text)))
		}
	}
	clause, hasWhere := topLevelWhere(toks)
	if hasWhere {
		for _, t := range toks[clause.from:clause.to] {
			if t.depth == 0 && isDisjunction(t.text) {
				return reject(CategoryTenantScope,
					fmt.Sprintf("The top-level WHERE clause must combine conditions with AND only (found %s).", strings.ToUpper(t.text)))
			}
		}
	}

	scoped := false
	for _, m := range matches {
		op := strings.ToUpper(s.code[m[2]:m[3]])
		if op != "=" {
			return reject(CategoryTenantScope,
				fmt.Sprintf("The %s column may only be compared with '=' to the caller's tenant (found %s).", v.tenantColumn, op))
		}

		value, end, kind := operandAt(sql, s.code, m[1], args)
		switch kind {
		case operandColumn:
			continue
		case operandValue:
			if value != tenantID {
				return reject(CategoryTenantScope,
					fmt.Sprintf("Query references a different %s than the caller's tenant.", v.tenantColumn))
			}
			if hasWhere && clause.anchors(toks, m[0], end) {
				scoped = true
			}
		default:
			return reject(CategoryTenantScope,
				fmt.Sprintf("Could not determine the %s value the query filters on.", v.tenantColumn))
		}
	}
	if !scoped {
		return missing
	}

	if v.mode == ModeStrict {
		if orRegex.MatchString(s.code) {
			return reject(CategoryTenantScope,
				"OR conditions are not allowed in tenant-scoped queries; use IN (...) on non-tenant columns instead.")
		}
		if loc := strictNegationRegex.FindStringIndex(s.code); loc != nil {
			return reject(CategoryTenantScope,
				fmt.Sprintf("%s is not allowed in tenant-scoped queries.", strings.ToUpper(strings.Join(strings.Fields(s.code[loc[0]:loc[1]]), " "))))
		}
	}
	return allow()
}

var setOperators = map[string]bool{"UNION": true, "INTERSECT": true, "EXCEPT": true, "MINUS": true}

var clauseEnd = map[string]bool{
	"GROUP": true, "HAVING": true, "ORDER": true, "LIMIT": true, "OFFSET": true,
	"FETCH": true, "WINDOW": true, "FOR": true, "INTO": true,
}

func isDisjunction(text string) bool {
	switch strings.ToUpper(text) {
	case "OR", "XOR":
		return true
	}
	return strings.Contains(text, "||")
}

// token is a word, operator or punctuation mark of scan.code with the
// parenthesis depth it appears at.
type token struct {
	text       string
	start, end int
	depth      int
}

func isWordByte(c byte) bool {
	return c == '_' || c == '$' || c == '.' || c == '@' || c == '`' ||
		c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= 0x80
}

// tokenize splits code (literals already blanked) into tokens. Backtick
// identifiers and qualified names such as o.org_id are single words.
func tokenize(code string) []token {
	var toks []token
	depth := 0
	for i := 0; i < len(code); {
		c := code[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			i++
		case c == '(':
			toks = append(toks, token{text: "(", start: i, end: i + 1, depth: depth})
			depth++
			i++
		case c == ')':
			if depth > 0 {
				depth--
			}
			toks = append(toks, token{text: ")", start: i, end: i + 1, depth: depth})
			i++
		case isWordByte(c):
			j := i
			for j < len(code) && isWordByte(code[j]) {
				if code[j] == '`' {
					if k := strings.IndexByte(code[j+1:], '`'); k >= 0 {
						j += k + 2
						continue
					}
				}
				j++
			}
			toks = append(toks, token{text: code[i:j], start: i, end: j, depth: depth})
			i = j
		case strings.IndexByte("<>=!|&^+-*/%~:", c) >= 0:
			j := i
			for j < len(code) && strings.IndexByte("<>=!|&^+-*/%~:", code[j]) >= 0 {
				j++
			}
			toks = append(toks, token{text: code[i:j], start: i, end: j, depth: depth})
			i = j
		default:
			toks = append(toks, token{text: code[i : i+1], start: i, end: i + 1, depth: depth})
			i++
		}
	}
	return toks
}

// whereClause is the token range of the top-level WHERE condition:
// toks[from:to], with toks[from-1] the WHERE keyword.
type whereClause struct {
	from, to int
}

// topLevelWhere locates the single WHERE keyword at depth 0 and the end of
// its condition.
func topLevelWhere(toks []token) (whereClause, bool) {
	where := -1
	for i, t := range toks {
		if t.depth == 0 && strings.EqualFold(t.text, "WHERE") {
			if where >= 0 {
				return whereClause{}, false
			}
			where = i
		}
	}
	if where < 0 {
		return whereClause{}, false
	}
	c := whereClause{from: where + 1, to: len(toks)}
	for i := c.from; i < len(toks); i++ {
		t := toks[i]
		if t.depth == 0 && (clauseEnd[strings.ToUpper(t.text)] || t.text == ";") {
			c.to = i
			break
		}
	}
	return c, true
}

// anchors reports whether the comparison spanning [start, end) of the code
// is a conjunct of the clause.
func (c whereClause) anchors(toks []token, start, end int) bool {
	col := -1
	for i := c.from; i < c.to; i++ {
		if toks[i].start <= start && start < toks[i].end {
			col = i
			break
		}
	}
	if col < 0 || toks[col].depth != 0 {
		return false
	}

	// AND after BETWEEN belongs to the range, not to the conjunction.
	between := false
	conjunct := true
	for i := c.from; i < col; i++ {
		t := toks[i]
		if t.depth != 0 {
			continue
		}
		upper := strings.ToUpper(t.text)
		switch {
		case upper == "BETWEEN":
			between = true
			conjunct = false
		case (upper == "AND" || t.text == "&&") && between:
			between = false
			conjunct = false
		case upper == "AND" || t.text == "&&":
			conjunct = true
		default:
			conjunct = false
		}
	}
	if col > c.from && !conjunct {
		return false
	}

	for i := col + 1; i < c.to; i++ {
		if toks[i].start < end {
			continue
		}
		next := toks[i]
		return next.depth == 0 && (strings.EqualFold(next.text, "AND") || next.text == "&&")
	}
	return true
}

type operandKind int

const (
	operandUnknown operandKind = iota
	operandValue
	operandColumn
)

// operandAt reads the right-hand operand of a tenant comparison starting at
// pos: a string literal, a ?/$n placeholder resolved against args, a bare
// number, or a column reference. It also returns the offset just past the
// operand.
func operandAt(sql, code string, pos int, args []interface{}) (string, int, operandKind) {
	for pos < len(sql) && (sql[pos] == ' ' || sql[pos] == '\t' || sql[pos] == '\n' || sql[pos] == '\r') {
		pos++
	}
	if pos >= len(sql) {
		return "", pos, operandUnknown
	}

	switch c := sql[pos]; {
	case c == '\'' || c == '"':
		lit, n, ok := readLiteral(sql[pos:])
		if !ok {
			return "", pos, operandUnknown
		}
		return lit, pos + n, operandValue
	case c == '?':
		n := strings.Count(code[:pos], "?")
		value, kind := argAt(args, n)
		return value, pos + 1, kind
	case c == '$':
		end := pos + 1
		for end < len(sql) && sql[end] >= '0' && sql[end] <= '9' {
			end++
		}
		n, err := strconv.Atoi(sql[pos+1 : end])
		if err != nil || n < 1 {
			return "", end, operandUnknown
		}
		value, kind := argAt(args, n-1)
		return value, end, kind
	case c >= '0' && c <= '9' || c == '-':
		end := pos + 1
		for end < len(sql) && (sql[end] >= '0' && sql[end] <= '9' || sql[end] == '.') {
			end++
		}
		return sql[pos:end], end, operandValue
	case c == '`' || c == '_' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z':
		return "", pos, operandColumn
	}
	return "", pos, operandUnknown
}

func argAt(args []interface{}, i int) (string, operandKind) {
	if i < 0 || i >= len(args) || args[i] == nil {
		return "", operandUnknown
	}
	return fmt.Sprint(args[i]), operandValue
}

// readLiteral decodes a quoted literal at the start of s, honouring doubled
// quotes and backslash escapes. n is the length of the literal including
// its quotes.
func readLiteral(s string) (lit string, n int, ok bool) {
	quote := s[0]
	var b strings.Builder
	for i := 1; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '\\' && i+1 < len(s):
			i++
			b.WriteByte(s[i])
		case c == quote && i+1 < len(s) && s[i+1] == quote:
			i++
			b.WriteByte(quote)
		case c == quote:
			return b.String(), i + 1, true
		default:
			b.WriteByte(c)
		}
	}
	return "", 0, false
}
