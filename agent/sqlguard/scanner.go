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

import "strings"

// scan is the result of a quote-aware pass over a statement.
type scan struct {
	// statements are the non-blank statements separated by semicolons
	// outside quotes, trimmed.
	statements []string
	// comment is the first comment marker found outside quotes.
	comment string
	// unterminated is set when a quote is left open.
	unterminated bool
	// code is the text with every string literal blanked out, same length
	// as the input. Backtick-quoted identifiers are kept.
	code string
}

// scanSQL walks sql once tracking '...', "..." and `...` sections.
// Doubled quotes and backslash escapes inside single/double quotes are
// honoured.
func scanSQL(sql string) scan {
	var (
		s       scan
		quote   byte
		start   int
		code    = []byte(sql)
		emitted = func(end int) {
			if stmt := strings.TrimSpace(sql[start:end]); stmt != "" {
				s.statements = append(s.statements, stmt)
			}
		}
	)

	for i := 0; i < len(sql); i++ {
		c := sql[i]
		if quote != 0 {
			blank := quote != '`'
			if blank {
				code[i] = ' '
			}
			switch {
			case c == '\\' && blank:
				if i+1 < len(sql) {
					i++
					code[i] = ' '
				}
			case c == quote:
				if i+1 < len(sql) && sql[i+1] == quote {
					i++
					if blank {
						code[i] = ' '
					}
					continue
				}
				quote = 0
			}
			continue
		}

		switch c {
		case '\'', '"':
			quote = c
			code[i] = ' '
		case '`':
			quote = c
		case ';':
			emitted(i)
			start = i + 1
		case '#':
			if s.comment == "" {
				s.comment = "#"
			}
		case '-':
			if i+1 < len(sql) && sql[i+1] == '-' && s.comment == "" {
				s.comment = "--"
			}
		case '/':
			if i+1 < len(sql) && sql[i+1] == '*' && s.comment == "" {
				s.comment = "/*"
			}
		}
	}

	if quote != 0 {
		s.unterminated = true
	}
	emitted(len(sql))
	s.code = string(code)
	return s
}
