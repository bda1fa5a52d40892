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

package format

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"

	"kpiflow/agent/catalog"
	"kpiflow/connectors/base"
)

// Suffix is appended to a column name to form its display sibling.
const Suffix = "_formatted"

// Formatter adds display values next to the raw ones.
type Formatter struct {
	Frequency    base.Frequency
	PeriodColumn string
}

// New returns a formatter for results bucketed by freq.
func New(freq base.Frequency) *Formatter {
	if freq == "" {
		freq = base.FrequencyMonthly
	}
	return &Formatter{Frequency: freq, PeriodColumn: "period"}
}

// Format returns a copy of every row with a <col>_formatted sibling for the
// period column and each metric or related column present in the row. Raw
// values are never modified and null stays null.
func (f *Formatter) Format(result *base.QueryResult, metrics *catalog.Resolved) []base.Row {
	if result == nil {
		return []base.Row{}
	}

	var columns []string
	if metrics != nil {
		columns = metrics.Columns()
	}

	out := make([]base.Row, 0, len(result.Rows))
	for _, row := range result.Rows {
		formatted := make(base.Row, len(row)+len(columns)+1)
		for k, v := range row {
			formatted[k] = v
		}

		if v, ok := row[f.PeriodColumn]; ok {
			formatted[f.PeriodColumn+Suffix] = Period(v, f.Frequency)
		}
		for _, col := range columns {
			v, ok := row[col]
			if !ok {
				continue
			}
			unit, _ := metrics.UnitOf(col)
			formatted[col+Suffix] = Value(v, unit)
		}
		out = append(out, formatted)
	}
	return out
}

// Value formats v for unit. Null and unparsable values are passed through
// as nil and their string form respectively.
func Value(v interface{}, unit catalog.Unit) interface{} {
	if v == nil {
		return nil
	}
	d, ok := Decimal(v)
	if !ok {
		return fmt.Sprint(v)
	}
	switch unit {
	case catalog.UnitCurrency:
		return Currency(d)
	case catalog.UnitPercentage:
		return Percentage(d)
	default:
		return Number(d)
	}
}

// Currency renders d as $1,234,567.89, negatives as -$1,234.50.
func Currency(d decimal.Decimal) string {
	d = d.Round(2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	intPart, frac, _ := strings.Cut(d.StringFixed(2), ".")
	return sign + "$" + commaInt(intPart) + "." + frac
}

// Percentage renders a fraction as a percentage with two decimals: 0.0523
// becomes 5.23%.
func Percentage(d decimal.Decimal) string {
	return d.Mul(decimal.NewFromInt(100)).StringFixed(2) + "%"
}

// Number renders d with thousands separators, keeping any decimals.
func Number(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	intPart, frac, hasFrac := strings.Cut(d.String(), ".")
	if hasFrac {
		return sign + commaInt(intPart) + "." + frac
	}
	return sign + commaInt(intPart)
}

func commaInt(digits string) string {
	n, ok := new(big.Int).SetString(digits, 10)
	if !ok {
		return digits
	}
	return humanize.BigComma(n)
}

var periodLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	time.RFC3339,
	"2006-01",
}

// Period renders a bucket start: "January 2024" for monthly buckets,
// "Week of January 8, 2024" for weekly and "January 8, 2024" for daily.
// Values that are not dates are returned as strings.
func Period(v interface{}, freq base.Frequency) interface{} {
	var t time.Time
	switch val := v.(type) {
	case nil:
		return nil
	case time.Time:
		t = val
	case []byte:
		return Period(string(val), freq)
	case string:
		parsed, ok := parseDate(val)
		if !ok {
			return val
		}
		t = parsed
	default:
		return fmt.Sprint(v)
	}

	switch freq {
	case base.FrequencyDaily:
		return t.Format("January 2, 2006")
	case base.FrequencyWeekly:
		return "Week of " + t.Format("January 2, 2006")
	default:
		return t.Format("January 2006")
	}
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range periodLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// Decimal converts a driver or JSON value to a decimal.
func Decimal(v interface{}) (decimal.Decimal, bool) {
	switch val := v.(type) {
	case decimal.Decimal:
		return val, true
	case json.Number:
		d, err := decimal.NewFromString(string(val))
		return d, err == nil
	case string:
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		return d, err == nil
	case []byte:
		d, err := decimal.NewFromString(strings.TrimSpace(string(val)))
		return d, err == nil
	case float64:
		return decimal.NewFromFloat(val), true
	case float32:
		return decimal.NewFromFloat32(val), true
	case int:
		return decimal.NewFromInt(int64(val)), true
	case int32:
		return decimal.NewFromInt32(val), true
	case int64:
		return decimal.NewFromInt(val), true
	case uint32:
		return decimal.NewFromInt(int64(val)), true
	case uint64:
		return decimal.NewFromBigInt(new(big.Int).SetUint64(val), 0), true
	}
	return decimal.Decimal{}, false
}
