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

// Package quality audits query results before they are returned to the
// calling agent. Findings never fail a request; they are attached to the
// response so the agent can qualify its answer.
package quality

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"kpiflow/agent/format"
	"kpiflow/connectors/base"
)

const (
	// NullThreshold is the fraction of nulls above which a column is reported.
	NullThreshold = 0.10
	// OutlierFactor flags values whose magnitude exceeds this multiple of
	// the column mean.
	OutlierFactor = 10
	// maxOutliersPerColumn bounds the warnings emitted for a single column.
	maxOutliersPerColumn = 5
)

// NoDataWarning is reported for an empty result.
const NoDataWarning = "no data returned"

// Report is the audit attached to every KPI response.
type Report struct {
	Valid    bool     `json:"valid"`
	Issues   []string `json:"issues"`
	Warnings []string `json:"warnings"`
	RowCount int      `json:"row_count"`
}

// Audit inspects every numeric column of result. Issues make the report
// invalid; warnings do not.
func Audit(result *base.QueryResult) Report {
	report := Report{Valid: true, Issues: []string{}, Warnings: []string{}}
	if result == nil || len(result.Rows) == 0 {
		report.Valid = false
		report.Warnings = append(report.Warnings, NoDataWarning)
		return report
	}
	report.RowCount = len(result.Rows)

	for _, col := range columnsOf(result) {
		values, nulls, numeric := collect(result.Rows, col)
		if !numeric {
			continue
		}

		if nulls > 0 {
			fraction := float64(nulls) / float64(len(result.Rows))
			if fraction > NullThreshold {
				pct := decimal.NewFromInt(int64(nulls * 100)).
					Div(decimal.NewFromInt(int64(len(result.Rows)))).
					Round(1)
				report.Issues = append(report.Issues,
					fmt.Sprintf("Column '%s' has %s%% null values", col, pct.String()))
			}
		}

		report.Warnings = append(report.Warnings, outliers(col, values)...)
	}

	report.Valid = len(report.Issues) == 0
	return report
}

type cell struct {
	row   int
	value decimal.Decimal
}

// collect returns the non-null values of col and the null count. A column
// is numeric when every non-null value parses as a number.
func collect(rows []base.Row, col string) ([]cell, int, bool) {
	var values []cell
	nulls := 0
	for i, row := range rows {
		v, ok := row[col]
		if !ok || v == nil {
			nulls++
			continue
		}
		d, ok := format.Decimal(v)
		if !ok {
			return nil, 0, false
		}
		values = append(values, cell{row: i + 1, value: d})
	}
	return values, nulls, true
}

func outliers(col string, values []cell) []string {
	if len(values) == 0 {
		return nil
	}
	sum := decimal.Zero
	for _, c := range values {
		sum = sum.Add(c.value)
	}
	mean := sum.Div(decimal.NewFromInt(int64(len(values))))
	if mean.IsZero() {
		return nil
	}
	limit := mean.Abs().Mul(decimal.NewFromInt(OutlierFactor))

	var warnings []string
	extra := 0
	for _, c := range values {
		if c.value.Abs().LessThanOrEqual(limit) {
			continue
		}
		if len(warnings) == maxOutliersPerColumn {
			extra++
			continue
		}
		warnings = append(warnings, fmt.Sprintf(
			"Row %d: column '%s' value %s exceeds %dx the column mean (%s); potential outlier",
			c.row, col, c.value.String(), OutlierFactor, mean.StringFixed(2)))
	}
	if extra > 0 {
		warnings = append(warnings, fmt.Sprintf("Column '%s' has %d more potential outliers", col, extra))
	}
	return warnings
}

// columnsOf returns the result columns in select order, or the sorted row
// keys when the result carries no column list.
func columnsOf(result *base.QueryResult) []string {
	if len(result.Columns) > 0 {
		return result.Columns
	}
	seen := make(map[string]struct{})
	for _, row := range result.Rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	cols := make([]string, 0, len(seen))
	for k := range seen {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}
