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

package quality

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiflow/connectors/base"
)

func revenueRows(values ...interface{}) *base.QueryResult {
	rows := make([]base.Row, 0, len(values))
	for _, v := range values {
		rows = append(rows, base.Row{
			"period":             "2024-01-01",
			"parent_chain_group": "Customer A",
			"revenue":            v,
		})
	}
	return &base.QueryResult{
		Columns:  []string{"period", "parent_chain_group", "revenue"},
		Rows:     rows,
		RowCount: len(rows),
	}
}

func TestAuditEmptyResult(t *testing.T) {
	for _, result := range []*base.QueryResult{nil, {Rows: []base.Row{}}} {
		report := Audit(result)
		assert.False(t, report.Valid)
		assert.Equal(t, []string{NoDataWarning}, report.Warnings)
		assert.Empty(t, report.Issues)
		assert.Equal(t, 0, report.RowCount)
	}
}

func TestAuditNullColumn(t *testing.T) {
	result := revenueRows(
		json.Number("100"), nil, json.Number("110"), nil, json.Number("95"),
		nil, json.Number("105"), json.Number("98"), json.Number("102"), json.Number("101"),
	)

	report := Audit(result)

	assert.False(t, report.Valid)
	assert.Equal(t, 10, report.RowCount)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "Column 'revenue' has 30% null values", report.Issues[0])
	assert.Empty(t, report.Warnings)
}

func TestAuditNullFractionAtThreshold(t *testing.T) {
	values := make([]interface{}, 0, 10)
	for i := 0; i < 9; i++ {
		values = append(values, int64(100))
	}
	values = append(values, nil)

	report := Audit(revenueRows(values...))

	assert.True(t, report.Valid, "exactly 10% nulls is tolerated")
	assert.Empty(t, report.Issues)
}

func TestAuditRoundsNullPercentage(t *testing.T) {
	report := Audit(revenueRows(nil, int64(1), int64(2)))
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "Column 'revenue' has 33.3% null values", report.Issues[0])
}

func TestAuditOutlier(t *testing.T) {
	values := make([]interface{}, 0, 21)
	for i := 0; i < 20; i++ {
		values = append(values, json.Number("100"))
	}
	values = append(values, json.Number("100000"))

	report := Audit(revenueRows(values...))

	assert.True(t, report.Valid)
	assert.Empty(t, report.Issues)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "Row 21")
	assert.Contains(t, report.Warnings[0], "'revenue'")
	assert.Contains(t, report.Warnings[0], "100000")
}

func TestAuditOutlierCap(t *testing.T) {
	values := make([]interface{}, 0, 208)
	for i := 0; i < 200; i++ {
		values = append(values, 1.0)
	}
	for i := 0; i < 8; i++ {
		values = append(values, 1000.0)
	}

	report := Audit(revenueRows(values...))

	require.Len(t, report.Warnings, maxOutliersPerColumn+1)
	assert.Equal(t, "Column 'revenue' has 3 more potential outliers", report.Warnings[maxOutliersPerColumn])
}

func TestAuditZeroMeanSkipsOutliers(t *testing.T) {
	report := Audit(revenueRows(int64(-500), int64(500), int64(0)))
	assert.True(t, report.Valid)
	assert.Empty(t, report.Warnings)
}

func TestAuditIgnoresTextColumns(t *testing.T) {
	result := &base.QueryResult{
		Rows: []base.Row{
			{"name": "a", "note": nil},
			{"name": "b", "note": nil},
		},
	}
	report := Audit(result)
	assert.Equal(t, 2, report.RowCount)
	assert.Empty(t, report.Warnings)
	// An all-null column is numeric by default and reported.
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "Column 'note' has 100% null values", report.Issues[0])
}
