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
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiflow/agent/catalog"
	"kpiflow/connectors/base"
)

func TestValue(t *testing.T) {
	tests := []struct {
		name  string
		value interface{}
		unit  catalog.Unit
		want  interface{}
	}{
		{"currency json number", json.Number("1234567.891"), catalog.UnitCurrency, "$1,234,567.89"},
		{"currency negative", -1234.5, catalog.UnitCurrency, "-$1,234.50"},
		{"currency small", json.Number("0.5"), catalog.UnitCurrency, "$0.50"},
		{"currency rounds half away from zero", "10.005", catalog.UnitCurrency, "$10.01"},
		{"currency rounds to zero", -0.001, catalog.UnitCurrency, "$0.00"},
		{"currency int", int64(1000), catalog.UnitCurrency, "$1,000.00"},
		{"percentage fraction", json.Number("0.0523"), catalog.UnitPercentage, "5.23%"},
		{"percentage negative", -0.1, catalog.UnitPercentage, "-10.00%"},
		{"percentage bytes", []byte("0.5"), catalog.UnitPercentage, "50.00%"},
		{"number integer", int64(1234567), catalog.UnitNumber, "1,234,567"},
		{"number keeps decimals", json.Number("1234.5"), catalog.UnitNumber, "1,234.5"},
		{"number negative", -98765, catalog.UnitNumber, "-98,765"},
		{"number small", 42, catalog.UnitNumber, "42"},
		{"null stays null", nil, catalog.UnitCurrency, nil},
		{"text passes through", "n/a", catalog.UnitCurrency, "n/a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Value(tt.value, tt.unit))
		})
	}
}

func TestPeriod(t *testing.T) {
	jan8 := time.Date(2024, time.January, 8, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		value interface{}
		freq  base.Frequency
		want  interface{}
	}{
		{"monthly string", "2024-01-01", base.FrequencyMonthly, "January 2024"},
		{"monthly time", jan8, base.FrequencyMonthly, "January 2024"},
		{"weekly", jan8, base.FrequencyWeekly, "Week of January 8, 2024"},
		{"daily", "2024-01-08", base.FrequencyDaily, "January 8, 2024"},
		{"daily bytes", []byte("2024-02-29"), base.FrequencyDaily, "February 29, 2024"},
		{"datetime string", "2024-03-01 00:00:00", base.FrequencyMonthly, "March 2024"},
		{"rfc3339", "2024-03-01T00:00:00Z", base.FrequencyMonthly, "March 2024"},
		{"year month", "2024-03", base.FrequencyMonthly, "March 2024"},
		{"not a date", "Q1", base.FrequencyMonthly, "Q1"},
		{"null", nil, base.FrequencyMonthly, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Period(tt.value, tt.freq))
		})
	}
}

func TestDecimal(t *testing.T) {
	d, ok := Decimal(json.Number("12.50"))
	require.True(t, ok)
	assert.True(t, d.Equal(decimal.RequireFromString("12.5")))

	d, ok = Decimal(uint64(18446744073709551615))
	require.True(t, ok)
	assert.Equal(t, "18446744073709551615", d.String())

	_, ok = Decimal("abc")
	assert.False(t, ok)

	_, ok = Decimal(time.Now())
	assert.False(t, ok)
}

func TestFormatAddsSiblings(t *testing.T) {
	registry, err := catalog.Default()
	require.NoError(t, err)
	metrics, err := registry.Resolve([]int{17870})
	require.NoError(t, err)

	result := &base.QueryResult{
		Columns: []string{"period", "parent_chain_group", "cy_revenue", "py_revenue", "revenue_variance", "revenue_variance_percent"},
		Rows: []base.Row{
			{
				"period":                   "2024-01-01",
				"parent_chain_group":       "Customer A",
				"cy_revenue":               json.Number("1234567.89"),
				"py_revenue":               json.Number("1000000"),
				"revenue_variance":         json.Number("234567.89"),
				"revenue_variance_percent": json.Number("0.2346"),
			},
			{
				"period":                   "2024-02-01",
				"parent_chain_group":       "Customer A",
				"cy_revenue":               nil,
				"py_revenue":               json.Number("900"),
				"revenue_variance":         nil,
				"revenue_variance_percent": nil,
			},
		},
		RowCount: 2,
	}

	rows := New(base.FrequencyMonthly).Format(result, metrics)
	require.Len(t, rows, 2)

	first := rows[0]
	assert.Equal(t, json.Number("1234567.89"), first["cy_revenue"], "raw value must be preserved")
	assert.Equal(t, "$1,234,567.89", first["cy_revenue_formatted"])
	assert.Equal(t, "$1,000,000.00", first["py_revenue_formatted"])
	assert.Equal(t, "23.46%", first["revenue_variance_percent_formatted"])
	assert.Equal(t, "January 2024", first["period_formatted"])
	assert.NotContains(t, first, "parent_chain_group_formatted")

	second := rows[1]
	v, ok := second["cy_revenue_formatted"]
	assert.True(t, ok)
	assert.Nil(t, v)
	assert.Equal(t, "February 2024", second["period_formatted"])

	assert.NotContains(t, result.Rows[0], "cy_revenue_formatted", "input rows must not be mutated")
}

func TestFormatSkipsMissingColumns(t *testing.T) {
	registry, err := catalog.Default()
	require.NoError(t, err)
	metrics, err := registry.Resolve([]int{17862})
	require.NoError(t, err)

	result := &base.QueryResult{Rows: []base.Row{{"period": "2024-01-08", "store_count": int64(1500)}}}
	rows := New(base.FrequencyWeekly).Format(result, metrics)

	require.Len(t, rows, 1)
	assert.Equal(t, "1,500", rows[0]["store_count_formatted"])
	assert.Equal(t, "Week of January 8, 2024", rows[0]["period_formatted"])
}

func TestFormatNilResult(t *testing.T) {
	rows := New("").Format(nil, nil)
	assert.NotNil(t, rows)
	assert.Empty(t, rows)
}
