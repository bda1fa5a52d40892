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

package querybuilder

import (
	"fmt"
	"strings"

	"kpiflow/agent/catalog"
	"kpiflow/connectors/base"
	"kpiflow/shared/toolerr"
)

// DefaultMaxBuckets bounds the number of periods one query may return.
const DefaultMaxBuckets = 400

// PeriodColumn is the alias of the bucketed date expression.
const PeriodColumn = "period"

const maxGroupFilterLen = 128

// Request describes one aggregation query.
type Request struct {
	Metrics     *catalog.Resolved
	Range       DateRange
	Frequency   base.Frequency
	GroupFilter string
	TenantID    string
}

// Builder turns resolved metrics into a parameterized aggregation
// statement for one dialect.
type Builder struct {
	dialect    base.Dialect
	maxBuckets int
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxBuckets overrides DefaultMaxBuckets.
func WithMaxBuckets(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxBuckets = n
		}
	}
}

// New creates a builder for dialect.
func New(dialect base.Dialect, opts ...Option) *Builder {
	b := &Builder{dialect: dialect, maxBuckets: DefaultMaxBuckets}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build returns
//
//	SELECT <period expr> AS period, <group>, AGG(col) AS col, ...
//	FROM <table>
//	WHERE <tenant> = ? AND <date> BETWEEN ? AND ? [AND <group> = ?]
//	GROUP BY period, <group>
//	ORDER BY period, <group>
//
// Currency and number columns are summed, percentages averaged. Only
// catalog identifiers reach the SQL text; every value is bound.
func (b *Builder) Build(req Request) (*base.Statement, error) {
	if req.Metrics == nil || len(req.Metrics.Metrics) == 0 {
		return nil, toolerr.New(toolerr.KindInvalidMetric, "Build", "No KPI IDs provided", nil)
	}
	if err := base.ValidateTenantID(req.TenantID); err != nil {
		return nil, toolerr.InvalidRequest("Build", err.Error())
	}
	if req.Range.Start.IsZero() || req.Range.End.IsZero() || req.Range.Start.After(req.Range.End) {
		return nil, toolerr.New(toolerr.KindInvalidDateRange, "Build", "A valid date range is required.", nil)
	}
	if len(req.GroupFilter) > maxGroupFilterLen {
		return nil, toolerr.InvalidRequest("Build", "Group filter is too long.")
	}

	freq := req.Frequency
	if freq == "" {
		freq = base.FrequencyMonthly
	}
	if n := Buckets(req.Range, freq); n > b.maxBuckets {
		return nil, toolerr.New(toolerr.KindInvalidDateRange, "Build", fmt.Sprintf(
			"Date range %s spans %d %s periods; the maximum is %d. Narrow the date range or use a coarser frequency.",
			req.Range, n, freq, b.maxBuckets), nil)
	}

	ds := req.Metrics.Dataset()
	selects := []string{
		b.dialect.TruncatePeriod(ds.DateColumn, freq) + " AS " + PeriodColumn,
		ds.GroupColumn,
	}
	for _, col := range req.Metrics.Columns() {
		unit, _ := req.Metrics.UnitOf(col)
		selects = append(selects, aggregate(unit)+"("+col+") AS "+col)
	}

	var args []interface{}
	bind := func(v interface{}) string {
		args = append(args, v)
		return b.dialect.Placeholder(len(args))
	}

	where := []string{
		ds.TenantColumn + " = " + bind(req.TenantID),
		ds.DateColumn + " BETWEEN " + bind(req.Range.StartDate()) + " AND " + bind(req.Range.EndDate()),
	}
	if req.GroupFilter != "" {
		where = append(where, ds.GroupColumn+" = "+bind(req.GroupFilter))
	}

	var sb strings.Builder
	sb.WriteString("SELECT ")
	sb.WriteString(strings.Join(selects, ", "))
	sb.WriteString(" FROM ")
	sb.WriteString(ds.Table)
	sb.WriteString(" WHERE ")
	sb.WriteString(strings.Join(where, " AND "))
	sb.WriteString(" GROUP BY " + PeriodColumn + ", " + ds.GroupColumn)
	sb.WriteString(" ORDER BY " + PeriodColumn + ", " + ds.GroupColumn)

	return &base.Statement{SQL: sb.String(), Args: args}, nil
}

func aggregate(unit catalog.Unit) string {
	if unit == catalog.UnitPercentage {
		return "AVG"
	}
	return "SUM"
}
