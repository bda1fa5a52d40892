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

package executor

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"

	"kpiflow/agent/sqlguard"
	"kpiflow/connectors/base"
	"kpiflow/shared/logger"
	"kpiflow/shared/toolerr"
)

const (
	// DefaultTimeout applies when the caller passes no timeout
	DefaultTimeout = 30 * time.Second
	// MaxTimeout is the upper clamp for caller supplied timeouts
	MaxTimeout = 300 * time.Second
)

var promQueryDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "kpiflow_query_duration_seconds",
		Help:    "Statement execution time by connector and outcome",
		Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
	},
	[]string{"connector", "outcome"},
)

func init() {
	prometheus.MustRegister(promQueryDuration)
}

// Executor runs approved statements against a Pool.
type Executor struct {
	pool           *Pool
	defaultTimeout time.Duration
	maxTimeout     time.Duration
	logger         *logger.Logger
}

// Option configures an Executor.
type Option func(*Executor)

// WithDefaultTimeout sets the timeout used when Execute receives zero.
func WithDefaultTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.defaultTimeout = d
		}
	}
}

// WithMaxTimeout sets the upper clamp for timeouts.
func WithMaxTimeout(d time.Duration) Option {
	return func(e *Executor) {
		if d > 0 {
			e.maxTimeout = d
		}
	}
}

// New creates an executor over pool.
func New(pool *Pool, opts ...Option) *Executor {
	e := &Executor{
		pool:           pool,
		defaultTimeout: DefaultTimeout,
		maxTimeout:     MaxTimeout,
		logger:         logger.New("executor"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.defaultTimeout > e.maxTimeout {
		e.defaultTimeout = e.maxTimeout
	}
	return e
}

// Pool returns the pool the executor runs against.
func (e *Executor) Pool() *Pool {
	return e.pool
}

// EffectiveTimeout returns the timeout Execute will apply for requested.
func (e *Executor) EffectiveTimeout(requested time.Duration) time.Duration {
	if requested <= 0 {
		return e.defaultTimeout
	}
	if requested > e.maxTimeout {
		return e.maxTimeout
	}
	return requested
}

// Execute runs an approved statement on a connection reserved for this call
// and returns every row. The statement is bounded both server side and by
// the context deadline. On timeout the connection is discarded instead of
// returned to the pool. Failures are toolerr errors of kind Forbidden,
// Timeout or Database; nothing is retried.
func (e *Executor) Execute(ctx context.Context, approved *sqlguard.Approved, timeout time.Duration) (*base.QueryResult, error) {
	if approved == nil {
		return nil, toolerr.Forbidden("Execute", "Statement was not approved for execution.")
	}

	timeout = e.EffectiveTimeout(timeout)
	stmt := approved.Statement()
	start := time.Now()

	db, err := e.pool.DB(ctx)
	if err != nil {
		e.observe("error", start)
		return nil, toolerr.New(toolerr.KindDatabase, "Execute", "Database connection failed: "+err.Error(), err)
	}

	queryCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := db.Conn(queryCtx)
	if err != nil {
		e.observe("error", start)
		return nil, e.classify(queryCtx, err, timeout, approved.TenantID())
	}

	discard := false
	defer func() {
		if discard {
			// Returning ErrBadConn from Raw makes database/sql close the
			// driver connection instead of pooling it.
			_ = conn.Raw(func(interface{}) error { return driver.ErrBadConn })
		}
		_ = conn.Close()
	}()

	if setTimeout := e.pool.Dialect().StatementTimeout(timeout); setTimeout != "" {
		if _, err := conn.ExecContext(queryCtx, setTimeout); err != nil {
			discard = true
			e.observe("error", start)
			return nil, e.classify(queryCtx, err, timeout, approved.TenantID())
		}
	}

	rows, err := conn.QueryContext(queryCtx, stmt.SQL, stmt.Args...)
	if err != nil {
		discard = isTimeout(queryCtx, err, e.pool.Dialect())
		e.observe(outcome(discard), start)
		return nil, e.classify(queryCtx, err, timeout, approved.TenantID())
	}
	defer rows.Close()

	result, err := scanRows(rows)
	if err != nil {
		discard = isTimeout(queryCtx, err, e.pool.Dialect())
		e.observe(outcome(discard), start)
		return nil, e.classify(queryCtx, err, timeout, approved.TenantID())
	}

	result.Duration = time.Since(start)
	result.ElapsedMillis = result.Duration.Milliseconds()
	result.Connector = e.pool.Name()
	e.observe("success", start)

	e.logger.Debug(approved.TenantID(), "", "statement executed", map[string]interface{}{
		"connector":   result.Connector,
		"row_count":   result.RowCount,
		"duration_ms": result.ElapsedMillis,
	})
	return result, nil
}

func (e *Executor) classify(ctx context.Context, err error, timeout time.Duration, tenantID string) error {
	if isTimeout(ctx, err, e.pool.Dialect()) {
		e.logger.Warn(tenantID, "", "statement timed out", map[string]interface{}{
			"connector":  e.pool.Name(),
			"timeout_ms": timeout.Milliseconds(),
		})
		return toolerr.New(toolerr.KindTimeout, "Execute",
			fmt.Sprintf("Query execution timeout after %s. Try narrowing your date range or filters.", formatTimeout(timeout)), err)
	}

	e.logger.Error(tenantID, "", "statement failed", map[string]interface{}{
		"connector": e.pool.Name(),
		"error":     err.Error(),
	})
	return toolerr.New(toolerr.KindDatabase, "Execute", "Database error: "+err.Error(), err)
}

func (e *Executor) observe(outcome string, start time.Time) {
	promQueryDuration.WithLabelValues(e.pool.Name(), outcome).Observe(time.Since(start).Seconds())
}

func isTimeout(ctx context.Context, err error, dialect base.Dialect) bool {
	return errors.Is(ctx.Err(), context.DeadlineExceeded) ||
		errors.Is(err, context.DeadlineExceeded) ||
		dialect.IsTimeout(err)
}

func outcome(timedOut bool) string {
	if timedOut {
		return "timeout"
	}
	return "error"
}

func formatTimeout(d time.Duration) string {
	if d%time.Second == 0 {
		secs := int(d / time.Second)
		if secs == 1 {
			return "1 second"
		}
		return fmt.Sprintf("%d seconds", secs)
	}
	return d.String()
}

func scanRows(rows *sql.Rows) (*base.QueryResult, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to get columns: %w", err)
	}

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("failed to get column types: %w", err)
	}

	result := &base.QueryResult{Columns: columns, Rows: make([]base.Row, 0)}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		pointers := make([]interface{}, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}

		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(base.Row, len(columns))
		for i, col := range columns {
			row[col] = convertValue(values[i], typeName(colTypes, i))
		}
		result.Rows = append(result.Rows, row)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	result.RowCount = len(result.Rows)
	return result, nil
}

func typeName(colTypes []*sql.ColumnType, i int) string {
	if i >= len(colTypes) || colTypes[i] == nil {
		return ""
	}
	return strings.ToUpper(colTypes[i].DatabaseTypeName())
}

// convertValue turns driver values into JSON friendly ones. Exact numerics
// stay exact as json.Number.
func convertValue(val interface{}, dbType string) interface{} {
	switch v := val.(type) {
	case nil:
		return nil
	case []byte:
		return convertBytes(v, dbType)
	case string:
		if isDecimalType(dbType) && isNumber(v) {
			return json.Number(v)
		}
		return v
	default:
		return v
	}
}

func convertBytes(v []byte, dbType string) interface{} {
	if isDecimalType(dbType) {
		if n := json.Number(v); isNumber(string(n)) {
			return n
		}
	}
	if utf8.Valid(v) {
		return string(v)
	}
	return v
}

func isDecimalType(dbType string) bool {
	switch dbType {
	case "DECIMAL", "NUMERIC", "NEWDECIMAL":
		return true
	}
	return false
}

func isNumber(s string) bool {
	if s == "" {
		return false
	}
	var f json.Number
	return json.Unmarshal([]byte(s), &f) == nil
}
