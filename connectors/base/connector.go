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

package base

import (
	"context"
	"time"
)

// Frequency is the time-bucketing granularity of a KPI query.
type Frequency string

const (
	FrequencyDaily   Frequency = "daily"
	FrequencyWeekly  Frequency = "weekly"
	FrequencyMonthly Frequency = "monthly"
)

// Dialect isolates the SQL and driver differences between the supported
// relational stores. Implementations live in the mysql and postgres packages.
type Dialect interface {
	// Name is the store type (mysql, postgres).
	Name() string
	// DriverName is the database/sql driver name passed to sql.Open.
	DriverName() string
	// DSN builds a data source name from the connector config.
	DSN(config *ConnectorConfig) (string, error)
	// Placeholder returns the bind placeholder for the n-th (1-based) argument.
	Placeholder(n int) string
	// QuoteIdent quotes a validated identifier.
	QuoteIdent(name string) string
	// StatementTimeout returns the session statement that bounds server-side
	// execution time of subsequent statements on the same connection.
	StatementTimeout(timeout time.Duration) string
	// IsTimeout reports whether err is the server cancelling a statement that
	// exceeded its execution budget.
	IsTimeout(err error) bool
	// TruncatePeriod returns an expression bucketing column to freq.
	TruncatePeriod(column string, freq Frequency) string
}

// ConnectorConfig holds the configuration for the relational store
type ConnectorConfig struct {
	Name            string                 `json:"name"`           // Unique name for this connector
	Type            string                 `json:"type"`           // Type: mysql, postgres
	ConnectionURL   string                 `json:"connection_url"` // Connection string (DSN)
	Credentials     map[string]string      `json:"credentials"`    // username, password
	Options         map[string]interface{} `json:"options"`        // host, port, database, tls, params
	Timeout         time.Duration          `json:"timeout"`        // Default statement timeout
	MaxOpenConns    int                    `json:"max_open_conns"`
	MaxIdleConns    int                    `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration          `json:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration          `json:"conn_max_idle_time"`
}

// StringOption returns a string option or def when unset.
func (c *ConnectorConfig) StringOption(key, def string) string {
	if c == nil || c.Options == nil {
		return def
	}
	if v, ok := c.Options[key].(string); ok && v != "" {
		return v
	}
	return def
}

// IntOption returns an integer option or def when unset. JSON and YAML
// decoders produce float64 and int respectively; both are accepted.
func (c *ConnectorConfig) IntOption(key string, def int) int {
	if c == nil || c.Options == nil {
		return def
	}
	switch v := c.Options[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return def
}

// Statement is a parameterized SQL statement.
type Statement struct {
	SQL  string        `json:"sql"`
	Args []interface{} `json:"args,omitempty"`
}

// Row is one result row keyed by column name.
type Row map[string]interface{}

// QueryResult contains the results of a read-only statement
type QueryResult struct {
	Columns       []string      `json:"columns"`         // Column names in select order
	Rows          []Row         `json:"rows"`            // Result rows (key-value maps)
	RowCount      int           `json:"row_count"`       // Number of rows returned
	ElapsedMillis int64         `json:"elapsed_ms"`      // Wall-clock execution time
	Duration      time.Duration `json:"-"`               // Same as ElapsedMillis, full precision
	Connector     string        `json:"connector"`       // Store that executed the statement
	Error         string        `json:"error,omitempty"` // Set when the outcome is a failure
}

// HealthStatus represents the health of a connector
type HealthStatus struct {
	Healthy   bool              `json:"healthy"`   // Overall health status
	Latency   time.Duration     `json:"latency"`   // Connection latency
	Details   map[string]string `json:"details"`   // Additional diagnostic info
	Timestamp time.Time         `json:"timestamp"` // When health check was performed
	Error     string            `json:"error"`     // Error message if unhealthy
}

// HealthChecker is implemented by anything the /health endpoint can check.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (*HealthStatus, error)
}

// ConnectorError represents errors specific to connector operations
type ConnectorError struct {
	ConnectorName string
	Operation     string
	Message       string
	Cause         error
}

func (e *ConnectorError) Error() string {
	if e.Cause != nil {
		return e.ConnectorName + "." + e.Operation + ": " + e.Message + " (cause: " + e.Cause.Error() + ")"
	}
	return e.ConnectorName + "." + e.Operation + ": " + e.Message
}

func (e *ConnectorError) Unwrap() error {
	return e.Cause
}

// NewConnectorError creates a new ConnectorError
func NewConnectorError(connectorName, operation, message string, cause error) *ConnectorError {
	return &ConnectorError{
		ConnectorName: connectorName,
		Operation:     operation,
		Message:       message,
		Cause:         cause,
	}
}
