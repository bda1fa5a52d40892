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

package postgres

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"kpiflow/connectors/base"
)

const (
	// DefaultPort is used when the config does not name one
	DefaultPort = 5432

	// codeQueryCanceled is raised when statement_timeout fires.
	codeQueryCanceled = pq.ErrorCode("57014")
)

// Dialect implements base.Dialect for PostgreSQL 12+.
type Dialect struct{}

// NewDialect returns the PostgreSQL dialect.
func NewDialect() *Dialect {
	return &Dialect{}
}

// Name returns the store type
func (d *Dialect) Name() string { return "postgres" }

// DriverName returns the database/sql driver name
func (d *Dialect) DriverName() string { return "postgres" }

// DSN returns the ConnectionURL unchanged when set, otherwise builds a
// postgres:// URL from host/port/database options and credentials.
func (d *Dialect) DSN(config *base.ConnectorConfig) (string, error) {
	if config == nil {
		return "", fmt.Errorf("connector config is required")
	}
	if config.ConnectionURL != "" {
		if _, err := pq.ParseURL(config.ConnectionURL); err != nil && strings.Contains(config.ConnectionURL, "://") {
			return "", fmt.Errorf("invalid PostgreSQL URL: %w", err)
		}
		return config.ConnectionURL, nil
	}

	database := config.StringOption("database", "")
	if database == "" {
		return "", fmt.Errorf("database name is required")
	}

	u := url.URL{
		Scheme: "postgres",
		Host: net.JoinHostPort(
			config.StringOption("host", "localhost"),
			strconv.Itoa(config.IntOption("port", DefaultPort)),
		),
		Path: "/" + database,
	}
	if user := config.Credentials["username"]; user != "" {
		u.User = url.UserPassword(user, config.Credentials["password"])
	}

	q := url.Values{}
	q.Set("sslmode", config.StringOption("sslmode", "require"))
	q.Set("connect_timeout", "10")
	u.RawQuery = q.Encode()

	return u.String(), nil
}

// Placeholder returns $n
func (d *Dialect) Placeholder(n int) string { return "$" + strconv.Itoa(n) }

// QuoteIdent wraps a validated identifier in double quotes
func (d *Dialect) QuoteIdent(name string) string {
	return pq.QuoteIdentifier(name)
}

// StatementTimeout bounds statement execution for the session in milliseconds
func (d *Dialect) StatementTimeout(timeout time.Duration) string {
	return fmt.Sprintf("SET statement_timeout = %d", timeout.Milliseconds())
}

// IsTimeout reports query_canceled (57014)
func (d *Dialect) IsTimeout(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == codeQueryCanceled
}

// TruncatePeriod buckets a date/timestamp column with date_trunc. Weeks
// start on Monday (ISO).
func (d *Dialect) TruncatePeriod(column string, freq base.Frequency) string {
	unit := "month"
	switch freq {
	case base.FrequencyDaily:
		unit = "day"
	case base.FrequencyWeekly:
		unit = "week"
	}
	return "date_trunc('" + unit + "', " + d.QuoteIdent(column) + ")::date"
}
