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
	"fmt"
	"strconv"
	"sync"
	"time"

	"kpiflow/connectors/base"
	"kpiflow/shared/logger"
)

const (
	// DefaultMaxOpenConns is sized for a handful of concurrent tool calls
	DefaultMaxOpenConns = 5
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 2
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultConnMaxIdleTime is the default maximum idle time for connections
	DefaultConnMaxIdleTime = 5 * time.Minute
	// pingTimeout bounds the connectivity check when the pool is opened
	pingTimeout = 10 * time.Second
)

// Pool is the process-wide connection pool handle. The underlying *sql.DB
// is opened on first use and kept for the life of the process; a failed
// open is retried on the next call. Pool is safe for concurrent use.
type Pool struct {
	config  *base.ConnectorConfig
	dialect base.Dialect
	open    func(driverName, dsn string) (*sql.DB, error)
	onOpen  func(*sql.DB)
	logger  *logger.Logger

	mu sync.Mutex
	db *sql.DB
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithOpenFunc replaces sql.Open, mainly for tests.
func WithOpenFunc(open func(driverName, dsn string) (*sql.DB, error)) PoolOption {
	return func(p *Pool) {
		p.open = open
	}
}

// WithOnOpen registers a callback run once the pool has connected, e.g. to
// register a stats collector.
func WithOnOpen(fn func(*sql.DB)) PoolOption {
	return func(p *Pool) {
		p.onOpen = fn
	}
}

// NewPool creates a lazily opened pool for config using dialect.
func NewPool(config *base.ConnectorConfig, dialect base.Dialect, opts ...PoolOption) *Pool {
	if config == nil {
		config = &base.ConnectorConfig{}
	}
	p := &Pool{
		config:  config,
		dialect: dialect,
		open:    sql.Open,
		logger:  logger.New("pool"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewPoolFromDB wraps an already opened database, e.g. a sqlmock instance.
func NewPoolFromDB(db *sql.DB, dialect base.Dialect, name string) *Pool {
	p := NewPool(&base.ConnectorConfig{Name: name, Type: dialect.Name()}, dialect)
	p.db = db
	return p
}

// Name returns the connector name
func (p *Pool) Name() string {
	if p.config.Name == "" {
		return p.dialect.Name()
	}
	return p.config.Name
}

// Dialect returns the dialect of the pooled store
func (p *Pool) Dialect() base.Dialect {
	return p.dialect
}

// DB returns the pooled database, opening it on first use.
func (p *Pool) DB(ctx context.Context) (*sql.DB, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.db != nil {
		return p.db, nil
	}

	dsn, err := p.dialect.DSN(p.config)
	if err != nil {
		return nil, base.NewConnectorError(p.Name(), "Connect", "failed to build DSN", err)
	}

	db, err := p.open(p.dialect.DriverName(), dsn)
	if err != nil {
		return nil, base.NewConnectorError(p.Name(), "Connect", "failed to open connection", err)
	}

	maxOpen := orDefault(p.config.MaxOpenConns, DefaultMaxOpenConns)
	maxIdle := orDefault(p.config.MaxIdleConns, DefaultMaxIdleConns)
	if maxIdle > maxOpen {
		maxIdle = maxOpen
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(orDefaultDuration(p.config.ConnMaxLifetime, DefaultConnMaxLifetime))
	db.SetConnMaxIdleTime(orDefaultDuration(p.config.ConnMaxIdleTime, DefaultConnMaxIdleTime))

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, base.NewConnectorError(p.Name(), "Connect", "failed to ping database", err)
	}

	p.db = db
	if p.onOpen != nil {
		p.onOpen(db)
	}
	p.logger.Info("", "", "connection pool opened", map[string]interface{}{
		"connector": p.Name(),
		"type":      p.dialect.Name(),
		"max_open":  maxOpen,
		"max_idle":  maxIdle,
	})
	return db, nil
}

// HealthCheck pings the store. An unopened pool is opened first.
func (p *Pool) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	start := time.Now()
	db, err := p.DB(ctx)
	if err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   time.Since(start),
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}

	if err := db.PingContext(ctx); err != nil {
		return &base.HealthStatus{
			Healthy:   false,
			Latency:   time.Since(start),
			Timestamp: time.Now(),
			Error:     err.Error(),
		}, nil
	}

	stats := db.Stats()
	return &base.HealthStatus{
		Healthy: true,
		Latency: time.Since(start),
		Details: map[string]string{
			"type":             p.dialect.Name(),
			"open_connections": strconv.Itoa(stats.OpenConnections),
			"in_use":           strconv.Itoa(stats.InUse),
			"idle":             strconv.Itoa(stats.Idle),
			"wait_count":       strconv.FormatInt(stats.WaitCount, 10),
			"wait_duration":    stats.WaitDuration.String(),
		},
		Timestamp: time.Now(),
	}, nil
}

// Close closes the pool if it was opened. It exists for tests and CLI use;
// the service keeps the pool until the process exits.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.db == nil {
		return nil
	}
	err := p.db.Close()
	p.db = nil
	if err != nil {
		return base.NewConnectorError(p.Name(), "Disconnect", "failed to close connection", err)
	}
	return nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func orDefaultDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func (p *Pool) String() string {
	return fmt.Sprintf("%s(%s)", p.Name(), p.dialect.Name())
}
