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

package agent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/cors"

	"kpiflow/agent/catalog"
	"kpiflow/agent/executor"
	"kpiflow/agent/querybuilder"
	"kpiflow/agent/ratelimit"
	"kpiflow/agent/sqlguard"
	"kpiflow/connectors/base"
	"kpiflow/connectors/browser"
	"kpiflow/connectors/config"
	"kpiflow/connectors/mysql"
	"kpiflow/connectors/postgres"
	s3store "kpiflow/connectors/s3"
	"kpiflow/shared/logger"
)

const shutdownTimeout = 15 * time.Second

// DialectFor returns the SQL dialect for a DB_DRIVER value.
func DialectFor(driver string) (base.Dialect, error) {
	switch strings.ToLower(driver) {
	case "mysql", "":
		return mysql.NewDialect(), nil
	case "postgres", "postgresql":
		return postgres.NewDialect(), nil
	}
	return nil, fmt.Errorf("unsupported DB_DRIVER %q", driver)
}

// App is the assembled tool service.
type App struct {
	Settings *config.Settings
	Service  *Service
	Server   *Server
	Pool     *executor.Pool
	Limiter  *ratelimit.Limiter

	logger *logger.Logger
}

// NewApp wires every component from settings. The database pool is opened
// lazily by the first query, so a store that is down at startup only makes
// /health report degraded.
func NewApp(ctx context.Context, settings *config.Settings) (*App, error) {
	log := logger.New("agent")

	dialect, err := DialectFor(settings.DBDriver)
	if err != nil {
		return nil, err
	}

	secrets, err := config.NewSecretsManager(ctx, settings.DBSecretARN, settings.AWS())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize secrets manager: %w", err)
	}
	dbConfig, err := settings.DatabaseConfig(ctx, secrets)
	if err != nil {
		return nil, err
	}
	pool := executor.NewPool(dbConfig, dialect, executor.WithOnOpen(registerDBStats))
	exec := executor.New(pool,
		executor.WithDefaultTimeout(settings.QueryTimeoutDefault),
		executor.WithMaxTimeout(settings.QueryTimeoutMax),
	)

	registry, err := LoadCatalog(ctx, settings)
	if err != nil {
		return nil, fmt.Errorf("failed to load KPI catalog: %w", err)
	}

	mode, err := sqlguard.ParseMode(settings.SQLGuardMode)
	if err != nil {
		return nil, err
	}
	guard := sqlguard.New(
		sqlguard.WithMode(mode),
		sqlguard.WithTenantColumn(registry.Dataset().TenantColumn),
	)

	var search *browser.Client
	if settings.BrowserServiceURL != "" {
		search, err = browser.NewClient(settings.BrowserServiceURL, settings.BrowserTimeout)
		if err != nil {
			return nil, err
		}
	}

	service, err := NewService(Deps{
		Registry: registry,
		Guard:    guard,
		Executor: exec,
		Builder:  querybuilder.New(dialect, querybuilder.WithMaxBuckets(settings.KPIMaxBuckets)),
		Browser:  search,
	})
	if err != nil {
		return nil, err
	}

	limiter := ratelimit.New(connectRedis(ctx, settings.RedisURL, log), settings.RateLimitPerMinute)

	auth := NewTokenAuth(settings.ToolAuthSecret)
	if auth == nil && !settings.IsDevelopment() {
		log.Warn("", "", "TOOL_AUTH_SECRET is not set; tool endpoints are unauthenticated", nil)
	}

	opts := []ServerOption{
		WithLimiter(limiter),
		WithTokenAuth(auth),
		WithHealthCheck("database", pool),
		WithOptionalHealthCheck("rate_limiter", limiter),
	}
	if search != nil {
		opts = append(opts, WithOptionalHealthCheck("browser", search))
	}

	log.Info("", "", "Tool service initialized", map[string]interface{}{
		"driver":      dialect.Name(),
		"guard_mode":  string(mode),
		"kpi_count":   registry.Len(),
		"rate_limit":  settings.RateLimitPerMinute,
		"distributed": limiter.Distributed(),
		"search":      search != nil,
	})

	return &App{
		Settings: settings,
		Service:  service,
		Server:   NewServer(service, opts...),
		Pool:     pool,
		Limiter:  limiter,
		logger:   log,
	}, nil
}

// LoadCatalog loads the KPI catalog named by KPI_CATALOG; s3:// locations
// are read with the configured AWS credentials.
func LoadCatalog(ctx context.Context, settings *config.Settings) (*catalog.Registry, error) {
	var objects catalog.ObjectReader
	if strings.HasPrefix(settings.KPICatalog, "s3://") {
		reader, err := s3store.NewReader(ctx, s3store.Options{AWS: settings.AWS()})
		if err != nil {
			return nil, err
		}
		objects = reader
	}
	return catalog.Load(ctx, settings.KPICatalog, objects)
}

// connectRedis returns nil when Redis is not configured or unreachable;
// the limiter then counts in memory.
func connectRedis(ctx context.Context, url string, log *logger.Logger) *redis.Client {
	if url == "" {
		return nil
	}
	client, err := ratelimit.Connect(ctx, url)
	if err != nil {
		log.Warn("", "", "Redis unavailable, using in-memory rate limiting", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	return client
}

// registerDBStats exports database/sql pool statistics once the pool opens.
func registerDBStats(db *sql.DB) {
	err := prometheus.Register(collectors.NewDBStatsCollector(db, config.StoreName))
	var already prometheus.AlreadyRegisteredError
	if err != nil && !errors.As(err, &already) {
		logger.New("agent").Warn("", "", "Failed to register DB stats collector", map[string]interface{}{
			"error": err.Error(),
		})
	}
}

// Handler returns the router wrapped in CORS.
func (a *App) Handler() http.Handler {
	router := mux.NewRouter()
	a.Server.Routes(router)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Authorization", "Content-Type", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: false,
	})
	return c.Handler(router)
}

// Serve listens on PORT until ctx is cancelled, then drains in-flight
// requests and releases the pool and the Redis client.
func (a *App) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              ":" + a.Settings.Port,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      a.Settings.QueryTimeoutMax + 30*time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("", "", "KPI tool service starting", map[string]interface{}{"port": a.Settings.Port})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		a.logger.Info("", "", "Shutting down", nil)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		serveErr = srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		serveErr = err
	}

	a.Close()
	return serveErr
}

// Close releases the pool and the rate limiter.
func (a *App) Close() {
	if err := a.Pool.Close(); err != nil {
		a.logger.Warn("", "", "Failed to close database pool", map[string]interface{}{"error": err.Error()})
	}
	if err := a.Limiter.Close(); err != nil {
		a.logger.Warn("", "", "Failed to close Redis client", map[string]interface{}{"error": err.Error()})
	}
}

// Run is the entry point of the agent binary: it loads settings, starts
// the service and blocks until SIGINT or SIGTERM.
func Run() error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	if err := logger.Init(settings.LogLevel, settings.Environment); err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := NewApp(ctx, settings)
	if err != nil {
		return err
	}
	return app.Serve(ctx)
}
