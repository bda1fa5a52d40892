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

package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Settings is the process configuration, read once at startup from the
// environment (optionally seeded from a .env file).
type Settings struct {
	Port        string `envconfig:"PORT" default:"8080"`
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Relational store
	DBDriver          string        `envconfig:"DB_DRIVER" default:"mysql"`
	DBHost            string        `envconfig:"DB_HOST" default:"localhost"`
	DBPort            int           `envconfig:"DB_PORT"`
	DBName            string        `envconfig:"DB_NAME"`
	DBUser            string        `envconfig:"DB_USER"`
	DBPassword        string        `envconfig:"DB_PASSWORD"`
	DBDSN             string        `envconfig:"DB_DSN"`
	DBSecretARN       string        `envconfig:"DB_SECRET_ARN"`
	DBTLS             string        `envconfig:"DB_TLS"`
	DBMaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"5"`
	DBMaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"2"`
	DBConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`

	// Statement execution
	QueryTimeoutDefault time.Duration `envconfig:"QUERY_TIMEOUT_DEFAULT" default:"30s"`
	QueryTimeoutMax     time.Duration `envconfig:"QUERY_TIMEOUT_MAX" default:"300s"`
	SQLGuardMode        string        `envconfig:"SQLGUARD_MODE" default:"strict"`

	// KPI catalog
	KPICatalog    string `envconfig:"KPI_CATALOG"`
	KPIMaxBuckets int    `envconfig:"KPI_MAX_BUCKETS" default:"400"`

	// Request admission
	RedisURL           string `envconfig:"REDIS_URL"`
	RateLimitPerMinute int    `envconfig:"RATE_LIMIT_PER_MINUTE" default:"120"`
	ToolAuthSecret     string `envconfig:"TOOL_AUTH_SECRET"`

	// External search
	BrowserServiceURL string        `envconfig:"BROWSER_SERVICE_URL"`
	BrowserTimeout    time.Duration `envconfig:"BROWSER_TIMEOUT" default:"60s"`

	// AWS
	AWSRegion          string `envconfig:"AWS_REGION" default:"us-west-2"`
	AWSEndpointURL     string `envconfig:"AWS_ENDPOINT_URL"`
	AWSAccessKeyID     string `envconfig:"AWS_ACCESS_KEY_ID"`
	AWSSecretAccessKey string `envconfig:"AWS_SECRET_ACCESS_KEY"`
}

// LoadSettings loads envFiles (".env" when none are given) into the
// environment without overriding variables that are already set, then
// decodes and validates Settings. Missing env files are ignored.
func LoadSettings(envFiles ...string) (*Settings, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", file, err)
		}
	}

	var s Settings
	if err := envconfig.Process("", &s); err != nil {
		return nil, fmt.Errorf("invalid environment: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (s *Settings) Validate() error {
	s.DBDriver = strings.ToLower(strings.TrimSpace(s.DBDriver))
	switch s.DBDriver {
	case "mysql", "postgres":
	case "postgresql":
		s.DBDriver = "postgres"
	default:
		return fmt.Errorf("DB_DRIVER must be mysql or postgres, got %q", s.DBDriver)
	}

	if s.QueryTimeoutDefault <= 0 || s.QueryTimeoutMax <= 0 {
		return fmt.Errorf("query timeouts must be positive")
	}
	if s.QueryTimeoutDefault > s.QueryTimeoutMax {
		return fmt.Errorf("QUERY_TIMEOUT_DEFAULT (%s) exceeds QUERY_TIMEOUT_MAX (%s)",
			s.QueryTimeoutDefault, s.QueryTimeoutMax)
	}

	switch strings.ToLower(s.SQLGuardMode) {
	case "", "basic", "strict":
	default:
		return fmt.Errorf("SQLGUARD_MODE must be basic or strict, got %q", s.SQLGuardMode)
	}

	if s.KPIMaxBuckets <= 0 {
		return fmt.Errorf("KPI_MAX_BUCKETS must be positive")
	}
	if s.DBMaxOpenConns <= 0 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be positive")
	}
	if s.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must not be negative")
	}
	if _, err := strconv.Atoi(s.Port); err != nil {
		return fmt.Errorf("PORT must be numeric, got %q", s.Port)
	}
	return nil
}

// IsDevelopment reports whether the service runs in a development environment.
func (s *Settings) IsDevelopment() bool {
	switch strings.ToLower(s.Environment) {
	case "development", "dev", "local":
		return true
	}
	return false
}

// AWS returns the AWS client options derived from the settings.
func (s *Settings) AWS() AWSOptions {
	return AWSOptions{
		Region:          s.AWSRegion,
		Endpoint:        s.AWSEndpointURL,
		AccessKeyID:     s.AWSAccessKeyID,
		SecretAccessKey: s.AWSSecretAccessKey,
	}
}
