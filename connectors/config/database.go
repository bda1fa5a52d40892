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
	"context"
	"fmt"
	"strconv"

	"kpiflow/connectors/base"
)

// StoreName is the connector name of the KPI store.
const StoreName = "kpi-store"

// DatabaseConfig assembles the store connector config from the settings.
// When DB_SECRET_ARN is set the secret's fields (username, password, host,
// port, dbname/database) override the plain environment values.
func (s *Settings) DatabaseConfig(ctx context.Context, secrets SecretsManager) (*base.ConnectorConfig, error) {
	cfg := &base.ConnectorConfig{
		Name:          StoreName,
		Type:          s.DBDriver,
		ConnectionURL: s.DBDSN,
		Credentials: map[string]string{
			"username": s.DBUser,
			"password": s.DBPassword,
		},
		Options: map[string]interface{}{
			"host":     s.DBHost,
			"database": s.DBName,
		},
		Timeout:         s.QueryTimeoutDefault,
		MaxOpenConns:    s.DBMaxOpenConns,
		MaxIdleConns:    s.DBMaxIdleConns,
		ConnMaxLifetime: s.DBConnMaxLifetime,
	}
	if s.DBPort > 0 {
		cfg.Options["port"] = s.DBPort
	}
	if s.DBTLS != "" {
		// go-sql-driver reads "tls", lib/pq reads "sslmode"
		cfg.Options["tls"] = s.DBTLS
		cfg.Options["sslmode"] = s.DBTLS
	}

	if s.DBSecretARN == "" {
		return cfg, nil
	}
	if secrets == nil {
		return nil, fmt.Errorf("DB_SECRET_ARN is set but no secrets manager is configured")
	}

	secret, err := secrets.GetSecret(ctx, s.DBSecretARN)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve database credentials: %w", err)
	}
	applySecret(cfg, secret)
	return cfg, nil
}

func applySecret(cfg *base.ConnectorConfig, secret map[string]string) {
	if v := secret["username"]; v != "" {
		cfg.Credentials["username"] = v
	}
	if v := secret["password"]; v != "" {
		cfg.Credentials["password"] = v
	}
	if v := secret["host"]; v != "" {
		cfg.Options["host"] = v
	}
	if v := secret["port"]; v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Options["port"] = port
		}
	}
	for _, key := range []string{"dbname", "database"} {
		if v := secret[key]; v != "" {
			cfg.Options["database"] = v
			break
		}
	}
}
