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
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"kpiflow/shared/logger"
)

// SecretsManager resolves a secret reference to its key/value fields.
type SecretsManager interface {
	GetSecret(ctx context.Context, ref string) (map[string]string, error)
}

var secretsLog = logger.New("secrets")

// AWSSecretsManager implements SecretsManager using AWS Secrets Manager
type AWSSecretsManager struct {
	client *secretsmanager.Client
	cache  map[string]*secretCacheEntry
	mu     sync.RWMutex
	ttl    time.Duration
	now    func() time.Time
}

type secretCacheEntry struct {
	value     map[string]string
	expiresAt time.Time
}

// AWSSecretsManagerOptions holds options for creating an AWSSecretsManager
type AWSSecretsManagerOptions struct {
	AWS      AWSOptions
	CacheTTL time.Duration
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(ctx context.Context, opts AWSSecretsManagerOptions) (*AWSSecretsManager, error) {
	cfg, err := LoadAWSConfig(ctx, opts.AWS)
	if err != nil {
		return nil, err
	}

	var clientOpts []func(*secretsmanager.Options)
	if opts.AWS.Endpoint != "" {
		clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
			o.BaseEndpoint = aws.String(opts.AWS.Endpoint)
		})
	}

	ttl := opts.CacheTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &AWSSecretsManager{
		client: secretsmanager.NewFromConfig(cfg, clientOpts...),
		cache:  make(map[string]*secretCacheEntry),
		ttl:    ttl,
		now:    time.Now,
	}, nil
}

// GetSecret retrieves a secret from AWS Secrets Manager. JSON object secrets
// are returned field by field; any other string is returned under "value".
func (s *AWSSecretsManager) GetSecret(ctx context.Context, secretARN string) (map[string]string, error) {
	s.mu.RLock()
	entry, exists := s.cache[secretARN]
	s.mu.RUnlock()

	if exists && s.now().Before(entry.expiresAt) {
		return entry.value, nil
	}

	result, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(secretARN),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get secret %s: %w", maskARN(secretARN), err)
	}
	if result.SecretString == nil {
		return nil, fmt.Errorf("secret %s has no string value", maskARN(secretARN))
	}

	values, err := parseSecret(*result.SecretString)
	if err != nil {
		return nil, fmt.Errorf("secret %s: %w", maskARN(secretARN), err)
	}

	s.mu.Lock()
	s.cache[secretARN] = &secretCacheEntry{
		value:     values,
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Unlock()

	secretsLog.Info("", "", "secret retrieved", map[string]interface{}{
		"secret": maskARN(secretARN),
		"fields": len(values),
	})
	return values, nil
}

// InvalidateSecret removes a secret from the cache
func (s *AWSSecretsManager) InvalidateSecret(secretARN string) {
	s.mu.Lock()
	delete(s.cache, secretARN)
	s.mu.Unlock()
}

// parseSecret accepts RDS style JSON secrets, whose port is a number.
func parseSecret(raw string) (map[string]string, error) {
	var fields map[string]interface{}
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return map[string]string{"value": raw}, nil
	}

	values := make(map[string]string, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case string:
			values[k] = val
		case float64:
			values[k] = fmt.Sprintf("%.0f", val)
		case bool:
			values[k] = fmt.Sprintf("%t", val)
		case nil:
		default:
			return nil, fmt.Errorf("field %q has unsupported type %T", k, v)
		}
	}
	return values, nil
}

// maskARN masks the secret ARN for logging (shows only last 8 characters)
func maskARN(arn string) string {
	if len(arn) <= 12 {
		return "***"
	}
	return "..." + arn[len(arn)-8:]
}

// LocalSecretsManager keeps secrets in memory. Used by tests and the CLI.
type LocalSecretsManager struct {
	secrets map[string]map[string]string
	mu      sync.RWMutex
}

// NewLocalSecretsManager creates an empty in-memory secrets manager
func NewLocalSecretsManager() *LocalSecretsManager {
	return &LocalSecretsManager{
		secrets: make(map[string]map[string]string),
	}
}

// GetSecret retrieves a secret from local storage
func (s *LocalSecretsManager) GetSecret(ctx context.Context, ref string) (map[string]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if secret, exists := s.secrets[ref]; exists {
		return secret, nil
	}
	return nil, fmt.Errorf("secret %s not found in local secrets manager", maskARN(ref))
}

// SetSecret stores a secret locally
func (s *LocalSecretsManager) SetSecret(ref string, value map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secrets[ref] = value
}

// EnvSecretsManager reads secrets from environment variables. The reference
// is a variable prefix: "KPI_DB" resolves KPI_DB_USERNAME, KPI_DB_PASSWORD,
// KPI_DB_HOST, KPI_DB_PORT and KPI_DB_DATABASE.
type EnvSecretsManager struct{}

// NewEnvSecretsManager creates a secrets manager that reads from environment variables
func NewEnvSecretsManager() *EnvSecretsManager {
	return &EnvSecretsManager{}
}

var envSecretFields = map[string]string{
	"USERNAME": "username",
	"PASSWORD": "password",
	"HOST":     "host",
	"PORT":     "port",
	"DATABASE": "database",
	"TOKEN":    "token",
}

// GetSecret retrieves credentials from environment variables
func (s *EnvSecretsManager) GetSecret(ctx context.Context, prefix string) (map[string]string, error) {
	values := make(map[string]string)
	for field, key := range envSecretFields {
		if value := os.Getenv(prefix + "_" + field); value != "" {
			values[key] = value
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no credentials found for prefix %s", prefix)
	}
	return values, nil
}

// NewSecretsManager picks the implementation for ref: an ARN uses AWS
// Secrets Manager, anything else is treated as an environment prefix.
func NewSecretsManager(ctx context.Context, ref string, opts AWSOptions) (SecretsManager, error) {
	if ref == "" {
		return nil, nil
	}
	if strings.HasPrefix(ref, "arn:") {
		sm, err := NewAWSSecretsManager(ctx, AWSSecretsManagerOptions{AWS: opts})
		if err != nil {
			return nil, err
		}
		return sm, nil
	}
	return NewEnvSecretsManager(), nil
}
