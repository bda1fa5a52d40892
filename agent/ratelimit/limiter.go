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

// Package ratelimit bounds tool calls per tenant.
//
// With Redis configured the window is a sliding minute kept in a sorted set
// per tenant, so every replica shares one budget. Without Redis each process
// keeps a fixed one-minute window in memory. Redis failures fail open.
package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"kpiflow/connectors/base"
	"kpiflow/shared/logger"
	"kpiflow/shared/toolerr"
)

const (
	// Window is the rate limit period.
	Window = time.Minute

	keyPrefix   = "kpiflow:ratelimit:"
	pingTimeout = 5 * time.Second
)

// Connect parses a redis:// URL and verifies the server answers.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

type localWindow struct {
	count int
	reset time.Time
}

// Limiter enforces a per-tenant requests-per-minute budget. A limit of zero
// or less disables limiting.
type Limiter struct {
	client *redis.Client
	limit  int
	now    func() time.Time
	logger *logger.Logger

	mu    sync.Mutex
	local map[string]*localWindow
	swept time.Time
}

// New returns a limiter backed by client, or by process memory when client
// is nil.
func New(client *redis.Client, limitPerMinute int) *Limiter {
	return &Limiter{
		client: client,
		limit:  limitPerMinute,
		now:    time.Now,
		logger: logger.New("ratelimit"),
		local:  make(map[string]*localWindow),
	}
}

// Limit returns the configured requests per minute.
func (l *Limiter) Limit() int { return l.limit }

// Distributed reports whether the budget is shared through Redis.
func (l *Limiter) Distributed() bool { return l.client != nil }

// Allow records a request for tenantID and returns a KindRateLimited error
// when the tenant already used its budget for the current window.
func (l *Limiter) Allow(ctx context.Context, tenantID string) error {
	if l.limit <= 0 {
		return nil
	}
	if l.client == nil {
		return l.allowLocal(tenantID)
	}

	now := l.now()
	key := keyPrefix + tenantID

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(now.Add(-Window).UnixNano(), 10))
	card := pipe.ZCard(ctx, key)
	pipe.ZAdd(ctx, key, &redis.Z{
		Score:  float64(now.UnixNano()),
		Member: uuid.NewString(),
	})
	pipe.Expire(ctx, key, 2*Window)

	if _, err := pipe.Exec(ctx); err != nil {
		l.logger.Warn(tenantID, "", "Redis rate limit check failed, failing open", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}

	if count := card.Val(); count >= int64(l.limit) {
		return exceeded(count+1, l.limit)
	}
	return nil
}

func (l *Limiter) allowLocal(tenantID string) error {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	w, ok := l.local[tenantID]
	if !ok || now.After(w.reset) {
		l.sweepLocal(now)
		l.local[tenantID] = &localWindow{count: 1, reset: now.Add(Window)}
		return nil
	}
	w.count++
	if w.count > l.limit {
		return exceeded(int64(w.count), l.limit)
	}
	return nil
}

// sweepLocal drops expired windows, at most once per Window. The caller
// holds l.mu.
func (l *Limiter) sweepLocal(now time.Time) {
	if now.Sub(l.swept) < Window {
		return
	}
	for id, w := range l.local {
		if now.After(w.reset) {
			delete(l.local, id)
		}
	}
	l.swept = now
}

func exceeded(count int64, limit int) error {
	return toolerr.New(toolerr.KindRateLimited, "RateLimit",
		fmt.Sprintf("Rate limit exceeded: %d requests/minute (limit: %d).", count, limit), nil)
}

// Status returns the requests counted in the current window and when the
// oldest of them leaves it.
func (l *Limiter) Status(ctx context.Context, tenantID string) (int, time.Time, error) {
	now := l.now()
	if l.client == nil {
		l.mu.Lock()
		defer l.mu.Unlock()
		w, ok := l.local[tenantID]
		if !ok || now.After(w.reset) {
			return 0, now, nil
		}
		return w.count, w.reset, nil
	}

	key := keyPrefix + tenantID
	entries, err := l.client.ZRangeByScoreWithScores(ctx, key, &redis.ZRangeBy{
		Min: strconv.FormatInt(now.Add(-Window).UnixNano(), 10),
		Max: "+inf",
	}).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("failed to get rate limit status: %w", err)
	}
	if len(entries) == 0 {
		return 0, now, nil
	}
	oldest := time.Unix(0, int64(entries[0].Score))
	return len(entries), oldest.Add(Window), nil
}

// Reset clears the window of tenantID.
func (l *Limiter) Reset(ctx context.Context, tenantID string) error {
	if l.client == nil {
		l.mu.Lock()
		delete(l.local, tenantID)
		l.mu.Unlock()
		return nil
	}
	if err := l.client.Del(ctx, keyPrefix+tenantID).Err(); err != nil {
		return fmt.Errorf("failed to flush rate limit data: %w", err)
	}
	return nil
}

// HealthCheck pings Redis. An in-memory limiter is always healthy.
func (l *Limiter) HealthCheck(ctx context.Context) (*base.HealthStatus, error) {
	status := &base.HealthStatus{
		Healthy:   true,
		Details:   map[string]string{"backend": "memory"},
		Timestamp: time.Now(),
	}
	if l.client == nil {
		return status, nil
	}

	status.Details["backend"] = "redis"
	start := time.Now()
	err := l.client.Ping(ctx).Err()
	status.Latency = time.Since(start)
	if err != nil {
		status.Healthy = false
		status.Error = err.Error()
	}
	return status, nil
}

// Close releases the Redis connection pool.
func (l *Limiter) Close() error {
	if l.client != nil {
		return l.client.Close()
	}
	return nil
}
