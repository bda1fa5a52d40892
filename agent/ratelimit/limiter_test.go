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

package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"

	"kpiflow/shared/toolerr"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newRedisLimiter(t *testing.T, limit int) (*Limiter, *miniredis.Miniredis, *fakeClock) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := Connect(context.Background(), fmt.Sprintf("redis://%s", mr.Addr()))
	if err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	clock := &fakeClock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	l := New(client, limit)
	l.now = clock.now
	t.Cleanup(func() { _ = l.Close() })
	return l, mr, clock
}

func TestConnect(t *testing.T) {
	tests := []struct {
		name        string
		url         string
		errContains string
	}{
		{name: "invalid URL format", url: "invalid-url", errContains: "failed to parse"},
		{name: "invalid protocol", url: "http://localhost:6379", errContains: "failed to parse"},
		{name: "unreachable server", url: "redis://127.0.0.1:1", errContains: "failed to connect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, err := Connect(context.Background(), tt.url)
			if err == nil {
				_ = client.Close()
				t.Fatalf("expected error containing %q, got nil", tt.errContains)
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error containing %q, got %q", tt.errContains, err.Error())
			}
		})
	}
}

func TestAllowRedis_ExceedLimit(t *testing.T) {
	l, _, _ := newRedisLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "acme"); err != nil {
			t.Fatalf("request %d should be allowed: %v", i+1, err)
		}
	}

	err := l.Allow(ctx, "acme")
	if err == nil {
		t.Fatal("expected rate limit error, got nil")
	}
	if !errors.Is(err, toolerr.ErrRateLimited) {
		t.Errorf("expected ErrRateLimited, got %v", err)
	}
	if got := toolerr.Message(err); got != "Rate limit exceeded: 4 requests/minute (limit: 3)." {
		t.Errorf("unexpected message %q", got)
	}

	if err := l.Allow(ctx, "globex"); err != nil {
		t.Errorf("other tenants keep their own budget: %v", err)
	}
}

func TestAllowRedis_SlidingWindow(t *testing.T) {
	l, _, clock := newRedisLimiter(t, 3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := l.Allow(ctx, "acme"); err != nil {
			t.Fatalf("request %d should be allowed: %v", i+1, err)
		}
	}

	clock.advance(30 * time.Second)
	if err := l.Allow(ctx, "acme"); err == nil {
		t.Fatal("expected rejection while the first requests are inside the window")
	}

	clock.advance(31 * time.Second)
	if err := l.Allow(ctx, "acme"); err != nil {
		t.Errorf("requests older than a minute should have left the window: %v", err)
	}

	count, _, err := l.Status(ctx, "acme")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected 2 requests in window, got %d", count)
	}
}

func TestAllowRedis_FailsOpen(t *testing.T) {
	l, mr, _ := newRedisLimiter(t, 1)
	mr.Close()

	for i := 0; i < 3; i++ {
		if err := l.Allow(context.Background(), "acme"); err != nil {
			t.Errorf("limiter should fail open when Redis is down: %v", err)
		}
	}
}

func TestStatusAndResetRedis(t *testing.T) {
	l, mr, clock := newRedisLimiter(t, 10)
	ctx := context.Background()
	start := clock.t

	_ = l.Allow(ctx, "acme")
	clock.advance(10 * time.Second)
	_ = l.Allow(ctx, "acme")

	count, reset, err := l.Status(ctx, "acme")
	if err != nil {
		t.Fatalf("Status failed: %v", err)
	}
	if count != 2 {
		t.Errorf("expected count 2, got %d", count)
	}
	if want := start.Add(Window); reset.Sub(want).Abs() > time.Millisecond {
		t.Errorf("expected reset near %v, got %v", want, reset)
	}

	if err := l.Reset(ctx, "acme"); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if mr.Exists(keyPrefix + "acme") {
		t.Error("expected key to be deleted")
	}
	count, _, _ = l.Status(ctx, "acme")
	if count != 0 {
		t.Errorf("expected count 0 after reset, got %d", count)
	}
}

func TestRedisKeyExpires(t *testing.T) {
	l, mr, _ := newRedisLimiter(t, 10)
	_ = l.Allow(context.Background(), "acme")

	if ttl := mr.TTL(keyPrefix + "acme"); ttl != 2*Window {
		t.Errorf("expected TTL %v, got %v", 2*Window, ttl)
	}
}

func TestAllowLocal(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	l := New(nil, 2)
	l.now = clock.now
	ctx := context.Background()

	if l.Distributed() {
		t.Error("limiter without Redis should not be distributed")
	}
	for i := 0; i < 2; i++ {
		if err := l.Allow(ctx, "acme"); err != nil {
			t.Fatalf("request %d should be allowed: %v", i+1, err)
		}
	}
	if err := l.Allow(ctx, "acme"); toolerr.KindOf(err) != toolerr.KindRateLimited {
		t.Errorf("expected rate limited, got %v", err)
	}

	count, _, _ := l.Status(ctx, "acme")
	if count != 3 {
		t.Errorf("expected count 3, got %d", count)
	}

	clock.advance(Window + time.Second)
	if err := l.Allow(ctx, "acme"); err != nil {
		t.Errorf("window should have reset: %v", err)
	}

	_ = l.Reset(ctx, "acme")
	count, _, _ = l.Status(ctx, "acme")
	if count != 0 {
		t.Errorf("expected count 0 after reset, got %d", count)
	}
}

func TestAllowLocal_EvictsExpiredWindows(t *testing.T) {
	clock := &fakeClock{t: time.Date(2024, 1, 15, 10, 0, 0, 0, time.UTC)}
	l := New(nil, 5)
	l.now = clock.now
	ctx := context.Background()

	for i := 0; i < 500; i++ {
		if err := l.Allow(ctx, fmt.Sprintf("tenant-%d", i)); err != nil {
			t.Fatalf("first request of tenant-%d should be allowed: %v", i, err)
		}
	}
	if got := len(l.local); got != 500 {
		t.Fatalf("expected 500 live windows, got %d", got)
	}

	clock.advance(Window + time.Second)
	if err := l.Allow(ctx, "acme"); err != nil {
		t.Fatalf("request should be allowed: %v", err)
	}
	if got := len(l.local); got != 1 {
		t.Errorf("expired windows should be dropped, %d left", got)
	}

	// Live windows survive a sweep and keep their count.
	clock.advance(Window / 2)
	_ = l.Allow(ctx, "globex")
	clock.advance(Window/2 + time.Second)
	_ = l.Allow(ctx, "initech")
	if _, ok := l.local["acme"]; ok {
		t.Error("acme window expired and should be gone")
	}
	count, _, _ := l.Status(ctx, "globex")
	if count != 1 {
		t.Errorf("globex window should survive the sweep, count = %d", count)
	}
}

func TestAllowDisabled(t *testing.T) {
	l := New(nil, 0)
	for i := 0; i < 100; i++ {
		if err := l.Allow(context.Background(), "acme"); err != nil {
			t.Fatalf("a zero limit disables limiting: %v", err)
		}
	}
}

func TestHealthCheck(t *testing.T) {
	status, err := New(nil, 5).HealthCheck(context.Background())
	if err != nil || !status.Healthy || status.Details["backend"] != "memory" {
		t.Errorf("unexpected memory health: %+v, %v", status, err)
	}

	l, mr, _ := newRedisLimiter(t, 5)
	status, _ = l.HealthCheck(context.Background())
	if !status.Healthy || status.Details["backend"] != "redis" {
		t.Errorf("unexpected redis health: %+v", status)
	}

	mr.Close()
	status, _ = l.HealthCheck(context.Background())
	if status.Healthy || status.Error == "" {
		t.Errorf("expected unhealthy status after Redis shutdown: %+v", status)
	}
}

func TestNewWithClient(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	l := New(client, 5)
	defer l.Close()

	if !l.Distributed() || l.Limit() != 5 {
		t.Errorf("unexpected limiter: distributed=%v limit=%d", l.Distributed(), l.Limit())
	}
}
