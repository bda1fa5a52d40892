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

package logger

import (
	"os"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel represents the severity of a log entry
type LogLevel string

const (
	DEBUG LogLevel = "DEBUG"
	INFO  LogLevel = "INFO"
	WARN  LogLevel = "WARN"
	ERROR LogLevel = "ERROR"
)

var base atomic.Pointer[zap.Logger]

// Init configures the process-wide zap backend. env "production" selects the
// JSON encoder, anything else the console encoder. Unknown levels fall back
// to info.
func Init(level, env string) error {
	var cfg zap.Config
	if env == "production" {
		cfg = zap.NewProductionConfig()
		cfg.EncoderConfig.TimeKey = "timestamp"
		cfg.EncoderConfig.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	} else {
		cfg = zap.NewDevelopmentConfig()
		cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	var zapLevel zapcore.Level
	if err := zapLevel.UnmarshalText([]byte(level)); err != nil {
		zapLevel = zapcore.InfoLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(zapLevel)

	zl, err := cfg.Build(zap.AddCallerSkip(2))
	if err != nil {
		return err
	}
	SetBackend(zl)
	return nil
}

// SetBackend replaces the zap backend. Tests use it with an observer core.
func SetBackend(zl *zap.Logger) {
	base.Store(zl)
}

// Sync flushes buffered entries of the backend.
func Sync() {
	if zl := base.Load(); zl != nil {
		_ = zl.Sync()
	}
}

func backend() *zap.Logger {
	if zl := base.Load(); zl != nil {
		return zl
	}
	zl, err := zap.NewProduction(zap.AddCallerSkip(2))
	if err != nil {
		zl = zap.NewNop()
	}
	base.CompareAndSwap(nil, zl)
	return base.Load()
}

// Logger provides structured logging with multi-tenant support.
// ClientID is the tenant (org_id) the entry belongs to.
type Logger struct {
	Component  string
	InstanceID string
	Container  string
}

// New creates a new Logger for the specified component
func New(component string) *Logger {
	instanceID := os.Getenv("INSTANCE_ID")
	if instanceID == "" {
		instanceID = "unknown"
	}

	container, err := os.Hostname()
	if err != nil {
		container = "unknown"
	}

	return &Logger{
		Component:  component,
		InstanceID: instanceID,
		Container:  container,
	}
}

// Log writes a structured entry through the zap backend
func (l *Logger) Log(level LogLevel, clientID, requestID, message string, fields map[string]interface{}) {
	zfields := make([]zap.Field, 0, len(fields)+5)
	zfields = append(zfields,
		zap.String("component", l.Component),
		zap.String("instance_id", l.InstanceID),
		zap.String("container", l.Container),
		zap.String("client_id", clientID),
	)
	if requestID != "" {
		zfields = append(zfields, zap.String("request_id", requestID))
	}
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}

	zl := backend()
	switch level {
	case DEBUG:
		zl.Debug(message, zfields...)
	case WARN:
		zl.Warn(message, zfields...)
	case ERROR:
		zl.Error(message, zfields...)
	default:
		zl.Info(message, zfields...)
	}
}

// Info logs an informational message
func (l *Logger) Info(clientID, requestID, message string, fields map[string]interface{}) {
	l.Log(INFO, clientID, requestID, message, fields)
}

// Error logs an error message
func (l *Logger) Error(clientID, requestID, message string, fields map[string]interface{}) {
	l.Log(ERROR, clientID, requestID, message, fields)
}

// Warn logs a warning message
func (l *Logger) Warn(clientID, requestID, message string, fields map[string]interface{}) {
	l.Log(WARN, clientID, requestID, message, fields)
}

// Debug logs a debug message
func (l *Logger) Debug(clientID, requestID, message string, fields map[string]interface{}) {
	l.Log(DEBUG, clientID, requestID, message, fields)
}

// InfoWithDuration logs an info message with duration field
func (l *Logger) InfoWithDuration(clientID, requestID, message string, duration time.Duration, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["duration_ms"] = float64(duration.Microseconds()) / 1000
	l.Info(clientID, requestID, message, fields)
}

// ErrorWithCode logs an error with status code
func (l *Logger) ErrorWithCode(clientID, requestID, message string, statusCode int, err error, fields map[string]interface{}) {
	if fields == nil {
		fields = make(map[string]interface{})
	}
	fields["status_code"] = statusCode
	if err != nil {
		fields["error"] = err.Error()
	}
	l.Error(clientID, requestID, message, fields)
}
