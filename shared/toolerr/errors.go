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

// Package toolerr defines the error kinds returned by the data-access tools.
//
// Every failure that reaches a tool boundary is classified into a Kind so the
// HTTP layer can map it to a status code and the calling agent can decide
// whether to retry, reformulate the request or surface the problem.
package toolerr

import (
	"errors"
	"net/http"
)

// Kind classifies a tool failure.
type Kind string

const (
	// KindForbidden means the statement was rejected by the SQL guard.
	KindForbidden Kind = "forbidden"
	// KindInvalidMetric means a KPI id is unknown or malformed.
	KindInvalidMetric Kind = "invalid_metric"
	// KindInvalidDateRange means the date range is unparsable, inverted or too wide.
	KindInvalidDateRange Kind = "invalid_date_range"
	// KindTimeout means the statement exceeded its execution budget.
	KindTimeout Kind = "timeout"
	// KindDatabase covers driver and connectivity faults.
	KindDatabase Kind = "database"
	// KindEmptyResult is informational. It is reported as a data quality
	// warning and never fails a request.
	KindEmptyResult Kind = "empty_result"
	// KindInvalidRequest means a required parameter is missing or malformed.
	KindInvalidRequest Kind = "invalid_request"
	// KindRateLimited means the tenant exceeded its request budget.
	KindRateLimited Kind = "rate_limited"
	// KindUnauthorized means the service token is missing or invalid.
	KindUnauthorized Kind = "unauthorized"
	// KindUpstream means an external collaborator (browser service) failed.
	KindUpstream Kind = "upstream"
	// KindInternal is the fallback for unclassified errors.
	KindInternal Kind = "internal"
)

// Sentinel errors, one per kind, for use with errors.Is.
var (
	ErrForbidden        = errors.New("forbidden")
	ErrInvalidMetric    = errors.New("invalid metric")
	ErrInvalidDateRange = errors.New("invalid date range")
	ErrTimeout          = errors.New("timeout")
	ErrDatabase         = errors.New("database error")
	ErrEmptyResult      = errors.New("empty result")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrRateLimited      = errors.New("rate limited")
	ErrUnauthorized     = errors.New("unauthorized")
	ErrUpstream         = errors.New("upstream error")
)

var sentinels = map[Kind]error{
	KindForbidden:        ErrForbidden,
	KindInvalidMetric:    ErrInvalidMetric,
	KindInvalidDateRange: ErrInvalidDateRange,
	KindTimeout:          ErrTimeout,
	KindDatabase:         ErrDatabase,
	KindEmptyResult:      ErrEmptyResult,
	KindInvalidRequest:   ErrInvalidRequest,
	KindRateLimited:      ErrRateLimited,
	KindUnauthorized:     ErrUnauthorized,
	KindUpstream:         ErrUpstream,
}

// Error is a classified tool failure. Message is safe to show to the caller;
// Cause carries the underlying error for logs and errors.As.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Cause != nil {
		return msg + " (cause: " + e.Cause.Error() + ")"
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target is the sentinel for this error's kind.
func (e *Error) Is(target error) bool {
	s, ok := sentinels[e.Kind]
	return ok && s == target
}

// New creates a classified error.
func New(kind Kind, op, message string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Cause: cause}
}

// Forbidden is shorthand for a KindForbidden error.
func Forbidden(op, message string) *Error {
	return New(KindForbidden, op, message, nil)
}

// InvalidRequest is shorthand for a KindInvalidRequest error.
func InvalidRequest(op, message string) *Error {
	return New(KindInvalidRequest, op, message, nil)
}

// KindOf returns the kind of err, or KindInternal when err is not classified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	for kind, s := range sentinels {
		if errors.Is(err, s) {
			return kind
		}
	}
	return KindInternal
}

// Message returns the caller-facing message of err. Unclassified errors are
// reported with their full text.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var te *Error
	if errors.As(err, &te) && te.Message != "" {
		return te.Message
	}
	return err.Error()
}

// HTTPStatus maps a kind to the status code used in tool responses.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidMetric, KindInvalidDateRange, KindInvalidRequest:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindDatabase, KindUpstream:
		return http.StatusBadGateway
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindEmptyResult:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}
