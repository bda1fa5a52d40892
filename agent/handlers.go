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
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kpiflow/agent/actiongroup"
	"kpiflow/agent/ratelimit"
	"kpiflow/connectors/base"
	"kpiflow/connectors/browser"
	"kpiflow/shared/logger"
	"kpiflow/shared/toolerr"
)

const (
	serviceName    = "kpiflow-agent"
	serviceVersion = "1.0.0"

	maxRequestBody = 1 << 20
	healthTimeout  = 5 * time.Second
)

// retryAfter is the Retry-After value for rate limited responses.
var retryAfter = strconv.Itoa(int(ratelimit.Window / time.Second))

// tool is one tool endpoint. run returns the success body; failure builds
// the error body in the shape callers of that tool expect.
type tool struct {
	name        string
	path        string
	actionGroup string
	run         func(ctx context.Context, p Params) (interface{}, error)
	failure     func(msg string) interface{}
}

// Server exposes the tools over HTTP and the action-group envelope.
type Server struct {
	service *Service
	limiter *ratelimit.Limiter
	auth    *TokenAuth
	checks  map[string]base.HealthChecker
	minor   map[string]bool
	logger  *logger.Logger
	tools   map[string]*tool
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithLimiter enables per-tenant rate limiting.
func WithLimiter(l *ratelimit.Limiter) ServerOption {
	return func(s *Server) { s.limiter = l }
}

// WithTokenAuth requires service tokens on tool endpoints.
func WithTokenAuth(a *TokenAuth) ServerOption {
	return func(s *Server) { s.auth = a }
}

// WithHealthCheck adds a component to /health.
func WithHealthCheck(name string, c base.HealthChecker) ServerOption {
	return func(s *Server) {
		if c != nil {
			s.checks[name] = c
		}
	}
}

// WithOptionalHealthCheck adds a component that /health reports without
// letting it decide the overall status. The agent keeps serving when it is
// down: the limiter fails open and external search fails per call.
func WithOptionalHealthCheck(name string, c base.HealthChecker) ServerOption {
	return func(s *Server) {
		if c != nil {
			s.checks[name] = c
			s.minor[name] = true
		}
	}
}

// NewServer returns the HTTP surface for service.
func NewServer(service *Service, opts ...ServerOption) *Server {
	s := &Server{
		service: service,
		checks:  make(map[string]base.HealthChecker),
		minor:   make(map[string]bool),
		logger:  logger.New("server"),
	}
	for _, opt := range opts {
		opt(s)
	}

	list := []*tool{
		{
			name: "execute_sql_query", path: "/execute_sql_query", actionGroup: "ExecuteSqlQueryActionGroup",
			run: s.runExecuteSQL, failure: successFailure,
		},
		{
			name: "get_kpi_data", path: "/get_kpi_data", actionGroup: "GetKpiDataActionGroup",
			run: s.runGetKPIData,
			failure: func(msg string) interface{} {
				return map[string]interface{}{"error": msg, "kpi_data": []interface{}{}}
			},
		},
		{
			name: "get_available_kpis", path: "/get_available_kpis", actionGroup: "GetAvailableKpisActionGroup",
			run: s.runAvailableKPIs,
			failure: func(msg string) interface{} {
				return map[string]interface{}{"error": msg, "kpis": []interface{}{}}
			},
		},
		{
			name: "external_search", path: "/external_search", actionGroup: "ExternalSearchActionGroup",
			run: s.runExternalSearch, failure: successFailure,
		},
	}
	s.tools = make(map[string]*tool, len(list))
	for _, t := range list {
		s.tools[t.path] = t
	}
	return s
}

func successFailure(msg string) interface{} {
	return map[string]interface{}{"success": false, "error": msg}
}

// Routes registers every endpoint on r.
func (s *Server) Routes(r *mux.Router) {
	r.Use(requestIDMiddleware)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	protected := r.NewRoute().Subrouter()
	protected.Use(s.auth.Middleware)
	for _, t := range s.tools {
		protected.HandleFunc("/tools"+t.path, s.toolHandler(t)).Methods(http.MethodPost)
	}
	protected.HandleFunc("/tools/get_available_kpis", s.toolHandler(s.tools["/get_available_kpis"])).Methods(http.MethodGet)
	protected.HandleFunc("/invoke", s.invokeHandler).Methods(http.MethodPost)
}

// Handler returns a router with every endpoint registered.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	s.Routes(r)
	return r
}

func (s *Server) toolHandler(t *tool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params, err := decodeParams(w, r)
		if err != nil {
			writeJSONResponse(w, t.failure("Invalid JSON in request body: "+err.Error()), http.StatusBadRequest)
			return
		}
		status, body := s.dispatch(r.Context(), t, params)
		if status == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", retryAfter)
		}
		writeJSONResponse(w, body, status)
	}
}

func decodeParams(w http.ResponseWriter, r *http.Request) (Params, error) {
	params := Params{}
	if r.Method == http.MethodGet {
		for k, v := range r.URL.Query() {
			if len(v) > 0 {
				params[k] = v[0]
			}
		}
		return params, nil
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.UseNumber()
	if err := dec.Decode(&params); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if params == nil {
		params = Params{}
	}
	return params, nil
}

func (s *Server) invokeHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err != nil {
		s.writeInvokeFailure(w, "Failed to read request body")
		return
	}
	event, err := actiongroup.Decode(data)
	if err != nil {
		s.writeInvokeFailure(w, "Bad request: "+err.Error())
		return
	}

	path := event.Path("")
	t, ok := s.tools[path]
	var (
		status int
		body   interface{}
		route  = actiongroup.Route{APIPath: path}
	)
	if !ok {
		status, body = http.StatusNotFound, successFailure("Unknown API path: "+path)
	} else {
		route.ActionGroup = t.actionGroup
		status, body = s.dispatch(r.Context(), t, Params(event.Params()))
	}

	resp, err := actiongroup.NewResponse(event, route, status, body)
	if err != nil {
		writeJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, resp, http.StatusOK)
}

// writeInvokeFailure answers an event that could not be read or decoded.
// The orchestrator only understands the envelope, so the failure rides
// inside one with a 400 status code.
func (s *Server) writeInvokeFailure(w http.ResponseWriter, msg string) {
	resp, err := actiongroup.NewResponse(nil, actiongroup.Route{}, http.StatusBadRequest, successFailure(msg))
	if err != nil {
		writeJSONError(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}
	writeJSONResponse(w, resp, http.StatusOK)
}

// dispatch admits and runs one tool call, returning the status and body.
func (s *Server) dispatch(ctx context.Context, t *tool, params Params) (int, interface{}) {
	start := time.Now()
	requestID := RequestIDFrom(ctx)

	tenant, err := resolveTenant(ctx, params.String("org_id", ""))
	if err == nil && tenant != "" {
		params["org_id"] = tenant
	}
	if err == nil && tenant != "" {
		if verr := base.ValidateTenantID(tenant); verr != nil {
			err = toolerr.New(toolerr.KindInvalidRequest, "Authorize", verr.Error(), nil)
		}
	}
	if err == nil && s.limiter != nil {
		limitKey := tenant
		if limitKey == "" {
			limitKey = DefaultOrgID
		}
		if err = s.limiter.Allow(ctx, limitKey); err != nil {
			promRateLimited.Inc()
		}
	}

	var body interface{}
	if err == nil {
		body, err = t.run(ctx, params)
	}

	elapsed := time.Since(start)
	promToolDuration.WithLabelValues(t.name).Observe(float64(elapsed.Milliseconds()))

	if err != nil {
		kind := toolerr.KindOf(err)
		status := toolerr.HTTPStatus(kind)
		promToolRequests.WithLabelValues(t.name, string(kind)).Inc()

		fields := map[string]interface{}{"tool": t.name, "kind": kind}
		if status >= http.StatusInternalServerError {
			s.logger.ErrorWithCode(tenant, requestID, "Tool call failed", status, err, fields)
		} else {
			fields["error"] = err.Error()
			s.logger.Warn(tenant, requestID, "Tool call rejected", fields)
		}
		return status, t.failure(toolerr.Message(err))
	}

	promToolRequests.WithLabelValues(t.name, "ok").Inc()
	s.logger.InfoWithDuration(tenant, requestID, "Tool call completed", elapsed, map[string]interface{}{"tool": t.name})
	return http.StatusOK, body
}

func (s *Server) runExecuteSQL(ctx context.Context, p Params) (interface{}, error) {
	timeout, err := p.Int("timeout", 0)
	if err != nil {
		return nil, err
	}
	return s.service.ExecuteSQL(ctx, SQLRequest{
		Query:   p.First("", "sql_query", "query"),
		OrgID:   p.String("org_id", ""),
		Timeout: timeout,
	})
}

func (s *Server) runGetKPIData(ctx context.Context, p Params) (interface{}, error) {
	ids, err := p.IDs("kpi_ids")
	if err != nil {
		return nil, err
	}
	return s.service.GetKPIData(ctx, KPIRequest{
		KPIIDs:    ids,
		DateRange: p.String("date_range", ""),
		Frequency: p.String("frequency", ""),
		OrgID:     p.String("org_id", DefaultOrgID),
		Chain:     p.String("chain", ""),
	})
}

func (s *Server) runAvailableKPIs(_ context.Context, p Params) (interface{}, error) {
	return s.service.AvailableKPIs(p.String("customer", "all")), nil
}

func (s *Server) runExternalSearch(ctx context.Context, p Params) (interface{}, error) {
	result, err := s.service.ExternalSearch(ctx, p.String("org_id", DefaultOrgID), browser.Request{
		URL:    p.String("url", ""),
		Prompt: p.First("", "prompt", "instructions", "extraction_instructions"),
	})
	if err != nil {
		return nil, err
	}
	if !result.Success {
		msg := result.Error
		if msg == "" {
			msg = "Browser service reported a failure."
		}
		return nil, toolerr.New(toolerr.KindUpstream, "ExternalSearch", msg, nil)
	}
	return result, nil
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	healthy := true
	components := make(map[string]*base.HealthStatus, len(s.checks))
	nonCritical := make([]string, 0, len(s.minor))
	for name, c := range s.checks {
		status, err := c.HealthCheck(ctx)
		if err != nil {
			status = &base.HealthStatus{Healthy: false, Error: err.Error(), Timestamp: time.Now()}
		}
		components[name] = status
		if s.minor[name] {
			nonCritical = append(nonCritical, name)
			continue
		}
		healthy = healthy && status.Healthy
	}
	sort.Strings(nonCritical)

	state, code := "healthy", http.StatusOK
	if !healthy {
		state, code = "degraded", http.StatusServiceUnavailable
	}
	writeJSONResponse(w, map[string]interface{}{
		"status":       state,
		"service":      serviceName,
		"version":      serviceVersion,
		"timestamp":    time.Now().UTC(),
		"components":   components,
		"non_critical": nonCritical,
	}, code)
}

// writeJSONResponse writes data as JSON with the given status.
func writeJSONResponse(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.New("server").Error("", "", "Error encoding response", map[string]interface{}{"error": err.Error()})
	}
}

// writeJSONError writes {"error": {"code", "message"}}.
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSONResponse(w, map[string]interface{}{
		"error": map[string]interface{}{
			"code":    statusCode,
			"message": message,
		},
	}, statusCode)
}
