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
	"errors"
	"strings"
	"time"

	"kpiflow/agent/catalog"
	"kpiflow/agent/executor"
	"kpiflow/agent/format"
	"kpiflow/agent/quality"
	"kpiflow/agent/querybuilder"
	"kpiflow/agent/sqlguard"
	"kpiflow/connectors/base"
	"kpiflow/connectors/browser"
	"kpiflow/shared/logger"
	"kpiflow/shared/toolerr"
)

// DefaultOrgID is the tenant used by the KPI tools when the caller names none.
const DefaultOrgID = "default"

// Service implements the data-access tools. It holds no per-request state
// and is safe for concurrent use.
type Service struct {
	registry *catalog.Registry
	guard    *sqlguard.Validator
	executor *executor.Executor
	builder  *querybuilder.Builder
	browser  *browser.Client
	logger   *logger.Logger
}

// Deps are the collaborators of a Service. Browser is optional.
type Deps struct {
	Registry *catalog.Registry
	Guard    *sqlguard.Validator
	Executor *executor.Executor
	Builder  *querybuilder.Builder
	Browser  *browser.Client
}

// NewService wires the tools. A missing guard or builder is created with
// defaults for the executor's dialect.
func NewService(d Deps) (*Service, error) {
	if d.Registry == nil {
		return nil, errors.New("KPI registry is required")
	}
	if d.Executor == nil {
		return nil, errors.New("executor is required")
	}
	if d.Guard == nil {
		d.Guard = sqlguard.New(sqlguard.WithTenantColumn(d.Registry.Dataset().TenantColumn))
	}
	if d.Builder == nil {
		d.Builder = querybuilder.New(d.Executor.Pool().Dialect())
	}
	return &Service{
		registry: d.Registry,
		guard:    d.Guard,
		executor: d.Executor,
		builder:  d.Builder,
		browser:  d.Browser,
		logger:   logger.New("tools"),
	}, nil
}

// Registry returns the KPI catalog.
func (s *Service) Registry() *catalog.Registry { return s.registry }

// SQLRequest is the raw SQL tool input. Timeout is in seconds.
type SQLRequest struct {
	Query   string `json:"query"`
	OrgID   string `json:"org_id"`
	Timeout int    `json:"timeout"`
}

// SQLResponse is the raw SQL tool output. Error is null on success.
type SQLResponse struct {
	Success         bool       `json:"success"`
	Data            []base.Row `json:"data"`
	RowCount        int        `json:"row_count"`
	ExecutionTimeMS int64      `json:"execution_time_ms"`
	Error           *string    `json:"error"`
}

// ExecuteSQL validates and runs one read-only statement scoped to OrgID.
func (s *Service) ExecuteSQL(ctx context.Context, req SQLRequest) (*SQLResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, toolerr.InvalidRequest("ExecuteSQL", "Query parameter is required")
	}
	orgID := strings.TrimSpace(req.OrgID)
	if orgID == "" {
		return nil, toolerr.InvalidRequest("ExecuteSQL", "org_id parameter is required for data isolation")
	}

	approved, err := s.guard.Approve(base.Statement{SQL: query}, orgID)
	if err != nil {
		return nil, err
	}

	result, err := s.executor.Execute(ctx, approved, time.Duration(req.Timeout)*time.Second)
	if err != nil {
		return nil, err
	}

	rows := result.Rows
	if rows == nil {
		rows = []base.Row{}
	}
	return &SQLResponse{
		Success:         true,
		Data:            rows,
		RowCount:        result.RowCount,
		ExecutionTimeMS: result.ElapsedMillis,
	}, nil
}

// KPIRequest is the KPI tool input.
type KPIRequest struct {
	KPIIDs    []int  `json:"kpi_ids"`
	DateRange string `json:"date_range"`
	Frequency string `json:"frequency"`
	OrgID     string `json:"org_id"`
	Chain     string `json:"chain,omitempty"`
}

// KPIInfo describes one requested metric in a KPI response.
type KPIInfo struct {
	KPIID  int          `json:"kpi_id"`
	Column string       `json:"column"`
	Name   string       `json:"name"`
	Unit   catalog.Unit `json:"unit"`
	Chain  string       `json:"chain"`
}

// KPIResponse is the KPI tool output.
type KPIResponse struct {
	KPIData     []base.Row     `json:"kpi_data"`
	Count       int            `json:"count"`
	KPIIDs      []int          `json:"kpi_ids"`
	KPIInfo     []KPIInfo      `json:"kpi_info"`
	DateRange   string         `json:"date_range"`
	Frequency   base.Frequency `json:"frequency"`
	DataQuality quality.Report `json:"data_quality"`
}

// GetKPIData resolves the requested metrics, builds and runs the
// aggregation query and returns formatted, audited rows. The group filter
// is the explicit chain, else the single chain shared by every metric.
func (s *Service) GetKPIData(ctx context.Context, req KPIRequest) (*KPIResponse, error) {
	resolved, err := s.registry.Resolve(req.KPIIDs)
	if err != nil {
		return nil, err
	}
	dateRange, err := querybuilder.ParseDateRange(req.DateRange)
	if err != nil {
		return nil, err
	}
	freq, err := querybuilder.ParseFrequency(req.Frequency)
	if err != nil {
		return nil, err
	}
	orgID := strings.TrimSpace(req.OrgID)
	if orgID == "" {
		orgID = DefaultOrgID
	}
	chain := strings.TrimSpace(req.Chain)
	if chain == "" {
		chain, _ = resolved.SharedGroup()
	}

	stmt, err := s.builder.Build(querybuilder.Request{
		Metrics:     resolved,
		Range:       dateRange,
		Frequency:   freq,
		GroupFilter: chain,
		TenantID:    orgID,
	})
	if err != nil {
		return nil, err
	}
	approved, err := s.guard.Approve(*stmt, orgID)
	if err != nil {
		return nil, err
	}
	result, err := s.executor.Execute(ctx, approved, 0)
	if err != nil {
		return nil, err
	}

	report := quality.Audit(result)
	if result.RowCount == 0 {
		s.logger.Info(orgID, "", "KPI query returned no rows", map[string]interface{}{
			"kind":       toolerr.KindEmptyResult,
			"kpi_ids":    resolved.IDs(),
			"date_range": dateRange.String(),
		})
	}

	info := make([]KPIInfo, 0, len(resolved.Metrics))
	for _, m := range resolved.Metrics {
		info = append(info, KPIInfo{KPIID: m.ID, Column: m.Column, Name: m.Name, Unit: m.Unit, Chain: m.Group})
	}

	return &KPIResponse{
		KPIData:     format.New(freq).Format(result, resolved),
		Count:       result.RowCount,
		KPIIDs:      resolved.IDs(),
		KPIInfo:     info,
		DateRange:   req.DateRange,
		Frequency:   freq,
		DataQuality: report,
	}, nil
}

// CatalogResponse is the KPI catalog tool output.
type CatalogResponse struct {
	Customer string           `json:"customer"`
	KPICount int              `json:"kpi_count"`
	KPIs     []catalog.Metric `json:"kpis"`
}

// AvailableKPIs lists the catalog, filtered by customer unless it is "all".
func (s *Service) AvailableKPIs(customer string) *CatalogResponse {
	customer = strings.TrimSpace(customer)
	if customer == "" {
		customer = "all"
	}
	kpis := s.registry.Filter(customer)
	if kpis == nil {
		kpis = []catalog.Metric{}
	}
	return &CatalogResponse{Customer: customer, KPICount: len(kpis), KPIs: kpis}
}

// ExternalSearch forwards a prompt to the browser service.
func (s *Service) ExternalSearch(ctx context.Context, tenantID string, req browser.Request) (*browser.Result, error) {
	if s.browser == nil {
		return nil, toolerr.New(toolerr.KindUpstream, "ExternalSearch",
			"External search is not configured (BROWSER_SERVICE_URL is unset).", nil)
	}
	return s.browser.Search(ctx, tenantID, req)
}
