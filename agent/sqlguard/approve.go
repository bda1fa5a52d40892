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

package sqlguard

import (
	"github.com/prometheus/client_golang/prometheus"

	"kpiflow/connectors/base"
	"kpiflow/shared/logger"
	"kpiflow/shared/toolerr"
)

var (
	promVerdicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "kpiflow_sqlguard_verdicts_total",
			Help: "SQL guard decisions by outcome and rejection category",
		},
		[]string{"outcome", "category"},
	)

	guardLog = logger.New("sqlguard")
)

func init() {
	prometheus.MustRegister(promVerdicts)
}

// Approved is a statement that passed Validate and CheckTenant for one
// tenant. Only Approve can create one, and the executor runs nothing else.
type Approved struct {
	stmt     base.Statement
	tenantID string
}

// Statement returns the approved statement.
func (a *Approved) Statement() base.Statement {
	return a.stmt
}

// TenantID returns the tenant the statement was approved for.
func (a *Approved) TenantID() string {
	return a.tenantID
}

// Approve validates stmt and its tenant scoping. A rejection is returned as
// a toolerr KindForbidden error whose message is the verdict reason.
func (v *Validator) Approve(stmt base.Statement, tenantID string) (*Approved, error) {
	if err := base.ValidateTenantID(tenantID); err != nil {
		return nil, toolerr.New(toolerr.KindInvalidRequest, "Approve", err.Error(), nil)
	}

	verdict := v.Validate(stmt.SQL)
	if verdict.Allowed {
		verdict = v.CheckTenant(stmt.SQL, stmt.Args, tenantID)
	}

	if !verdict.Allowed {
		promVerdicts.WithLabelValues("rejected", string(verdict.Category)).Inc()
		guardLog.Warn(tenantID, "", "statement rejected", map[string]interface{}{
			"category": verdict.Category,
			"keyword":  verdict.Keyword,
			"pattern":  verdict.Pattern,
			"sql":      base.SanitizeLogString(stmt.SQL),
		})
		return nil, toolerr.Forbidden("Approve", verdict.Reason)
	}

	promVerdicts.WithLabelValues("allowed", "").Inc()
	return &Approved{
		stmt:     base.Statement{SQL: Statement(stmt.SQL), Args: stmt.Args},
		tenantID: tenantID,
	}, nil
}
