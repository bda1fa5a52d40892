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

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"kpiflow/agent"
	"kpiflow/agent/catalog"
	"kpiflow/agent/querybuilder"
	"kpiflow/connectors/config"
)

type plan struct {
	SQL       string        `json:"sql"`
	Args      []interface{} `json:"args"`
	DateRange string        `json:"date_range"`
	Frequency string        `json:"frequency"`
	Buckets   int           `json:"buckets"`
	Chain     string        `json:"chain,omitempty"`
}

// queryCmd returns the command that builds, and optionally runs, a KPI query.
func queryCmd() *cobra.Command {
	var (
		kpiIDs    string
		dateRange string
		frequency string
		orgID     string
		chain     string
		driver    string
		location  string
		execute   bool
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Build the SQL for a KPI request",
		Long: `Build the aggregation SQL get_kpi_data would run for a request.

With --execute the request runs against the configured database and the
formatted tool response is printed.

Examples:
  kpictl query --kpi-ids 17870,17868 --date-range "2024-01 to 2024-06"
  kpictl query --kpi-ids 17862 --date-range "2024-01-01 to 2024-01-31" --frequency weekly --driver postgres
  kpictl query --kpi-ids 17870 --date-range "2024-01 to 2024-03" --org-id acme --execute`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := catalog.ParseIDs(kpiIDs)
			if err != nil {
				return err
			}

			if execute {
				return runQuery(cmd.Context(), cmd, agent.KPIRequest{
					KPIIDs:    ids,
					DateRange: dateRange,
					Frequency: frequency,
					OrgID:     orgID,
					Chain:     chain,
				})
			}

			registry, err := loadRegistry(cmd.Context(), location)
			if err != nil {
				return err
			}
			p, err := buildPlan(registry, driver, ids, dateRange, frequency, orgID, chain)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), p)
		},
	}

	cmd.Flags().StringVarP(&kpiIDs, "kpi-ids", "k", "", "Comma-separated KPI ids (required)")
	cmd.Flags().StringVarP(&dateRange, "date-range", "d", "", `Date range, "YYYY-MM to YYYY-MM" (required)`)
	cmd.Flags().StringVar(&frequency, "frequency", "monthly", "daily, weekly or monthly")
	cmd.Flags().StringVar(&orgID, "org-id", agent.DefaultOrgID, "Tenant to filter on")
	cmd.Flags().StringVar(&chain, "chain", "", "Parent chain group filter (default: inferred from the KPIs)")
	cmd.Flags().StringVar(&driver, "driver", "mysql", "SQL dialect for the dry run (mysql or postgres)")
	cmd.Flags().StringVar(&location, "catalog", os.Getenv("KPI_CATALOG"), "Catalog file or s3://bucket/key (default: embedded)")
	cmd.Flags().BoolVar(&execute, "execute", false, "Run the query using the agent's environment settings")
	_ = cmd.MarkFlagRequired("kpi-ids")
	_ = cmd.MarkFlagRequired("date-range")

	return cmd
}

func buildPlan(registry *catalog.Registry, driver string, ids []int, dateRange, frequency, orgID, chain string) (*plan, error) {
	resolved, err := registry.Resolve(ids)
	if err != nil {
		return nil, err
	}
	r, err := querybuilder.ParseDateRange(dateRange)
	if err != nil {
		return nil, err
	}
	freq, err := querybuilder.ParseFrequency(frequency)
	if err != nil {
		return nil, err
	}
	dialect, err := agent.DialectFor(driver)
	if err != nil {
		return nil, err
	}
	if chain == "" {
		chain, _ = resolved.SharedGroup()
	}

	stmt, err := querybuilder.New(dialect).Build(querybuilder.Request{
		Metrics:     resolved,
		Range:       r,
		Frequency:   freq,
		GroupFilter: chain,
		TenantID:    orgID,
	})
	if err != nil {
		return nil, err
	}
	return &plan{
		SQL:       stmt.SQL,
		Args:      stmt.Args,
		DateRange: r.String(),
		Frequency: string(freq),
		Buckets:   querybuilder.Buckets(r, freq),
		Chain:     chain,
	}, nil
}

func runQuery(ctx context.Context, cmd *cobra.Command, req agent.KPIRequest) error {
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}
	app, err := agent.NewApp(ctx, settings)
	if err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}
	defer app.Close()

	resp, err := app.Service.GetKPIData(ctx, req)
	if err != nil {
		return err
	}
	return printJSON(cmd.OutOrStdout(), resp)
}
