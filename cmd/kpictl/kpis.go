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
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"kpiflow/agent"
	"kpiflow/agent/catalog"
	"kpiflow/connectors/config"
)

// loadRegistry loads the catalog at location; an empty location is the
// embedded catalog.
func loadRegistry(ctx context.Context, location string) (*catalog.Registry, error) {
	if !strings.HasPrefix(location, "s3://") {
		return catalog.Load(ctx, location, nil)
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, err
	}
	settings.KPICatalog = location
	return agent.LoadCatalog(ctx, settings)
}

// kpisCmd returns the command that lists catalog metrics.
func kpisCmd() *cobra.Command {
	var customer string
	var location string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "kpis",
		Short: "List the KPIs in the catalog",
		Long: `List the KPIs in the catalog, optionally filtered by customer.

Examples:
  kpictl kpis
  kpictl kpis --customer "Customer B" --json
  kpictl kpis --catalog s3://analytics-config/kpis.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := loadRegistry(cmd.Context(), location)
			if err != nil {
				return err
			}
			metrics := registry.Filter(customer)

			if asJSON {
				return printJSON(cmd.OutOrStdout(), metrics)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCOLUMN\tUNIT\tGROUP")
			for _, m := range metrics {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", m.ID, m.Name, m.Column, m.Unit, m.Group)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\n%d KPIs\n", len(metrics))
			return nil
		},
	}

	cmd.Flags().StringVarP(&customer, "customer", "c", "all", "Only list KPIs of this customer")
	cmd.Flags().StringVar(&location, "catalog", os.Getenv("KPI_CATALOG"), "Catalog file or s3://bucket/key (default: embedded)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print JSON instead of a table")

	return cmd
}
