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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"kpiflow/agent/sqlguard"
	"kpiflow/connectors/base"
	"kpiflow/shared/toolerr"
)

// errRejected makes the process exit non-zero after the verdict is printed.
var errRejected = errors.New("query rejected")

// validateCmd returns the command that runs a query through the SQL guard.
func validateCmd() *cobra.Command {
	var file string
	var mode string
	var orgID string

	cmd := &cobra.Command{
		Use:   "validate [sql]",
		Short: "Check a SQL query against the SQL guard",
		Long: `Check a SQL query against the SQL guard without executing it.

With --org-id the tenant filter is enforced as well, exactly as the
execute_sql_query tool does.

Examples:
  kpictl validate "SELECT SUM(cy_revenue) FROM reddyice_s3_commercial_money WHERE org_id = 'acme'" --org-id acme
  kpictl validate --file report.sql --mode basic
  echo "DELETE FROM t" | kpictl validate --file -`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query, err := readQuery(cmd.InOrStdin(), args, file)
			if err != nil {
				return err
			}

			m, err := sqlguard.ParseMode(mode)
			if err != nil {
				return err
			}
			guard := sqlguard.New(sqlguard.WithMode(m))

			verdict := guard.Validate(query)
			if verdict.Allowed && orgID != "" {
				if _, err := guard.Approve(base.Statement{SQL: query}, orgID); err != nil {
					verdict.Allowed = false
					verdict.Reason = toolerr.Message(err)
				}
			}

			if err := printJSON(cmd.OutOrStdout(), verdict); err != nil {
				return err
			}
			if !verdict.Allowed {
				return errRejected
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the query from a file (- for stdin)")
	cmd.Flags().StringVarP(&mode, "mode", "m", string(sqlguard.DefaultMode), "Validation mode (basic or strict)")
	cmd.Flags().StringVar(&orgID, "org-id", "", "Also require a filter on this tenant")

	return cmd
}

func readQuery(stdin io.Reader, args []string, file string) (string, error) {
	switch {
	case len(args) == 1 && file != "":
		return "", fmt.Errorf("pass the query as an argument or with --file, not both")
	case len(args) == 1:
		return args[0], nil
	case file == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return strings.TrimSpace(string(data)), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("failed to read %s: %w", file, err)
		}
		return strings.TrimSpace(string(data)), nil
	default:
		return "", fmt.Errorf("a query is required")
	}
}
