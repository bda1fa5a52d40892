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
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"kpiflow/agent"
)

// tokenCmd returns the command that issues service tokens for tool callers.
func tokenCmd() *cobra.Command {
	var secret string
	var subject string
	var tenant string
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a service token for the tool endpoints",
		Long: `Issue an HS256 service token signed with TOOL_AUTH_SECRET.

A token issued with --tenant may only query that tenant; its tenant also
fills org_id when a request omits it.

Examples:
  kpictl token --subject orchestrator
  kpictl token --subject acme-dashboard --tenant acme --ttl 24h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret or TOOL_AUTH_SECRET is required")
			}
			if subject == "" {
				return fmt.Errorf("--subject is required")
			}

			token, err := agent.IssueToken(secret, subject, tenant, ttl)
			if err != nil {
				return fmt.Errorf("failed to issue token: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&secret, "secret", os.Getenv("TOOL_AUTH_SECRET"), "Signing secret")
	cmd.Flags().StringVarP(&subject, "subject", "s", "", "Token subject (required)")
	cmd.Flags().StringVarP(&tenant, "tenant", "t", "", "Pin the token to one tenant")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime (0 for no expiry)")

	return cmd
}
