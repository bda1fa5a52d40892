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

package base

import (
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

// URLValidationOptions configures URL validation behavior
type URLValidationOptions struct {
	// AllowPrivateIPs permits connections to private/internal IP addresses
	AllowPrivateIPs bool
	// AllowedSchemes specifies permitted URL schemes (default: ["https", "http"])
	AllowedSchemes []string
	// AllowedHostSuffixes restricts URLs to specific domain suffixes
	AllowedHostSuffixes []string
	// BlockedHosts explicitly blocks certain hostnames and their subdomains
	BlockedHosts []string
	// Resolve looks up host addresses; net.LookupIP when nil
	Resolve func(host string) ([]net.IP, error)
}

// DefaultURLValidationOptions returns secure defaults for URL validation
func DefaultURLValidationOptions() URLValidationOptions {
	return URLValidationOptions{
		AllowPrivateIPs: false,
		AllowedSchemes:  []string{"https", "http"},
	}
}

// ValidateURL rejects URLs a tool must not fetch: bad schemes, blocked or
// non-allowlisted hosts and, unless AllowPrivateIPs is set, hosts that
// resolve to loopback, private, link-local or reserved ranges.
func ValidateURL(rawURL string, opts URLValidationOptions) error {
	if rawURL == "" {
		return fmt.Errorf("URL cannot be empty")
	}

	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL format: %w", err)
	}

	schemes := opts.AllowedSchemes
	if len(schemes) == 0 {
		schemes = []string{"https", "http"}
	}
	if !containsFold(schemes, parsedURL.Scheme) {
		return fmt.Errorf("URL scheme %q is not allowed; permitted schemes: %v", parsedURL.Scheme, schemes)
	}

	hostname := strings.ToLower(parsedURL.Hostname())
	if hostname == "" {
		return fmt.Errorf("URL must contain a hostname")
	}

	for _, blocked := range opts.BlockedHosts {
		blocked = strings.ToLower(blocked)
		if hostname == blocked || strings.HasSuffix(hostname, "."+blocked) {
			return fmt.Errorf("hostname %q is blocked", hostname)
		}
	}

	if len(opts.AllowedHostSuffixes) > 0 && !hasSuffixFold(hostname, opts.AllowedHostSuffixes) {
		return fmt.Errorf("hostname %q is not in the allowed list", hostname)
	}

	if opts.AllowPrivateIPs {
		return nil
	}

	resolve := opts.Resolve
	if resolve == nil {
		resolve = net.LookupIP
	}
	ips, err := resolve(hostname)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname %q: %w", hostname, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("connection to private/internal IP %s is not allowed (hostname: %s)", ip, hostname)
		}
	}
	return nil
}

// reservedNets are IPv4 ranges not covered by the net.IP predicates.
var reservedNets = mustParseCIDRs(
	"0.0.0.0/8",       // current network
	"100.64.0.0/10",   // carrier-grade NAT
	"192.0.0.0/24",    // IETF protocol assignments
	"192.0.2.0/24",    // TEST-NET-1
	"198.51.100.0/24", // TEST-NET-2
	"203.0.113.0/24",  // TEST-NET-3
	"240.0.0.0/4",     // reserved
)

func mustParseCIDRs(cidrs ...string) []*net.IPNet {
	nets := make([]*net.IPNet, 0, len(cidrs))
	for _, c := range cidrs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			panic(err)
		}
		nets = append(nets, n)
	}
	return nets
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsMulticast() {
		return true
	}
	for _, n := range reservedNets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

func hasSuffixFold(host string, suffixes []string) bool {
	for _, suffix := range suffixes {
		if strings.HasSuffix(host, strings.ToLower(suffix)) {
			return true
		}
	}
	return false
}

var ansiRegex = regexp.MustCompile(`\x1b\[[0-9;]*[a-zA-Z]`)

// SanitizeLogString removes or escapes characters that could be used for log injection
func SanitizeLogString(s string) string {
	s = strings.ReplaceAll(s, "\n", "\\n")
	s = strings.ReplaceAll(s, "\r", "\\r")
	s = ansiRegex.ReplaceAllString(s, "")
	const maxLogLength = 500
	if len(s) > maxLogLength {
		s = s[:maxLogLength] + "...[truncated]"
	}
	return s
}

var (
	identifierRegex = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)
	tenantIDRegex   = regexp.MustCompile(`^[A-Za-z0-9_.-]{1,64}$`)
)

// reservedWords are identifiers refused even when they match identifierRegex.
var reservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true, "DROP": true,
	"CREATE": true, "ALTER": true, "TABLE": true, "DATABASE": true, "INDEX": true,
	"FROM": true, "WHERE": true, "AND": true, "OR": true, "NOT": true, "NULL": true,
	"TRUE": true, "FALSE": true, "JOIN": true, "ON": true, "AS": true, "ORDER": true,
	"BY": true, "GROUP": true, "HAVING": true, "UNION": true, "ALL": true,
	"DISTINCT": true, "LIMIT": true, "OFFSET": true, "INTO": true, "VALUES": true,
	"SET": true, "GRANT": true, "REVOKE": true, "TRUNCATE": true, "CASCADE": true,
}

// ValidateSQLIdentifier checks if a string is safe to use as a SQL identifier
// (table name, column name, etc.) to prevent SQL injection
func ValidateSQLIdentifier(identifier string) error {
	if identifier == "" {
		return fmt.Errorf("identifier cannot be empty")
	}
	if !identifierRegex.MatchString(identifier) {
		return fmt.Errorf("invalid SQL identifier: %q", identifier)
	}
	if reservedWords[strings.ToUpper(identifier)] {
		return fmt.Errorf("identifier %q is a SQL reserved word", identifier)
	}
	return nil
}

// ValidateTenantID checks an org_id before it is bound into a statement or
// compared against a caller-supplied one.
func ValidateTenantID(tenantID string) error {
	if tenantID == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if !tenantIDRegex.MatchString(tenantID) {
		return fmt.Errorf("invalid tenant id %q: only letters, digits, '_', '.' and '-' are allowed (max 64)", SanitizeLogString(tenantID))
	}
	return nil
}
