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

package querybuilder

import (
	"fmt"
	"strings"
	"time"

	"kpiflow/connectors/base"
	"kpiflow/shared/toolerr"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
)

// DateRange is an inclusive range of calendar days.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// StartDate returns Start as YYYY-MM-DD.
func (r DateRange) StartDate() string { return r.Start.Format(dateLayout) }

// EndDate returns End as YYYY-MM-DD.
func (r DateRange) EndDate() string { return r.End.Format(dateLayout) }

func (r DateRange) String() string { return r.StartDate() + " to " + r.EndDate() }

// ParseDateRange parses "START to END" where each side is YYYY-MM or
// YYYY-MM-DD. A month start becomes its first day and a month end its last
// day, so "2024-01 to 2024-02" covers 2024-01-01 through 2024-02-29.
func ParseDateRange(s string) (DateRange, error) {
	parts := strings.Split(strings.TrimSpace(s), " to ")
	if len(parts) != 2 {
		return DateRange{}, invalidRange(fmt.Sprintf(
			"Invalid date range format: %q. Expected 'YYYY-MM to YYYY-MM'.", base.SanitizeLogString(s)))
	}

	start, err := parseBound(strings.TrimSpace(parts[0]), false)
	if err != nil {
		return DateRange{}, err
	}
	end, err := parseBound(strings.TrimSpace(parts[1]), true)
	if err != nil {
		return DateRange{}, err
	}
	if start.After(end) {
		return DateRange{}, invalidRange(fmt.Sprintf(
			"Start date %s is after end date %s.", start.Format(dateLayout), end.Format(dateLayout)))
	}
	return DateRange{Start: start, End: end}, nil
}

func parseBound(s string, isEnd bool) (time.Time, error) {
	switch len(s) {
	case len(monthLayout):
		t, err := time.Parse(monthLayout, s)
		if err != nil {
			break
		}
		if isEnd {
			// day 0 of the next month is the last day of this one
			return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC), nil
		}
		return t, nil
	case len(dateLayout):
		if t, err := time.Parse(dateLayout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, invalidRange(fmt.Sprintf(
		"Invalid date %q. Use YYYY-MM or YYYY-MM-DD.", base.SanitizeLogString(s)))
}

func invalidRange(msg string) error {
	return toolerr.New(toolerr.KindInvalidDateRange, "ParseDateRange", msg, nil)
}

// ParseFrequency parses daily, weekly or monthly. Empty means monthly.
func ParseFrequency(s string) (base.Frequency, error) {
	switch base.Frequency(strings.ToLower(strings.TrimSpace(s))) {
	case "", base.FrequencyMonthly:
		return base.FrequencyMonthly, nil
	case base.FrequencyWeekly:
		return base.FrequencyWeekly, nil
	case base.FrequencyDaily:
		return base.FrequencyDaily, nil
	}
	return "", toolerr.InvalidRequest("ParseFrequency",
		fmt.Sprintf("Invalid frequency %q. Use daily, weekly or monthly.", base.SanitizeLogString(s)))
}

// Buckets returns how many periods of freq the range touches. Weeks start
// on Monday.
func Buckets(r DateRange, freq base.Frequency) int {
	switch freq {
	case base.FrequencyDaily:
		return int(r.End.Sub(r.Start).Hours()/24) + 1
	case base.FrequencyWeekly:
		first := weekStart(r.Start)
		last := weekStart(r.End)
		return int(last.Sub(first).Hours()/(24*7)) + 1
	default:
		return (r.End.Year()-r.Start.Year())*12 + int(r.End.Month()) - int(r.Start.Month()) + 1
	}
}

func weekStart(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return t.AddDate(0, 0, -offset)
}
