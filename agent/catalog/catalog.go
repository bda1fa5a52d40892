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

package catalog

import (
	_ "embed"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"kpiflow/connectors/base"
	"kpiflow/connectors/config"
	"kpiflow/shared/toolerr"
)

//go:embed metrics.yaml
var defaultCatalog []byte

// Unit drives how a column is formatted and aggregated.
type Unit string

const (
	UnitCurrency   Unit = "currency"
	UnitPercentage Unit = "percentage"
	UnitNumber     Unit = "number"
)

// Valid reports whether u is a known unit.
func (u Unit) Valid() bool {
	switch u {
	case UnitCurrency, UnitPercentage, UnitNumber:
		return true
	}
	return false
}

// Dataset names the table the catalog's columns live in.
type Dataset struct {
	Table        string `yaml:"table"`
	DateColumn   string `yaml:"date_column"`
	GroupColumn  string `yaml:"group_column"`
	TenantColumn string `yaml:"tenant_column"`
}

// Column is a storage column with its unit and companion columns.
type Column struct {
	Name    string   `yaml:"name"`
	Unit    Unit     `yaml:"unit"`
	Related []string `yaml:"related,omitempty"`
}

// Metric maps a KPI id to a column.
type Metric struct {
	ID         int    `yaml:"id" json:"kpi_id"`
	Name       string `yaml:"name" json:"kpi_name"`
	Column     string `yaml:"column" json:"column"`
	Unit       Unit   `yaml:"unit" json:"unit"`
	Group      string `yaml:"group" json:"group"`
	Category   string `yaml:"category,omitempty" json:"category,omitempty"`
	Definition string `yaml:"definition,omitempty" json:"definition,omitempty"`
}

type catalogFile struct {
	Version string   `yaml:"version"`
	Dataset Dataset  `yaml:"dataset"`
	Columns []Column `yaml:"columns"`
	Metrics []Metric `yaml:"metrics"`
}

// Registry is the immutable KPI catalog. It is safe for concurrent use.
type Registry struct {
	dataset Dataset
	columns map[string]Column
	metrics map[int]Metric
	order   []int
}

// Default returns the registry built from the embedded catalog.
func Default() (*Registry, error) {
	return Parse(defaultCatalog)
}

// Parse builds a registry from catalog YAML. Environment references are
// expanded before decoding.
func Parse(data []byte) (*Registry, error) {
	var f catalogFile
	if err := config.DecodeYAML(data, &f); err != nil {
		return nil, fmt.Errorf("invalid KPI catalog: %w", err)
	}
	return build(f)
}

func build(f catalogFile) (*Registry, error) {
	ds := f.Dataset
	for field, ident := range map[string]string{
		"table":         ds.Table,
		"date_column":   ds.DateColumn,
		"group_column":  ds.GroupColumn,
		"tenant_column": ds.TenantColumn,
	} {
		if err := base.ValidateSQLIdentifier(ident); err != nil {
			return nil, fmt.Errorf("invalid KPI catalog: dataset %s: %w", field, err)
		}
	}

	r := &Registry{
		dataset: ds,
		columns: make(map[string]Column, len(f.Columns)),
		metrics: make(map[int]Metric, len(f.Metrics)),
	}

	for _, col := range f.Columns {
		if err := base.ValidateSQLIdentifier(col.Name); err != nil {
			return nil, fmt.Errorf("invalid KPI catalog: column: %w", err)
		}
		if !col.Unit.Valid() {
			return nil, fmt.Errorf("invalid KPI catalog: column %s has unknown unit %q", col.Name, col.Unit)
		}
		if _, dup := r.columns[col.Name]; dup {
			return nil, fmt.Errorf("invalid KPI catalog: column %s declared twice", col.Name)
		}
		r.columns[col.Name] = col
	}
	for _, col := range r.columns {
		for _, rel := range col.Related {
			if _, ok := r.columns[rel]; !ok {
				return nil, fmt.Errorf("invalid KPI catalog: column %s relates to undeclared column %s", col.Name, rel)
			}
		}
	}

	for _, m := range f.Metrics {
		if m.ID <= 0 {
			return nil, fmt.Errorf("invalid KPI catalog: metric %q has no positive id", m.Name)
		}
		if _, dup := r.metrics[m.ID]; dup {
			return nil, fmt.Errorf("invalid KPI catalog: metric id %d declared twice", m.ID)
		}
		col, ok := r.columns[m.Column]
		if !ok {
			return nil, fmt.Errorf("invalid KPI catalog: metric %d uses undeclared column %q", m.ID, m.Column)
		}
		if m.Unit == "" {
			m.Unit = col.Unit
		}
		if !m.Unit.Valid() {
			return nil, fmt.Errorf("invalid KPI catalog: metric %d has unknown unit %q", m.ID, m.Unit)
		}
		// Dashboard exports prefix unpublished pages with "Draft ".
		m.Group = strings.TrimPrefix(strings.TrimSpace(m.Group), "Draft ")
		r.metrics[m.ID] = m
		r.order = append(r.order, m.ID)
	}

	if len(r.metrics) == 0 {
		return nil, fmt.Errorf("invalid KPI catalog: no metrics defined")
	}
	return r, nil
}

// Dataset returns the table description.
func (r *Registry) Dataset() Dataset {
	return r.dataset
}

// Len returns the number of metrics.
func (r *Registry) Len() int {
	return len(r.metrics)
}

// Lookup returns the metric registered under id.
func (r *Registry) Lookup(id int) (Metric, bool) {
	m, ok := r.metrics[id]
	return m, ok
}

// Column returns the column named name.
func (r *Registry) Column(name string) (Column, bool) {
	c, ok := r.columns[name]
	return c, ok
}

// All returns every metric in catalog order.
func (r *Registry) All() []Metric {
	out := make([]Metric, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.metrics[id])
	}
	return out
}

// Filter returns the metrics whose group contains customer, compared
// case-insensitively. "all" or an empty customer returns every metric.
func (r *Registry) Filter(customer string) []Metric {
	needle := strings.ToLower(strings.TrimSpace(customer))
	if needle == "" || needle == "all" {
		return r.All()
	}
	var out []Metric
	for _, id := range r.order {
		m := r.metrics[id]
		if strings.Contains(strings.ToLower(m.Group), needle) {
			out = append(out, m)
		}
	}
	return out
}

// Groups returns the distinct metric groups, sorted.
func (r *Registry) Groups() []string {
	seen := map[string]bool{}
	var out []string
	for _, id := range r.order {
		g := r.metrics[id].Group
		if g != "" && !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	sort.Strings(out)
	return out
}

// Resolve maps ids to metrics in request order, dropping repeated ids.
// Either every id resolves or the call fails with an InvalidMetric error
// naming the first unknown id.
func (r *Registry) Resolve(ids []int) (*Resolved, error) {
	if len(ids) == 0 {
		return nil, toolerr.New(toolerr.KindInvalidMetric, "Resolve", "No KPI IDs provided", nil)
	}

	res := &Resolved{registry: r}
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if seen[id] {
			continue
		}
		m, ok := r.metrics[id]
		if !ok {
			return nil, toolerr.New(toolerr.KindInvalidMetric, "Resolve",
				fmt.Sprintf("Unknown KPI ID: %d", id), nil)
		}
		seen[id] = true
		res.Metrics = append(res.Metrics, m)
	}
	return res, nil
}

// ParseIDs parses a comma separated id list such as "17870, 17868".
// Blank entries are skipped; any other malformed entry is an InvalidMetric
// error.
func ParseIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, toolerr.New(toolerr.KindInvalidMetric, "ParseIDs",
				fmt.Sprintf("Invalid KPI ID: %q", base.SanitizeLogString(part)), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Resolved is the outcome of a successful Resolve.
type Resolved struct {
	Metrics  []Metric
	registry *Registry
}

// IDs returns the resolved metric ids in order.
func (r *Resolved) IDs() []int {
	ids := make([]int, len(r.Metrics))
	for i, m := range r.Metrics {
		ids[i] = m.ID
	}
	return ids
}

// MetricColumns returns the distinct metric columns in first-seen order.
func (r *Resolved) MetricColumns() []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range r.Metrics {
		if !seen[m.Column] {
			seen[m.Column] = true
			out = append(out, m.Column)
		}
	}
	return out
}

// Columns returns the metric columns followed by their related columns,
// deduplicated in first-seen order.
func (r *Resolved) Columns() []string {
	out := r.MetricColumns()
	seen := make(map[string]bool, len(out))
	for _, c := range out {
		seen[c] = true
	}
	for _, m := range r.Metrics {
		col, _ := r.registry.Column(m.Column)
		for _, rel := range col.Related {
			if !seen[rel] {
				seen[rel] = true
				out = append(out, rel)
			}
		}
	}
	return out
}

// UnitOf returns the unit to format column with: the unit of the first
// metric selecting it, else the column's declared unit.
func (r *Resolved) UnitOf(column string) (Unit, bool) {
	for _, m := range r.Metrics {
		if m.Column == column {
			return m.Unit, true
		}
	}
	if col, ok := r.registry.Column(column); ok {
		return col.Unit, true
	}
	return "", false
}

// SharedGroup returns the group when every resolved metric has the same
// non-empty one.
func (r *Resolved) SharedGroup() (string, bool) {
	if len(r.Metrics) == 0 {
		return "", false
	}
	group := r.Metrics[0].Group
	if group == "" {
		return "", false
	}
	for _, m := range r.Metrics[1:] {
		if m.Group != group {
			return "", false
		}
	}
	return group, true
}

// Dataset returns the table the metrics live in.
func (r *Resolved) Dataset() Dataset {
	return r.registry.dataset
}
