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
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kpiflow/shared/toolerr"
)

func defaultRegistry(t *testing.T) *Registry {
	t.Helper()
	r, err := Default()
	require.NoError(t, err)
	return r
}

func TestDefault(t *testing.T) {
	r := defaultRegistry(t)

	assert.Equal(t, 13, r.Len())
	ds := r.Dataset()
	assert.Equal(t, "reddyice_s3_commercial_money", ds.Table)
	assert.Equal(t, "mon_year", ds.DateColumn)
	assert.Equal(t, "parent_chain_group", ds.GroupColumn)
	assert.Equal(t, "org_id", ds.TenantColumn)
	assert.Equal(t, []string{"Customer A", "Customer B"}, r.Groups())

	m, ok := r.Lookup(17870)
	require.True(t, ok)
	assert.Equal(t, "cy_revenue", m.Column)
	assert.Equal(t, UnitCurrency, m.Unit)
	assert.Equal(t, "Customer A", m.Group)

	col, ok := r.Column("cy_volume")
	require.True(t, ok)
	assert.Equal(t, []string{"py_volume", "volume_variance", "percent_volume_change"}, col.Related)
}

func TestDefault_TableFromEnvironment(t *testing.T) {
	t.Setenv("KPI_TABLE", "commercial_money_v2")
	r := defaultRegistry(t)
	assert.Equal(t, "commercial_money_v2", r.Dataset().Table)
}

func TestResolve(t *testing.T) {
	r := defaultRegistry(t)

	res, err := r.Resolve([]int{17870, 17866, 17870})
	require.NoError(t, err)
	assert.Equal(t, []int{17870, 17866}, res.IDs())
	assert.Equal(t, []string{"cy_revenue", "cy_volume"}, res.MetricColumns())
	assert.Equal(t, []string{
		"cy_revenue", "cy_volume",
		"py_revenue", "revenue_variance", "revenue_variance_percent",
		"py_volume", "volume_variance", "percent_volume_change",
	}, res.Columns())

	group, ok := res.SharedGroup()
	assert.True(t, ok)
	assert.Equal(t, "Customer A", group)
	assert.Equal(t, "org_id", res.Dataset().TenantColumn)
}

func TestResolve_AliasedColumn(t *testing.T) {
	r := defaultRegistry(t)

	res, err := r.Resolve([]int{17870, 17871})
	require.NoError(t, err)
	assert.Len(t, res.Metrics, 2)
	assert.Equal(t, []string{"cy_revenue"}, res.MetricColumns())
}

func TestResolve_UnknownID(t *testing.T) {
	r := defaultRegistry(t)

	_, err := r.Resolve([]int{17870, 99999, 88888})
	require.Error(t, err)
	assert.Equal(t, toolerr.KindInvalidMetric, toolerr.KindOf(err))
	assert.True(t, errors.Is(err, toolerr.ErrInvalidMetric))
	assert.Contains(t, toolerr.Message(err), "99999")
	assert.NotContains(t, toolerr.Message(err), "88888")
}

func TestResolve_Empty(t *testing.T) {
	r := defaultRegistry(t)

	_, err := r.Resolve(nil)
	require.Error(t, err)
	assert.Equal(t, toolerr.KindInvalidMetric, toolerr.KindOf(err))
	assert.Equal(t, "No KPI IDs provided", toolerr.Message(err))
}

func TestResolve_MixedGroups(t *testing.T) {
	r := defaultRegistry(t)

	res, err := r.Resolve([]int{17870, 17890})
	require.NoError(t, err)
	_, ok := res.SharedGroup()
	assert.False(t, ok)
}

func TestUnitOf(t *testing.T) {
	r := defaultRegistry(t)
	res, err := r.Resolve([]int{17870, 17860})
	require.NoError(t, err)

	tests := []struct {
		column string
		want   Unit
		ok     bool
	}{
		{"cy_revenue", UnitCurrency, true},
		{"cy_oos_percent", UnitPercentage, true},
		{"revenue_variance_percent", UnitPercentage, true},
		{"py_oos_percent", UnitPercentage, true},
		{"parent_chain_group", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.column, func(t *testing.T) {
			unit, ok := res.UnitOf(tt.column)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, unit)
		})
	}
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    []int
		wantErr bool
	}{
		{"17870", []int{17870}, false},
		{"17870, 17868", []int{17870, 17868}, false},
		{" 17870 ,,17868, ", []int{17870, 17868}, false},
		{"", nil, false},
		{"17870,abc", nil, true},
		{"-5", nil, true},
		{"17870;DROP", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIDs(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, toolerr.KindInvalidMetric, toolerr.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter(t *testing.T) {
	r := defaultRegistry(t)

	assert.Len(t, r.Filter("all"), 13)
	assert.Len(t, r.Filter(""), 13)
	assert.Len(t, r.Filter("ALL"), 13)

	customerA := r.Filter("customer a")
	assert.Len(t, customerA, 7)
	for _, m := range customerA {
		assert.Equal(t, "Customer A", m.Group)
	}
	assert.Equal(t, 17870, customerA[0].ID)

	assert.Len(t, r.Filter("Customer"), 13)
	assert.Empty(t, r.Filter("Customer Z"))
}

const minimalCatalog = `
dataset:
  table: sales
  date_column: day
  group_column: region
  tenant_column: org_id
columns:
  - name: revenue
    unit: currency
metrics:
  - id: 1
    name: Revenue
    column: revenue
    group: Draft West
`

func TestParse(t *testing.T) {
	r, err := Parse([]byte(minimalCatalog))
	require.NoError(t, err)

	m, ok := r.Lookup(1)
	require.True(t, ok)
	assert.Equal(t, UnitCurrency, m.Unit, "unit defaults to the column unit")
	assert.Equal(t, "West", m.Group, "draft prefix is stripped")
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "duplicate id",
			yaml: minimalCatalog + `
  - id: 1
    name: Again
    column: revenue
`,
			wantErr: "declared twice",
		},
		{
			name: "undeclared column",
			yaml: minimalCatalog + `
  - id: 2
    name: Margin
    column: margin
`,
			wantErr: "undeclared column",
		},
		{
			name: "unknown unit",
			yaml: minimalCatalog + `
  - id: 2
    name: Revenue in euros
    column: revenue
    unit: euros
`,
			wantErr: "unknown unit",
		},
		{
			name: "unsafe table",
			yaml: `
dataset:
  table: "sales; DROP TABLE x"
  date_column: day
  group_column: region
  tenant_column: org_id
columns: []
metrics: []
`,
			wantErr: "dataset table",
		},
		{
			name: "unsafe column",
			yaml: `
dataset:
  table: sales
  date_column: day
  group_column: region
  tenant_column: org_id
columns:
  - name: "revenue)--"
    unit: currency
metrics: []
`,
			wantErr: "invalid SQL identifier",
		},
		{
			name: "related to undeclared column",
			yaml: `
dataset:
  table: sales
  date_column: day
  group_column: region
  tenant_column: org_id
columns:
  - name: revenue
    unit: currency
    related: [prior_revenue]
metrics: []
`,
			wantErr: "undeclared column prior_revenue",
		},
		{
			name: "no metrics",
			yaml: `
dataset:
  table: sales
  date_column: day
  group_column: region
  tenant_column: org_id
columns: []
metrics: []
`,
			wantErr: "no metrics",
		},
		{
			name:    "unknown field",
			yaml:    minimalCatalog + "\nowner: finance\n",
			wantErr: "invalid KPI catalog",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

type fakeObjects struct {
	data        []byte
	bucket, key string
	err         error
}

func (f *fakeObjects) ReadObject(_ context.Context, bucket, key string) ([]byte, error) {
	f.bucket, f.key = bucket, key
	return f.data, f.err
}

func TestLoad(t *testing.T) {
	ctx := context.Background()

	t.Run("embedded", func(t *testing.T) {
		r, err := Load(ctx, "", nil)
		require.NoError(t, err)
		assert.Equal(t, 13, r.Len())
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "metrics.yaml")
		require.NoError(t, os.WriteFile(path, []byte(minimalCatalog), 0o600))

		r, err := Load(ctx, path, nil)
		require.NoError(t, err)
		assert.Equal(t, "sales", r.Dataset().Table)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(ctx, filepath.Join(t.TempDir(), "absent.yaml"), nil)
		assert.Error(t, err)
	})

	t.Run("s3", func(t *testing.T) {
		objects := &fakeObjects{data: []byte(minimalCatalog)}
		r, err := Load(ctx, "s3://kpi-config/catalog/metrics.yaml", objects)
		require.NoError(t, err)
		assert.Equal(t, "kpi-config", objects.bucket)
		assert.Equal(t, "catalog/metrics.yaml", objects.key)
		assert.Equal(t, 1, r.Len())
	})

	t.Run("s3 without reader", func(t *testing.T) {
		_, err := Load(ctx, "s3://kpi-config/metrics.yaml", nil)
		assert.Error(t, err)
	})

	t.Run("s3 failure", func(t *testing.T) {
		_, err := Load(ctx, "s3://kpi-config/metrics.yaml", &fakeObjects{err: errors.New("access denied")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "access denied")
	})
}
