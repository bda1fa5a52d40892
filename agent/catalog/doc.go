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

// Package catalog is the KPI metric registry.
//
// A catalog declares the dataset (table, date, group and tenant columns),
// the storage columns with their units and companion columns, and the KPI
// ids that map onto those columns. Several ids may share a column. The
// default catalog is embedded in the binary; KPI_CATALOG can point at a
// file or an s3:// object instead. Every identifier is validated at load,
// so the query builder can splice catalog names into SQL.
package catalog
