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
	"fmt"
	"os"

	"kpiflow/connectors/s3"
	"kpiflow/shared/logger"
)

// ObjectReader fetches an object from an object store.
type ObjectReader interface {
	ReadObject(ctx context.Context, bucket, key string) ([]byte, error)
}

var catalogLog = logger.New("catalog")

// Load builds the registry from location: empty means the embedded catalog,
// s3://bucket/key is read through objects, anything else is a file path.
func Load(ctx context.Context, location string, objects ObjectReader) (*Registry, error) {
	if location == "" {
		return Default()
	}

	data, err := read(ctx, location, objects)
	if err != nil {
		return nil, err
	}

	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", location, err)
	}

	catalogLog.Info("", "", "KPI catalog loaded", map[string]interface{}{
		"source":  location,
		"metrics": r.Len(),
		"table":   r.Dataset().Table,
	})
	return r, nil
}

func read(ctx context.Context, location string, objects ObjectReader) ([]byte, error) {
	bucket, key, isS3, err := s3.ParseLocation(location)
	if err != nil {
		return nil, err
	}
	if !isS3 {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("failed to read KPI catalog: %w", err)
		}
		return data, nil
	}

	if objects == nil {
		return nil, fmt.Errorf("KPI catalog %s requires an S3 reader", location)
	}
	data, err := objects.ReadObject(ctx, bucket, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read KPI catalog: %w", err)
	}
	return data, nil
}
