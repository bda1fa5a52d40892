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

// Package s3 reads configuration objects such as the KPI catalog from
// Amazon S3 or an S3-compatible store (MinIO, LocalStack).
package s3

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"kpiflow/connectors/base"
	"kpiflow/connectors/config"
)

// MaxObjectSize caps how much of an object is read.
const MaxObjectSize = 8 << 20

// Reader fetches whole objects.
type Reader struct {
	client *s3.Client
}

// Options configures a Reader.
type Options struct {
	AWS            config.AWSOptions
	ForcePathStyle bool
}

// NewReader creates an S3 reader. Path-style addressing is forced whenever
// a custom endpoint is configured.
func NewReader(ctx context.Context, opts Options) (*Reader, error) {
	awsCfg, err := config.LoadAWSConfig(ctx, opts.AWS)
	if err != nil {
		return nil, base.NewConnectorError("s3", "Connect", "failed to load AWS config", err)
	}

	s3Options := []func(*s3.Options){}
	if opts.AWS.Endpoint != "" {
		endpoint := opts.AWS.Endpoint
		s3Options = append(s3Options, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(endpoint)
			o.UsePathStyle = true
		})
	} else if opts.ForcePathStyle {
		s3Options = append(s3Options, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}

	return &Reader{client: s3.NewFromConfig(awsCfg, s3Options...)}, nil
}

// ReadObject returns the object body.
func (r *Reader) ReadObject(ctx context.Context, bucket, key string) ([]byte, error) {
	result, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, base.NewConnectorError("s3", "GetObject", fmt.Sprintf("failed to get s3://%s/%s", bucket, key), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(io.LimitReader(result.Body, MaxObjectSize+1))
	if err != nil {
		return nil, base.NewConnectorError("s3", "GetObject", "failed to read object body", err)
	}
	if len(data) > MaxObjectSize {
		return nil, base.NewConnectorError("s3", "GetObject",
			fmt.Sprintf("object s3://%s/%s exceeds %d bytes", bucket, key, MaxObjectSize), nil)
	}
	return data, nil
}

// HealthCheck verifies the bucket is reachable.
func (r *Reader) HealthCheck(ctx context.Context, bucket string) (*base.HealthStatus, error) {
	start := time.Now()
	_, err := r.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	status := &base.HealthStatus{
		Healthy:   err == nil,
		Latency:   time.Since(start),
		Timestamp: time.Now(),
		Details:   map[string]string{"bucket": bucket},
	}
	if err != nil {
		status.Error = err.Error()
	}
	return status, nil
}

// ParseLocation splits s3://bucket/key. ok is false for anything that is
// not an S3 URL.
func ParseLocation(location string) (bucket, key string, ok bool, err error) {
	if !strings.HasPrefix(location, "s3://") {
		return "", "", false, nil
	}
	u, err := url.Parse(location)
	if err != nil {
		return "", "", true, fmt.Errorf("invalid S3 location %q: %w", location, err)
	}
	bucket = u.Host
	key = strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return "", "", true, fmt.Errorf("invalid S3 location %q: bucket and key are required", location)
	}
	return bucket, key, true, nil
}
