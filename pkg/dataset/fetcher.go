// Package dataset fetches remote capture files so scans can run against
// datasets published in object storage instead of local paths.
package dataset

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"time"

	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dd0wney/cluso-flowscan/pkg/logging"
)

// Location is a parsed s3:// dataset URL.
type Location struct {
	Bucket string
	Key    string
}

// String renders the location back in s3:// form.
func (l Location) String() string {
	return fmt.Sprintf("s3://%s/%s", l.Bucket, l.Key)
}

// ParseURL splits an s3://bucket/key URL into its parts.
func ParseURL(raw string) (Location, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Location{}, fmt.Errorf("invalid dataset URL %q: %w", raw, err)
	}
	if u.Scheme != "s3" {
		return Location{}, fmt.Errorf("unsupported dataset URL scheme %q (want s3)", u.Scheme)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if u.Host == "" || key == "" {
		return Location{}, fmt.Errorf("dataset URL %q must be s3://bucket/key", raw)
	}
	return Location{Bucket: u.Host, Key: key}, nil
}

// IsURL reports whether the string looks like a remote dataset location.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "s3://")
}

// Config configures a Fetcher. With no credentials set, the default AWS
// credential chain applies (environment, shared config, instance role).
type Config struct {
	Region    string
	Endpoint  string // non-empty for S3-compatible stores (MinIO etc.)
	AccessKey string
	SecretKey string
	Logger    logging.Logger
}

// Fetcher downloads dataset objects to local files.
type Fetcher struct {
	client *s3.Client
	logger logging.Logger
}

// NewFetcher builds an S3 client from the config.
func NewFetcher(ctx context.Context, cfg Config) (*Fetcher, error) {
	opts := []func(*awscfg.LoadOptions) error{}
	if cfg.Region != "" {
		opts = append(opts, awscfg.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" {
		opts = append(opts, awscfg.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}

	awsCfg, err := awscfg.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = &cfg.Endpoint
			o.UsePathStyle = true
		}
	})

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &Fetcher{
		client: client,
		logger: logger.With(logging.Component("dataset")),
	}, nil
}

// Fetch downloads the object at the s3:// URL to dst. The partial file
// is removed on failure.
func (f *Fetcher) Fetch(ctx context.Context, rawURL, dst string) error {
	loc, err := ParseURL(rawURL)
	if err != nil {
		return err
	}

	start := time.Now()
	f.logger.Info("fetching dataset",
		logging.String("bucket", loc.Bucket),
		logging.String("key", loc.Key),
		logging.Path(dst))

	obj, err := f.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &loc.Bucket,
		Key:    &loc.Key,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch %s: %w", loc, err)
	}
	defer obj.Body.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	written, err := io.Copy(out, obj.Body)
	if err != nil {
		out.Close()
		os.Remove(dst)
		return fmt.Errorf("failed to download %s: %w", loc, err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("failed to finish %s: %w", dst, err)
	}

	f.logger.Info("dataset fetched",
		logging.String("bucket", loc.Bucket),
		logging.String("key", loc.Key),
		logging.Int64("bytes", written),
		logging.Latency(time.Since(start)))
	return nil
}
