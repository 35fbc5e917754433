package storage

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"docvault/internal/config"
)

// ObjectClient is a bucket-scoped driver for an S3-compatible service.
// Implementations classify every vendor error into the storage taxonomy:
// *RegionMismatchError, ErrAccessDenied, ErrNotFound or ErrTransient.
type ObjectClient interface {
	// Region is the signing region this client was built for.
	Region() string
	PutObject(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	StatObject(ctx context.Context, key string) (ObjectInfo, error)
	RemoveObject(ctx context.Context, key string) error
	PresignGetObject(ctx context.Context, key string, ttl time.Duration) (string, error)
	// BucketExists returns nil when the configured bucket is reachable.
	BucketExists(ctx context.Context) error
}

// ClientFactory builds an ObjectClient signing for region.
type ClientFactory func(region string) (ObjectClient, error)

// NewClientFactory returns the factory for the configured driver.
func NewClientFactory(cfg config.RemoteConfig, connectTimeout time.Duration) (ClientFactory, error) {
	if cfg.Endpoint == "" && cfg.Driver != "s3" {
		return nil, fmt.Errorf("remote storage endpoint is required")
	}
	if cfg.AccessKey == "" || cfg.SecretKey == "" {
		return nil, fmt.Errorf("remote storage credentials are required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("remote storage bucket is required")
	}

	switch strings.ToLower(cfg.Driver) {
	case "", "minio":
		return func(region string) (ObjectClient, error) {
			return NewMinIOClient(cfg, region, connectTimeout)
		}, nil
	case "s3":
		return func(region string) (ObjectClient, error) {
			return NewS3Client(cfg, region, connectTimeout), nil
		}, nil
	default:
		return nil, fmt.Errorf("unsupported remote storage driver: %s", cfg.Driver)
	}
}

// newHTTPTransport bounds connection establishment; whole-operation limits
// are applied per call by the remote backend. Requests are traced as client spans.
func newHTTPTransport(connectTimeout time.Duration) http.RoundTripper {
	if connectTimeout <= 0 {
		connectTimeout = 5 * time.Second
	}
	base := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   16,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   connectTimeout,
		ExpectContinueTimeout: time.Second,
	}
	return otelhttp.NewTransport(base,
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return "storage " + r.Method
		}),
	)
}

// isTransientStatus reports HTTP statuses worth retrying.
func isTransientStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return code >= 500
}
