package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"docvault/internal/config"
)

func init() {
	// The remote backend owns the retry policy.
	minio.MaxRetry = 1
}

// minioClient implements ObjectClient using minio-go against any S3-compatible service.
// It is safe for concurrent use by multiple goroutines.
type minioClient struct {
	client *minio.Client
	bucket string
	region string
}

// NewMinIOClient creates a minio-go client for cfg signing requests for region.
func NewMinIOClient(cfg config.RemoteConfig, region string, connectTimeout time.Duration) (ObjectClient, error) {
	endpoint, secure := splitEndpoint(cfg.Endpoint, cfg.UseSSL)

	lookup := minio.BucketLookupAuto
	if cfg.PathStyle {
		lookup = minio.BucketLookupPath
	}

	cli, err := minio.New(endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       secure,
		Region:       region,
		BucketLookup: lookup,
		Transport:    newHTTPTransport(connectTimeout),
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}

	return &minioClient{client: cli, bucket: cfg.Bucket, region: region}, nil
}

// splitEndpoint accepts "host:port" or a URL and reports whether TLS is used.
func splitEndpoint(endpoint string, useSSL bool) (string, bool) {
	if u, err := url.Parse(endpoint); err == nil && u.Host != "" {
		return u.Host, u.Scheme == "https"
	}
	return strings.TrimSuffix(endpoint, "/"), useSSL
}

func (m *minioClient) Region() string { return m.region }

func (m *minioClient) PutObject(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	info, err := m.client.PutObject(ctx, m.bucket, key, r, opt.Size, minio.PutObjectOptions{
		ContentType:  opt.ContentType,
		UserMetadata: opt.Metadata,
	})
	if err != nil {
		return ObjectInfo{}, m.classify("minio put", err)
	}
	lastModified := info.LastModified
	if lastModified.IsZero() {
		lastModified = time.Now()
	}
	return ObjectInfo{
		Key:          key,
		Size:         info.Size,
		ETag:         info.ETag,
		VersionID:    info.VersionID,
		ContentType:  opt.ContentType,
		LastModified: lastModified,
		Metadata:     opt.Metadata,
	}, nil
}

func (m *minioClient) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, ObjectInfo{}, m.classify("minio get", err)
	}
	// GetObject is lazy; Stat performs the request and surfaces errors.
	st, err := obj.Stat()
	if err != nil {
		_ = obj.Close()
		return nil, ObjectInfo{}, m.classify("minio get", err)
	}
	return obj, minioObjectInfo(key, st), nil
}

func (m *minioClient) StatObject(ctx context.Context, key string) (ObjectInfo, error) {
	st, err := m.client.StatObject(ctx, m.bucket, key, minio.StatObjectOptions{})
	if err != nil {
		return ObjectInfo{}, m.classify("minio stat", err)
	}
	return minioObjectInfo(key, st), nil
}

func (m *minioClient) RemoveObject(ctx context.Context, key string) error {
	if err := m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return m.classify("minio remove", err)
	}
	return nil
}

func (m *minioClient) PresignGetObject(ctx context.Context, key string, ttl time.Duration) (string, error) {
	u, err := m.client.PresignedGetObject(ctx, m.bucket, key, ttl, url.Values{})
	if err != nil {
		return "", m.classify("minio presign", err)
	}
	return u.String(), nil
}

func (m *minioClient) BucketExists(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return m.classify("minio bucket exists", err)
	}
	if !ok {
		return fmt.Errorf("minio bucket exists: %w: bucket %q not found", ErrAccessDenied, m.bucket)
	}
	return nil
}

func minioObjectInfo(key string, st minio.ObjectInfo) ObjectInfo {
	return ObjectInfo{
		Key:          key,
		Size:         st.Size,
		ETag:         st.ETag,
		VersionID:    st.VersionID,
		ContentType:  st.ContentType,
		LastModified: st.LastModified,
		Metadata:     st.UserMetadata,
	}
}

// classify maps a minio-go error onto the storage taxonomy.
func (m *minioClient) classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classified(ErrTransient, op, err)
	}

	resp := minio.ToErrorResponse(err)
	if resp.Code == "" && resp.StatusCode == 0 {
		// Not a service response: DNS, dial, TLS or a dropped connection.
		return classified(ErrTransient, op, err)
	}

	switch {
	case resp.Code == "AuthorizationHeaderMalformed",
		resp.Code == "InvalidRegion",
		resp.Code == "PermanentRedirect",
		resp.StatusCode == http.StatusMovedPermanently:
		return &RegionMismatchError{Region: resp.Region, Cause: fmt.Sprintf("%s: %v", op, err)}
	case resp.Code == "AccessDenied" && resp.Region != "" && resp.Region != m.region:
		return &RegionMismatchError{Region: resp.Region, Cause: fmt.Sprintf("%s: %v", op, err)}
	case resp.Code == "NoSuchKey", resp.Code == "NotFound",
		resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket":
		return classified(ErrNotFound, op, err)
	case resp.Code == "AccessDenied", resp.Code == "InvalidAccessKeyId",
		resp.Code == "SignatureDoesNotMatch", resp.Code == "NoSuchBucket",
		resp.StatusCode == http.StatusForbidden, resp.StatusCode == http.StatusUnauthorized:
		return classified(ErrAccessDenied, op, err)
	case resp.Code == "SlowDown", resp.Code == "RequestTimeout",
		resp.Code == "InternalError", resp.Code == "ServiceUnavailable",
		isTransientStatus(resp.StatusCode):
		return classified(ErrTransient, op, err)
	}
	return fmt.Errorf("%s: %v", op, err)
}

var _ ObjectClient = (*minioClient)(nil)
