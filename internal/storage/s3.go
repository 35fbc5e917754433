package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"

	"docvault/internal/config"
)

const bucketRegionHeader = "X-Amz-Bucket-Region"

// s3Client implements ObjectClient with the AWS SDK v2.
type s3Client struct {
	client    *s3.Client
	presigner *s3.PresignClient
	bucket    string
	region    string
}

// NewS3Client creates an AWS SDK v2 client for cfg signing requests for region.
func NewS3Client(cfg config.RemoteConfig, region string, connectTimeout time.Duration) ObjectClient {
	opts := []func(*s3.Options){
		func(o *s3.Options) {
			o.Region = region
			o.Credentials = credentials.NewStaticCredentialsProvider(
				cfg.AccessKey,
				cfg.SecretKey,
				"",
			)
			o.HTTPClient = &http.Client{Transport: newHTTPTransport(connectTimeout)}
			o.Retryer = aws.NopRetryer{}
		},
	}

	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = cfg.PathStyle
		})
	}

	client := s3.New(s3.Options{}, opts...)
	return &s3Client{
		client:    client,
		presigner: s3.NewPresignClient(client),
		bucket:    cfg.Bucket,
		region:    region,
	}
}

func (s *s3Client) Region() string { return s.region }

func (s *s3Client) PutObject(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	// The SDK needs a seekable body to compute the payload hash.
	body, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return ObjectInfo{}, fmt.Errorf("s3 put: read input: %w", err)
		}
		body = bytes.NewReader(data)
	}

	input := &s3.PutObjectInput{
		Bucket:   aws.String(s.bucket),
		Key:      aws.String(key),
		Body:     body,
		Metadata: opt.Metadata,
	}
	if opt.Size >= 0 {
		input.ContentLength = aws.Int64(opt.Size)
	}
	if opt.ContentType != "" {
		input.ContentType = aws.String(opt.ContentType)
	}

	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return ObjectInfo{}, s.classify("s3 put", err)
	}

	size := opt.Size
	if out.Size != nil {
		size = *out.Size
	}
	return ObjectInfo{
		Key:          key,
		Size:         size,
		ETag:         aws.ToString(out.ETag),
		VersionID:    aws.ToString(out.VersionId),
		ContentType:  opt.ContentType,
		LastModified: time.Now(),
		Metadata:     opt.Metadata,
	}, nil
}

func (s *s3Client) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ObjectInfo{}, s.classify("s3 get", err)
	}
	return out.Body, ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		VersionID:    aws.ToString(out.VersionId),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
		Metadata:     out.Metadata,
	}, nil
}

func (s *s3Client) StatObject(ctx context.Context, key string) (ObjectInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return ObjectInfo{}, s.classify("s3 head", err)
	}
	return ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ETag:         aws.ToString(out.ETag),
		VersionID:    aws.ToString(out.VersionId),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
		Metadata:     out.Metadata,
	}, nil
}

func (s *s3Client) RemoveObject(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.classify("s3 delete", err)
	}
	return nil
}

func (s *s3Client) PresignGetObject(ctx context.Context, key string, ttl time.Duration) (string, error) {
	out, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, func(po *s3.PresignOptions) {
		po.Expires = ttl
	})
	if err != nil {
		return "", s.classify("s3 presign", err)
	}
	return out.URL, nil
}

func (s *s3Client) BucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	if err != nil {
		return s.classify("s3 head bucket", err)
	}
	return nil
}

// classify maps an AWS SDK error onto the storage taxonomy. The canonical
// bucket region is read from the X-Amz-Bucket-Region response header.
func (s *s3Client) classify(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return classified(ErrTransient, op, err)
	}

	var respErr *smithyhttp.ResponseError
	if !errors.As(err, &respErr) || respErr.Response == nil || respErr.Response.Response == nil {
		return classified(ErrTransient, op, err)
	}
	status := respErr.HTTPStatusCode()
	region := respErr.Response.Header.Get(bucketRegionHeader)

	code := ""
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code = apiErr.ErrorCode()
	}

	switch {
	case code == "AuthorizationHeaderMalformed", code == "InvalidRegion",
		code == "PermanentRedirect", status == http.StatusMovedPermanently:
		return &RegionMismatchError{Region: region, Cause: fmt.Sprintf("%s: %v", op, err)}
	case status == http.StatusBadRequest && region != "" && region != s.region:
		return &RegionMismatchError{Region: region, Cause: fmt.Sprintf("%s: %v", op, err)}
	case code == "AccessDenied" && region != "" && region != s.region:
		return &RegionMismatchError{Region: region, Cause: fmt.Sprintf("%s: %v", op, err)}
	}

	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	var noSuchBucket *types.NoSuchBucket
	switch {
	case errors.As(err, &noSuchBucket), code == "NoSuchBucket":
		return classified(ErrAccessDenied, op, err)
	case errors.As(err, &noSuchKey), errors.As(err, &notFound),
		code == "NoSuchKey", code == "NotFound", status == http.StatusNotFound:
		return classified(ErrNotFound, op, err)
	case code == "AccessDenied", code == "Forbidden", code == "InvalidAccessKeyId",
		code == "SignatureDoesNotMatch", status == http.StatusForbidden, status == http.StatusUnauthorized:
		return classified(ErrAccessDenied, op, err)
	case code == "SlowDown", code == "RequestTimeout", isTransientStatus(status):
		return classified(ErrTransient, op, err)
	}
	return fmt.Errorf("%s: %v", op, err)
}

var _ ObjectClient = (*s3Client)(nil)
