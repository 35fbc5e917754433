package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"
)

// stubBucket is an in-memory bucket shared by every client a factory builds,
// so region corrections are observable across clients.
type stubBucket struct {
	mu sync.Mutex

	name     string
	region   string
	reported *string

	objects  map[string][]byte
	failures map[string][]error
	calls    map[string]int
	lastCtx  context.Context

	factoryCalls  int
	factoryRegion []string

	// now stamps presign grants; tests swap in a stub clock.
	now    func() time.Time
	grants map[string]presignGrant
}

// presignGrant is what the stub service remembers about one signed URL.
type presignGrant struct {
	key     string
	expires time.Time
}

func newStubBucket(region string) *stubBucket {
	return &stubBucket{
		name:     "docs",
		region:   region,
		objects:  map[string][]byte{},
		failures: map[string][]error{},
		calls:    map[string]int{},
		now:      time.Now,
		grants:   map[string]presignGrant{},
	}
}

// reportRegion overrides the region named in mismatch errors.
func (b *stubBucket) reportRegion(region string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.reported = &region
}

func (b *stubBucket) failNext(op string, errs ...error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures[op] = append(b.failures[op], errs...)
}

func (b *stubBucket) callCount(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *stubBucket) object(key string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[key]
	return data, ok
}

func (b *stubBucket) factory() ClientFactory {
	return func(region string) (ObjectClient, error) {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.factoryCalls++
		b.factoryRegion = append(b.factoryRegion, region)
		return &stubClient{b: b, region: region}, nil
	}
}

func (b *stubBucket) factoryCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.factoryCalls
}

type stubClient struct {
	b      *stubBucket
	region string
}

func (c *stubClient) check(op string) error {
	b := c.b
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	if q := b.failures[op]; len(q) > 0 {
		err := q[0]
		b.failures[op] = q[1:]
		if err != nil {
			return err
		}
	}
	if c.region != b.region {
		reported := b.region
		if b.reported != nil {
			reported = *b.reported
		}
		return &RegionMismatchError{Region: reported, Cause: "stub " + op}
	}
	return nil
}

func (c *stubClient) Region() string { return c.region }

func (c *stubClient) PutObject(_ context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return ObjectInfo{}, err
	}
	if err := c.check("put"); err != nil {
		return ObjectInfo{}, err
	}
	c.b.mu.Lock()
	c.b.objects[key] = data
	c.b.mu.Unlock()
	return ObjectInfo{
		Key:         key,
		Size:        int64(len(data)),
		ETag:        fmt.Sprintf("etag-%d", len(data)),
		VersionID:   "v1",
		ContentType: opt.ContentType,
	}, nil
}

func (c *stubClient) GetObject(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := c.check("get"); err != nil {
		return nil, ObjectInfo{}, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	c.b.lastCtx = ctx
	data, ok := c.b.objects[key]
	if !ok {
		return nil, ObjectInfo{}, fmt.Errorf("stub get: %w", ErrNotFound)
	}
	return io.NopCloser(bytes.NewReader(data)), ObjectInfo{Key: key, Size: int64(len(data)), ETag: fmt.Sprintf("etag-%d", len(data))}, nil
}

func (c *stubClient) StatObject(_ context.Context, key string) (ObjectInfo, error) {
	if err := c.check("stat"); err != nil {
		return ObjectInfo{}, err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	data, ok := c.b.objects[key]
	if !ok {
		return ObjectInfo{}, fmt.Errorf("stub stat: %w", ErrNotFound)
	}
	return ObjectInfo{Key: key, Size: int64(len(data))}, nil
}

func (c *stubClient) RemoveObject(_ context.Context, key string) error {
	if err := c.check("remove"); err != nil {
		return err
	}
	c.b.mu.Lock()
	defer c.b.mu.Unlock()
	delete(c.b.objects, key)
	return nil
}

func (c *stubClient) PresignGetObject(_ context.Context, key string, ttl time.Duration) (string, error) {
	if err := c.check("presign"); err != nil {
		return "", err
	}
	c.b.mu.Lock()
	sig := fmt.Sprintf("sig-%d", len(c.b.grants)+1)
	c.b.grants[sig] = presignGrant{key: key, expires: c.b.now().Add(ttl)}
	c.b.mu.Unlock()

	q := url.Values{}
	q.Set("X-Amz-Expires", fmt.Sprintf("%d", int(ttl.Seconds())))
	q.Set("X-Amz-Region", c.region)
	q.Set("X-Amz-Signature", sig)
	return fmt.Sprintf("https://stub.local/%s/%s?%s", c.b.name, key, q.Encode()), nil
}

// resolve serves a presigned URL the way the object store would: the
// signature must exist, name the requested key and not have expired.
func (b *stubBucket) resolve(rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, err
	}
	key := strings.TrimPrefix(u.Path, "/"+b.name+"/")

	b.mu.Lock()
	defer b.mu.Unlock()
	g, ok := b.grants[u.Query().Get("X-Amz-Signature")]
	switch {
	case !ok:
		return nil, fmt.Errorf("stub resolve: unknown signature: %w", ErrAccessDenied)
	case g.key != key:
		return nil, fmt.Errorf("stub resolve: signature does not cover %s: %w", key, ErrAccessDenied)
	case !b.now().Before(g.expires):
		return nil, fmt.Errorf("stub resolve: url expired: %w", ErrAccessDenied)
	}
	data, ok := b.objects[key]
	if !ok {
		return nil, fmt.Errorf("stub resolve: %w", ErrNotFound)
	}
	return data, nil
}

func (c *stubClient) BucketExists(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("stub bucket: %w", err)
	}
	return c.check("bucket")
}

// stubClock is a manually advanced clock.
type stubClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStubClock() *stubClock {
	return &stubClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)}
}

func (c *stubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *stubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
