package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog"

	"docvault/internal/config"
	"docvault/internal/metrics"
	"docvault/internal/model"
)

// MaxPresignTTL is the longest validity S3 signature v4 accepts.
const MaxPresignTTL = 7 * 24 * time.Hour

// RemoteOptions tune the remote backend. Zero values fall back to defaults.
type RemoteOptions struct {
	Retry            config.RetryConfig
	OperationTimeout time.Duration
	HealthRecheck    time.Duration
	Logger           *zerolog.Logger
	Metrics          *metrics.Storage
	Now              func() time.Time
}

func (o *RemoteOptions) applyDefaults() {
	if o.Retry.MaxAttempts <= 0 {
		o.Retry.MaxAttempts = 3
	}
	if o.Retry.BaseDelay <= 0 {
		o.Retry.BaseDelay = 200 * time.Millisecond
	}
	if o.Retry.Factor < 1 {
		o.Retry.Factor = 2
	}
	if o.Retry.Jitter < 0 || o.Retry.Jitter > 1 {
		o.Retry.Jitter = 0.5
	}
	if o.OperationTimeout <= 0 {
		o.OperationTimeout = 30 * time.Second
	}
	if o.HealthRecheck <= 0 {
		o.HealthRecheck = 30 * time.Second
	}
	if o.Logger == nil {
		nop := zerolog.Nop()
		o.Logger = &nop
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Remote stores objects in an S3-compatible bucket. Calls go through the
// region resolver, transient failures are retried with exponential backoff
// and every attempt is bounded by the operation timeout.
type Remote struct {
	resolver *RegionResolver
	opts     RemoteOptions
	log      zerolog.Logger
	health   atomic.Pointer[Health]
}

// NewRemote creates a remote backend for the configured region.
func NewRemote(region string, factory ClientFactory, opts RemoteOptions) (*Remote, error) {
	opts.applyDefaults()
	resolver, err := NewRegionResolver(region, factory, *opts.Logger, opts.Metrics)
	if err != nil {
		return nil, err
	}
	resolver.now = opts.Now
	return &Remote{
		resolver: resolver,
		opts:     opts,
		log:      opts.Logger.With().Str("component", "remote_storage").Logger(),
	}, nil
}

// Region returns the signing region currently in use.
func (r *Remote) Region() string { return r.resolver.Region() }

func (r *Remote) Type() model.StorageType { return model.StorageRemote }

// Put uploads the object. Retries and region replays need to rewind the body,
// so body should implement io.Seeker; otherwise only a single attempt is made.
func (r *Remote) Put(ctx context.Context, key string, body io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return ObjectInfo{}, err
	}

	rewind := func() error { return errBodyNotRewindable }
	if s, ok := body.(io.Seeker); ok {
		start, err := s.Seek(0, io.SeekCurrent)
		if err != nil {
			return ObjectInfo{}, fmt.Errorf("remote put: %w", err)
		}
		rewind = func() error {
			_, err := s.Seek(start, io.SeekStart)
			return err
		}
	}

	var info ObjectInfo
	err := r.call(ctx, "put", rewind, func(c ObjectClient) error {
		actx, cancel := context.WithTimeout(ctx, r.opts.OperationTimeout)
		defer cancel()
		var err error
		info, err = c.PutObject(actx, key, body, opt)
		return err
	})
	if err != nil {
		return ObjectInfo{}, err
	}
	if opt.Size >= 0 && info.Size != opt.Size {
		r.log.Error().
			Str("event", "size_mismatch").
			Str("key", key).
			Int64("expected", opt.Size).
			Int64("stored", info.Size).
			Msg("remote object size differs from declared size")
		if derr := r.Delete(context.WithoutCancel(ctx), key); derr != nil && !errors.Is(derr, ErrNotFound) {
			r.log.Error().Str("event", "size_mismatch_cleanup_failed").Str("key", key).Err(derr).Send()
		}
		return ObjectInfo{}, fmt.Errorf("remote put: %w: stored %d bytes, expected %d", ErrSizeMismatch, info.Size, opt.Size)
	}
	return info, nil
}

// Get streams the object. The operation timeout spans the whole read and is
// released when the returned body is closed.
func (r *Remote) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, ObjectInfo{}, err
	}

	var (
		body io.ReadCloser
		info ObjectInfo
	)
	err := r.call(ctx, "get", nil, func(c ObjectClient) error {
		actx, cancel := context.WithTimeout(ctx, r.opts.OperationTimeout)
		rc, oi, err := c.GetObject(actx, key)
		if err != nil {
			cancel()
			return err
		}
		body, info = &cancelOnClose{ReadCloser: rc, cancel: cancel}, oi
		return nil
	})
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	return body, info, nil
}

// Delete removes the object, reporting ErrNotFound when it does not exist.
func (r *Remote) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	err := r.call(ctx, "stat", nil, func(c ObjectClient) error {
		actx, cancel := context.WithTimeout(ctx, r.opts.OperationTimeout)
		defer cancel()
		_, err := c.StatObject(actx, key)
		return err
	})
	if err != nil {
		return err
	}

	return r.call(ctx, "delete", nil, func(c ObjectClient) error {
		actx, cancel := context.WithTimeout(ctx, r.opts.OperationTimeout)
		defer cancel()
		return c.RemoveObject(actx, key)
	})
}

// PresignGet returns a read-only URL for key valid for ttl.
func (r *Remote) PresignGet(ctx context.Context, key string, ttl time.Duration) (PresignedURL, error) {
	if err := validateKey(key); err != nil {
		return PresignedURL{}, err
	}
	if ttl <= 0 || ttl > MaxPresignTTL {
		return PresignedURL{}, fmt.Errorf("%w: %s", ErrInvalidTTL, ttl)
	}

	var u string
	issuedAt := r.opts.Now()
	err := r.call(ctx, "presign", nil, func(c ObjectClient) error {
		actx, cancel := context.WithTimeout(ctx, r.opts.OperationTimeout)
		defer cancel()
		var err error
		u, err = c.PresignGetObject(actx, key, ttl)
		return err
	})
	if err != nil {
		return PresignedURL{}, err
	}
	return PresignedURL{URL: u, ExpiresAt: issuedAt.Add(ttl)}, nil
}

// HealthCheck checks that the bucket is reachable. Results are cached for the recheck interval.
// The check is bounded by the operation timeout, not by ctx cancellation.
func (r *Remote) HealthCheck(ctx context.Context) Health {
	now := r.opts.Now()
	if h := r.health.Load(); h != nil && now.Sub(h.CheckedAt) < r.opts.HealthRecheck {
		return *h
	}

	// Caller cancellation must never be cached as degraded.
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.opts.OperationTimeout)
	defer cancel()
	err := r.resolver.Do(pctx, "health", func(c ObjectClient) error {
		return c.BucketExists(pctx)
	}, nil)

	h := healthy(now)
	if err != nil {
		h = degraded(now, err.Error())
	}
	r.health.Store(&h)
	return h
}

// markDegraded records a failure observed outside of a health check so that
// callers stop sending work here until the next recheck.
func (r *Remote) markDegraded(reason string) {
	h := degraded(r.opts.Now(), reason)
	r.health.Store(&h)
}

// call wraps one logical operation: the region resolver inside a bounded
// exponential retry of transient failures.
func (r *Remote) call(ctx context.Context, op string, rewind func() error, fn func(ObjectClient) error) error {
	retryable := true
	if rewind != nil {
		retryable = rewind() == nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.opts.Retry.BaseDelay
	b.Multiplier = r.opts.Retry.Factor
	b.RandomizationFactor = r.opts.Retry.Jitter

	attempt := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		attempt++
		if attempt > 1 && rewind != nil {
			if err := rewind(); err != nil {
				return struct{}{}, backoff.Permanent(fmt.Errorf("remote %s: rewind body: %w", op, err))
			}
		}
		err := r.resolver.Do(ctx, op, fn, rewind)
		if err == nil {
			return struct{}{}, nil
		}
		if errors.Is(err, ErrTransient) && retryable {
			return struct{}{}, err
		}
		return struct{}{}, backoff.Permanent(err)
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(r.opts.Retry.MaxAttempts)),
		backoff.WithNotify(func(err error, wait time.Duration) {
			r.opts.Metrics.Retry(op)
			r.log.Warn().
				Str("event", "retry").
				Str("operation", op).
				Int("attempt", attempt).
				Dur("wait", wait).
				Err(err).
				Msg("transient remote storage failure")
		}),
	)

	switch {
	case err == nil:
		r.opts.Metrics.Operation(string(model.StorageRemote), op, "ok")
		return nil
	case errors.Is(err, ErrTransient):
		r.opts.Metrics.Operation(string(model.StorageRemote), op, "transient")
		r.markDegraded(err.Error())
		return fmt.Errorf("remote %s failed after %d attempts: %w", op, attempt, err)
	case errors.Is(err, ErrAccessDenied):
		r.opts.Metrics.Operation(string(model.StorageRemote), op, "access_denied")
		return err
	case errors.Is(err, ErrNotFound):
		r.opts.Metrics.Operation(string(model.StorageRemote), op, "not_found")
		return err
	default:
		r.opts.Metrics.Operation(string(model.StorageRemote), op, "error")
		return err
	}
}

var errBodyNotRewindable = errors.New("request body cannot be rewound")

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

var _ Backend = (*Remote)(nil)
