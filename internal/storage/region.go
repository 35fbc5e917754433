package storage

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"docvault/internal/metrics"
)

type regionState struct {
	client      ObjectClient
	region      string
	correctedAt time.Time
}

// RegionResolver owns the remote client and heals it when the service reports
// that the bucket lives in a different region. A correction is applied at most
// once per call and then kept for the life of the process.
type RegionResolver struct {
	factory ClientFactory
	state   atomic.Pointer[regionState]
	now     func() time.Time
	log     zerolog.Logger
	metrics *metrics.Storage
}

// NewRegionResolver builds the initial client for region.
func NewRegionResolver(region string, factory ClientFactory, log zerolog.Logger, m *metrics.Storage) (*RegionResolver, error) {
	client, err := factory(region)
	if err != nil {
		return nil, err
	}
	r := &RegionResolver{
		factory: factory,
		now:     time.Now,
		log:     log.With().Str("component", "region_resolver").Logger(),
		metrics: m,
	}
	r.state.Store(&regionState{client: client, region: region})
	return r, nil
}

// Region returns the region currently used for signing.
func (r *RegionResolver) Region() string { return r.state.Load().region }

// CorrectedAt reports when the region was last corrected, or the zero time.
func (r *RegionResolver) CorrectedAt() time.Time { return r.state.Load().correctedAt }

// Do runs fn against the current client. When fn reports a region mismatch
// that names a different region, the client is rebuilt for that region,
// rewind (if any) restores the request body and fn is replayed exactly once.
// Mismatches that cannot be healed are reported as ErrAccessDenied.
func (r *RegionResolver) Do(ctx context.Context, op string, fn func(ObjectClient) error, rewind func() error) error {
	used := r.state.Load()
	err := fn(used.client)

	var mismatch *RegionMismatchError
	if !errors.As(err, &mismatch) {
		return err
	}

	next, cerr := r.correct(used, mismatch.Region)
	if cerr != nil {
		r.log.Error().
			Str("event", "region_unresolvable").
			Str("operation", op).
			Str("region", used.region).
			Str("reported_region", mismatch.Region).
			Err(cerr).
			Msg("bucket unreachable with this configuration")
		return fmt.Errorf("%s: %w: bucket unreachable with this configuration: %v", op, ErrAccessDenied, cerr)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if rewind != nil {
		if err := rewind(); err != nil {
			return fmt.Errorf("%s: replay after region correction: %w", op, err)
		}
	}

	err = fn(next.client)
	if errors.As(err, &mismatch) {
		r.log.Error().
			Str("event", "region_unresolvable").
			Str("operation", op).
			Str("region", next.region).
			Str("reported_region", mismatch.Region).
			Msg("region mismatch persisted after correction")
		return fmt.Errorf("%s: %w: bucket unreachable with this configuration: %v", op, ErrAccessDenied, mismatch)
	}
	return err
}

func (r *RegionResolver) correct(used *regionState, region string) (*regionState, error) {
	if region == "" {
		return nil, errors.New("service did not report the bucket region")
	}
	if region == used.region {
		return nil, fmt.Errorf("service reported region %q which is already in use", region)
	}

	// A concurrent call may already have healed the client.
	if cur := r.state.Load(); cur != used && cur.region == region {
		return cur, nil
	}

	client, err := r.factory(region)
	if err != nil {
		return nil, fmt.Errorf("build client for region %q: %w", region, err)
	}
	next := &regionState{client: client, region: region, correctedAt: r.now()}
	if !r.state.CompareAndSwap(used, next) {
		if cur := r.state.Load(); cur.region == region {
			return cur, nil
		}
		r.state.Store(next)
	}

	r.metrics.RegionCorrected(region)
	r.log.Warn().
		Str("event", "region_corrected").
		Str("from", used.region).
		Str("to", region).
		Msg("remote client rebuilt for bucket region")
	return next, nil
}
