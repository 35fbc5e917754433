package storage

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the key does not exist in the backend.
	ErrNotFound = errors.New("object not found")
	// ErrAccessDenied means credentials or bucket configuration do not permit the operation.
	ErrAccessDenied = errors.New("storage access denied")
	// ErrTransient covers network failures, timeouts, throttling and 5xx responses.
	ErrTransient = errors.New("storage temporarily unavailable")
	// ErrUnsupported is returned for operations a backend cannot perform.
	ErrUnsupported = errors.New("operation not supported by backend")
	// ErrSizeMismatch means the stored byte count differs from the declared size.
	ErrSizeMismatch = errors.New("object size mismatch")
	// ErrRegionMismatch is handled by the remote backend and never returned to callers.
	ErrRegionMismatch = errors.New("bucket region mismatch")
	// ErrInvalidKey rejects keys that would escape the backend namespace.
	ErrInvalidKey = errors.New("invalid object key")
)

// RegionMismatchError carries the region the service reported for the bucket.
type RegionMismatchError struct {
	Region string
	Cause  string
}

func (e *RegionMismatchError) Error() string {
	if e.Region == "" {
		return fmt.Sprintf("bucket region mismatch: %s", e.Cause)
	}
	return fmt.Sprintf("bucket region mismatch: bucket lives in %q: %s", e.Region, e.Cause)
}

func (e *RegionMismatchError) Is(target error) bool {
	return target == ErrRegionMismatch
}

// classified wraps a vendor error message under a taxonomy sentinel without
// exposing the vendor type.
func classified(sentinel error, op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, sentinel, err)
}

// ErrInvalidTTL rejects presign lifetimes outside (0, MaxPresignTTL].
var ErrInvalidTTL = errors.New("presign ttl out of range")
