package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"time"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"

	"docvault/internal/model"
)

const (
	localTempDir = ".tmp"
	localDirPerm = 0o750
)

// Local stores objects on a filesystem rooted at a configured directory.
// Objects are written to a temp file and renamed into place, so a key is
// either absent or complete.
type Local struct {
	fs  billy.Filesystem
	now func() time.Time
}

// NewLocal returns a Local backend over fs.
func NewLocal(fs billy.Filesystem) *Local {
	return &Local{fs: fs, now: time.Now}
}

// NewLocalDir returns a Local backend rooted at dir on the OS filesystem.
func NewLocalDir(dir string) (*Local, error) {
	if dir == "" {
		return nil, fmt.Errorf("local storage root is required")
	}
	if err := os.MkdirAll(dir, localDirPerm); err != nil {
		return nil, fmt.Errorf("create local storage root: %w", err)
	}
	return NewLocal(osfs.New(dir)), nil
}

func (l *Local) Type() model.StorageType { return model.StorageLocal }

func (l *Local) Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return ObjectInfo{}, err
	}
	if err := l.fs.MkdirAll(localTempDir, localDirPerm); err != nil {
		return ObjectInfo{}, fmt.Errorf("local put: %w", err)
	}

	tmp, err := l.fs.TempFile(localTempDir, "upload-")
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("local put: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	n, copyErr := io.Copy(tmp, &ctxReader{ctx: ctx, r: r})
	closeErr := tmp.Close()

	fail := func(err error) (ObjectInfo, error) {
		_ = l.fs.Remove(tmpName)
		return ObjectInfo{}, err
	}
	if copyErr != nil {
		return fail(fmt.Errorf("local put: write: %w", copyErr))
	}
	if closeErr != nil {
		return fail(fmt.Errorf("local put: close: %w", closeErr))
	}
	if opt.Size >= 0 && n != opt.Size {
		return fail(fmt.Errorf("local put: %w: wrote %d bytes, expected %d", ErrSizeMismatch, n, opt.Size))
	}

	if err := l.fs.MkdirAll(path.Dir(key), localDirPerm); err != nil {
		return fail(fmt.Errorf("local put: create directory: %w", err))
	}
	if err := l.fs.Rename(tmpName, key); err != nil {
		return fail(fmt.Errorf("local put: rename: %w", err))
	}

	return ObjectInfo{
		Key:          key,
		Size:         n,
		ContentType:  opt.ContentType,
		LastModified: l.now(),
		Metadata:     opt.Metadata,
	}, nil
}

func (l *Local) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := validateKey(key); err != nil {
		return nil, ObjectInfo{}, err
	}
	if err := ctx.Err(); err != nil {
		return nil, ObjectInfo{}, err
	}

	st, err := l.fs.Stat(key)
	if err != nil {
		return nil, ObjectInfo{}, localError("local get", err)
	}
	f, err := l.fs.Open(key)
	if err != nil {
		return nil, ObjectInfo{}, localError("local get", err)
	}

	return f, ObjectInfo{
		Key:          key,
		Size:         st.Size(),
		LastModified: st.ModTime(),
	}, nil
}

func (l *Local) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := l.fs.Stat(key); err != nil {
		return localError("local delete", err)
	}
	if err := l.fs.Remove(key); err != nil {
		return localError("local delete", err)
	}
	return nil
}

// PresignGet is not available for files on local disk.
func (l *Local) PresignGet(context.Context, string, time.Duration) (PresignedURL, error) {
	return PresignedURL{}, ErrUnsupported
}

// HealthCheck verifies the root is writable by creating and removing a temp file.
func (l *Local) HealthCheck(ctx context.Context) Health {
	now := l.now()
	if err := ctx.Err(); err != nil {
		return degraded(now, err.Error())
	}
	if err := l.fs.MkdirAll(localTempDir, localDirPerm); err != nil {
		return degraded(now, "root not writable: "+err.Error())
	}
	f, err := l.fs.TempFile(localTempDir, "health-")
	if err != nil {
		return degraded(now, "root not writable: "+err.Error())
	}
	name := f.Name()
	_, werr := f.Write([]byte("ok"))
	_ = f.Close()
	_ = l.fs.Remove(name)
	if werr != nil {
		return degraded(now, "root not writable: "+werr.Error())
	}
	return healthy(now)
}

func localError(op string, err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// ctxReader stops a copy as soon as ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}

var _ Backend = (*Local)(nil)
