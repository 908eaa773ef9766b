package files

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-faster/errors"
)

// Disk stores uploads in a local directory.
type Disk struct {
	dir    string
	prefix string
}

// NewDisk returns a Disk rooted at dir, creating the directory if needed.
func NewDisk(dir, urlPrefix string) (*Disk, error) {
	if urlPrefix == "" {
		urlPrefix = DefaultURLPrefix
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "create upload dir %s", dir)
	}
	return &Disk{dir: dir, prefix: urlPrefix}, nil
}

// Save writes u under a fresh name and returns its location.
func (d *Disk) Save(ctx context.Context, u Upload) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	name := ObjectName(u.Filename)
	dst := filepath.Join(d.dir, name)

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", errors.Wrapf(err, "create %s", name)
	}
	if _, err := io.Copy(f, u.Body); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return "", errors.Wrapf(err, "write %s", name)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(dst)
		return "", errors.Wrapf(err, "close %s", name)
	}

	return location(d.prefix, name), nil
}

// Remove deletes the file behind loc. Removing a missing file is not an error.
func (d *Disk) Remove(_ context.Context, loc string) error {
	name, err := nameFromLocation(d.prefix, loc)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(d.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrapf(err, "remove %s", name)
	}
	return nil
}

// Handler serves stored files by name. Mount it with http.StripPrefix.
func (d *Disk) Handler() http.Handler {
	return http.FileServer(http.Dir(d.dir))
}

// Ping reports whether the upload directory is still present.
func (d *Disk) Ping(_ context.Context) error {
	st, err := os.Stat(d.dir)
	if err != nil {
		return errors.Wrap(err, "stat upload dir")
	}
	if !st.IsDir() {
		return errors.Errorf("%s is not a directory", d.dir)
	}
	return nil
}
