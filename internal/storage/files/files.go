// Package files stores uploaded product images and serves them back.
//
// Each backend returns a location of the form <URLPrefix>/<name>, where name
// is generated by ObjectName and never collides with a previous upload.
package files

import (
	"io"
	"path"
	"path/filepath"
	"strings"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
)

// DefaultURLPrefix is the path under which stored images are served.
const DefaultURLPrefix = "/uploads"

// ErrUnknownLocation is returned when a location was not produced by the
// store it is given to.
var ErrUnknownLocation = errors.New("location does not belong to this store")

// Upload is a single file received from a client.
type Upload struct {
	Filename    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// ObjectName returns a random name for an uploaded file, keeping the
// lower-cased extension of the original name.
func ObjectName(original string) string {
	ext := strings.ToLower(filepath.Ext(filepath.Base(original)))
	if len(ext) > 16 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return uuid.NewString() + ext
}

func location(prefix, name string) string {
	return path.Join("/", prefix, name)
}

// nameFromLocation reverses location. It rejects anything that could escape
// the store's namespace.
func nameFromLocation(prefix, loc string) (string, error) {
	p := path.Join("/", prefix) + "/"
	if !strings.HasPrefix(loc, p) {
		return "", ErrUnknownLocation
	}
	name := strings.TrimPrefix(loc, p)
	if name == "" || name != path.Base(name) || name == ".." {
		return "", ErrUnknownLocation
	}
	return name, nil
}
