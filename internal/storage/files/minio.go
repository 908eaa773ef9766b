package files

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// MinioConfig holds the connection settings of an S3-compatible store.
type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Secure    bool
	URLPrefix string
}

// Minio stores uploads as objects in a MinIO bucket.
type Minio struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinio connects to the object store and creates the bucket when it does
// not exist yet.
func NewMinio(ctx context.Context, cfg MinioConfig) (*Minio, error) {
	if cfg.URLPrefix == "" {
		cfg.URLPrefix = DefaultURLPrefix
	}

	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create minio client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, errors.Wrapf(err, "check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, errors.Wrapf(err, "create bucket %s", cfg.Bucket)
		}
	}

	return &Minio{client: client, bucket: cfg.Bucket, prefix: cfg.URLPrefix}, nil
}

// Save uploads u as a new object and returns its location.
func (m *Minio) Save(ctx context.Context, u Upload) (string, error) {
	name := ObjectName(u.Filename)
	contentType := u.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := m.client.PutObject(ctx, m.bucket, name, u.Body, u.Size, minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", errors.Wrapf(err, "put object %s", name)
	}
	return location(m.prefix, name), nil
}

// Remove deletes the object behind loc.
func (m *Minio) Remove(ctx context.Context, loc string) error {
	name, err := nameFromLocation(m.prefix, loc)
	if err != nil {
		return err
	}
	if err := m.client.RemoveObject(ctx, m.bucket, name, minio.RemoveObjectOptions{}); err != nil {
		return errors.Wrapf(err, "remove object %s", name)
	}
	return nil
}

// Handler streams objects by name. Mount it with http.StripPrefix.
func (m *Minio) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		name := strings.TrimPrefix(r.URL.Path, "/")
		if name == "" || strings.Contains(name, "/") {
			http.NotFound(w, r)
			return
		}

		info, err := m.client.StatObject(r.Context(), m.bucket, name, minio.StatObjectOptions{})
		if err != nil {
			if minio.ToErrorResponse(err).StatusCode == http.StatusNotFound {
				http.NotFound(w, r)
				return
			}
			zctx.From(r.Context()).Error("Stat object", zap.String("name", name), zap.Error(err))
			http.Error(w, "Server Error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", info.ContentType)
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
		w.Header().Set("ETag", `"`+info.ETag+`"`)
		if r.Method == http.MethodHead {
			return
		}

		obj, err := m.client.GetObject(r.Context(), m.bucket, name, minio.GetObjectOptions{})
		if err != nil {
			zctx.From(r.Context()).Error("Get object", zap.String("name", name), zap.Error(err))
			http.Error(w, "Server Error", http.StatusInternalServerError)
			return
		}
		defer func() { _ = obj.Close() }()

		if _, err := io.Copy(w, obj); err != nil {
			zctx.From(r.Context()).Warn("Stream object", zap.String("name", name), zap.Error(err))
		}
	})
}

// Ping checks that the bucket is reachable.
func (m *Minio) Ping(ctx context.Context) error {
	ok, err := m.client.BucketExists(ctx, m.bucket)
	if err != nil {
		return errors.Wrap(err, "check bucket")
	}
	if !ok {
		return errors.Errorf("bucket %s does not exist", m.bucket)
	}
	return nil
}
