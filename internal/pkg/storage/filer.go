package storage

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/airenas/go-app/pkg/goapp"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Options for minio filer
type Options struct {
	URL    string
	User   string
	Key    string
	Bucket string
	HTTPS  bool
	// PublicURL is the base of object URLs returned to clients,
	// if empty the minio URL is used
	PublicURL string
}

// Filer saves audio into s3 compatible storage
type Filer struct {
	client    *minio.Client
	bucket    string
	publicURL string
}

// NewFiler creates minio filer, makes the bucket if needed
func NewFiler(ctx context.Context, opt Options) (*Filer, error) {
	if err := validate(&opt); err != nil {
		return nil, err
	}
	goapp.Log.Info().Str("url", opt.URL).Str("user", opt.User).Str("bucket", opt.Bucket).Msg("Init minio client")
	client, err := minio.New(opt.URL, &minio.Options{
		Creds:  credentials.NewStaticV4(opt.User, opt.Key, ""),
		Secure: opt.HTTPS,
	})
	if err != nil {
		return nil, fmt.Errorf("can't init minio client: %w", err)
	}
	res := &Filer{client: client, bucket: opt.Bucket}
	if res.publicURL, err = makeBaseURL(&opt); err != nil {
		return nil, err
	}
	if err := res.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return res, nil
}

func validate(opt *Options) error {
	if opt.URL == "" {
		return fmt.Errorf("no filer url")
	}
	if opt.Bucket == "" {
		return fmt.Errorf("no filer bucket")
	}
	if opt.User == "" {
		return fmt.Errorf("no filer user")
	}
	return nil
}

func makeBaseURL(opt *Options) (string, error) {
	base := opt.PublicURL
	if base == "" {
		scheme := "http"
		if opt.HTTPS {
			scheme = "https"
		}
		base = scheme + "://" + opt.URL
	}
	res, err := url.JoinPath(base, opt.Bucket)
	if err != nil {
		return "", fmt.Errorf("can't prepare public url from '%s': %w", base, err)
	}
	return res, nil
}

func (f *Filer) ensureBucket(ctx context.Context) error {
	ok, err := f.client.BucketExists(ctx, f.bucket)
	if err != nil {
		return fmt.Errorf("can't check bucket %s: %w", f.bucket, err)
	}
	if ok {
		return nil
	}
	goapp.Log.Info().Str("bucket", f.bucket).Msg("creating bucket")
	if err := f.client.MakeBucket(ctx, f.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("can't create bucket %s: %w", f.bucket, err)
	}
	return nil
}

// SaveFile stores the reader content, returns the public URL of the object
func (f *Filer) SaveFile(ctx context.Context, name string, r io.Reader, fileSize int64, contentType string) (string, error) {
	goapp.Log.Info().Str("bucket", f.bucket).Str("name", name).Int64("size", fileSize).Msg("save")
	_, err := f.client.PutObject(ctx, f.bucket, name, r, fileSize, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("can't save %s: %w", name, err)
	}
	return f.PublicURL(name), nil
}

// PresignUpload returns an URL to PUT the object directly
func (f *Filer) PresignUpload(ctx context.Context, name string, expires time.Duration) (string, error) {
	u, err := f.client.PresignedPutObject(ctx, f.bucket, name, expires)
	if err != nil {
		return "", fmt.Errorf("can't presign %s: %w", name, err)
	}
	return u.String(), nil
}

// PublicURL returns URL of the object
func (f *Filer) PublicURL(name string) string {
	return f.publicURL + "/" + strings.TrimPrefix(name, "/")
}
