// Package s3store is a trove.FlatStore kept in an S3-compatible bucket.
//
// Each flat key is one object named Config.Prefix + key. S3 has no
// conditional read-modify-write here, so two processes saving properties
// of the same object can still lose a metadata update; one Store per
// bucket prefix is the supported setup.
package s3store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

// Config holds connection settings. Endpoint, AccessKey, SecretKey and
// Bucket are required.
type Config struct {
	Endpoint  string // host[:port], no scheme
	AccessKey string
	SecretKey string
	Bucket    string
	Region    string
	Prefix    string        // Prepended to every key
	Insecure  bool          // Use plain HTTP
	Timeout   time.Duration // Per request (default 30s)
	Logger    *zap.Logger   // Defaults to a no-op logger
}

// Store is a FlatStore backed by object storage.
type Store struct {
	client  *minio.Client
	bucket  string
	prefix  string
	timeout time.Duration
	log     *zap.Logger
}

// ErrConfig reports a missing required setting.
var ErrConfig = errors.New("s3store: endpoint, access key, secret key and bucket are required")

// New connects to the endpoint and checks that the bucket exists.
func New(config Config) (*Store, error) {
	if config.Endpoint == "" || config.AccessKey == "" || config.SecretKey == "" || config.Bucket == "" {
		return nil, ErrConfig
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.Logger == nil {
		config.Logger = zap.NewNop()
	}

	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Region: config.Region,
		Secure: !config.Insecure,
	})
	if err != nil {
		return nil, fmt.Errorf("s3store: %w", err)
	}

	s := &Store{
		client:  client,
		bucket:  config.Bucket,
		prefix:  config.Prefix,
		timeout: config.Timeout,
		log:     config.Logger.With(zap.String("bucket", config.Bucket)),
	}

	ctx, cancel := s.ctx()
	defer cancel()
	found, err := client.BucketExists(ctx, config.Bucket)
	if err != nil {
		return nil, fmt.Errorf("s3store: bucket %q: %w", config.Bucket, err)
	}
	if !found {
		return nil, fmt.Errorf("s3store: bucket %q does not exist", config.Bucket)
	}
	return s, nil
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *Store) objectName(key string) string {
	return s.prefix + key
}

func (s *Store) Get(key string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	obj, err := s.client.GetObject(ctx, s.bucket, s.objectName(key), minio.GetObjectOptions{})
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("s3store: get %q: %w", key, err)
	}
	defer obj.Close()

	// GetObject is lazy; a missing object only shows up on first read.
	data, err := io.ReadAll(obj)
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("s3store: get %q: %w", key, err)
	}
	return string(data), true, nil
}

func (s *Store) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	_, err := s.client.PutObject(ctx, s.bucket, s.objectName(key),
		strings.NewReader(value), int64(len(value)),
		minio.PutObjectOptions{ContentType: "text/plain; charset=utf-8"})
	if err != nil {
		return fmt.Errorf("s3store: set %q: %w", key, err)
	}
	s.log.Debug("put", zap.String("key", key), zap.Int("size", len(value)))
	return nil
}

// Remove deletes the object. S3 reports success for a missing object.
func (s *Store) Remove(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if err := s.client.RemoveObject(ctx, s.bucket, s.objectName(key), minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("s3store: remove %q: %w", key, err)
	}
	return nil
}

// Keys yields every key under the prefix in the order the server lists
// them, which for S3 is byte order.
func (s *Store) Keys() iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		// Cancelling stops the listing goroutine if the caller breaks early.
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		objects := s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
			Prefix:    s.prefix,
			Recursive: true,
		})
		for obj := range objects {
			if obj.Err != nil {
				yield("", fmt.Errorf("s3store: keys: %w", obj.Err))
				return
			}
			if !yield(strings.TrimPrefix(obj.Key, s.prefix), nil) {
				return
			}
		}
	}
}

func isNotFound(err error) bool {
	resp := minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey" || (resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket")
}
