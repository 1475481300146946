package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/driftworks/workbench/internal/logging"
)

// S3Config configures an S3-compatible object store.
type S3Config struct {
	Bucket    string
	Region    string
	Endpoint  string // optional custom endpoint (MinIO, R2, ...)
	PathStyle bool
	AccessKey string // optional static credentials; default chain otherwise
	SecretKey string

	// CreateBucket enables best-effort bucket creation on first use.
	CreateBucket bool
}

// S3Store is an ObjectStore backed by an S3-compatible service. The client
// is built lazily on first use so construction never needs credentials or
// network access.
type S3Store struct {
	cfg S3Config

	mu     sync.Mutex
	client *s3.Client
	ready  bool
}

// NewS3Store returns an S3Store for the given configuration. No connection
// is made until the first operation.
func NewS3Store(cfg S3Config) *S3Store {
	return &S3Store{cfg: cfg}
}

// ensureClient builds the SDK client and, when configured, creates the
// bucket. Safe for concurrent use; initialization happens once.
func (s *S3Store) ensureClient(ctx context.Context) (*s3.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ready {
		return s.client, nil
	}

	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(s.cfg.Region),
	}
	if s.cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.cfg.AccessKey, s.cfg.SecretKey, "")))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if s.cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(s.cfg.Endpoint)
		}
		o.UsePathStyle = s.cfg.PathStyle
	})

	if s.cfg.CreateBucket {
		if err := createBucket(ctx, client, s.cfg.Bucket, s.cfg.Region); err != nil {
			// Creation is best effort: the bucket usually exists already,
			// or the credentials lack CreateBucket. Operations will surface
			// real problems.
			logging.Warnf("[store] bucket %q auto-create: %v", s.cfg.Bucket, err)
		}
	}

	s.client = client
	s.ready = true
	return client, nil
}

// createBucket creates the bucket, treating "already exists" and "already
// owned by you" as success.
func createBucket(ctx context.Context, client *s3.Client, bucket, region string) error {
	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	// us-east-1 rejects an explicit location constraint.
	if region != "" && region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(region),
		}
	}

	_, err := client.CreateBucket(ctx, input)
	if err != nil {
		var owned *types.BucketAlreadyOwnedByYou
		var exists *types.BucketAlreadyExists
		if errors.As(err, &owned) || errors.As(err, &exists) {
			return nil
		}
		return err
	}
	logging.Infof("[store] created bucket %q", bucket)
	return nil
}

// List returns all objects under prefix, paginating as needed.
func (s *S3Store) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	var infos []ObjectInfo
	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.cfg.Bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			infos = append(infos, ObjectInfo{
				Key:     aws.ToString(obj.Key),
				Size:    aws.ToInt64(obj.Size),
				ETag:    trimETag(aws.ToString(obj.ETag)),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

// Get returns the object body or ErrNotFound.
func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %q: %w", key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read %q: %w", key, err)
	}
	return body, nil
}

// Put stores body under key.
func (s *S3Store) Put(ctx context.Context, key string, body []byte) (ObjectInfo, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return ObjectInfo{}, err
	}

	out, err := client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.cfg.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentTypeFor(key)),
	})
	if err != nil {
		return ObjectInfo{}, fmt.Errorf("put %q: %w", key, err)
	}
	return ObjectInfo{
		Key:     key,
		Size:    int64(len(body)),
		ETag:    trimETag(aws.ToString(out.ETag)),
		ModTime: time.Now().UTC(),
	}, nil
}

// Delete removes key. Missing keys are not an error (S3 semantics).
func (s *S3Store) Delete(ctx context.Context, key string) error {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return err
	}

	_, err = client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Stat returns object info or ErrNotFound.
func (s *S3Store) Stat(ctx context.Context, key string) (ObjectInfo, error) {
	client, err := s.ensureClient(ctx)
	if err != nil {
		return ObjectInfo{}, err
	}

	out, err := client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.cfg.Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return ObjectInfo{}, ErrNotFound
		}
		return ObjectInfo{}, fmt.Errorf("stat %q: %w", key, err)
	}
	return ObjectInfo{
		Key:     key,
		Size:    aws.ToInt64(out.ContentLength),
		ETag:    trimETag(aws.ToString(out.ETag)),
		ModTime: aws.ToTime(out.LastModified),
	}, nil
}

// isNotFound reports whether err is any of the SDK's missing-object shapes.
// HeadObject returns NotFound, GetObject returns NoSuchKey.
func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &noKey) || errors.As(err, &notFound)
}

// trimETag strips the quotes S3 wraps around ETag values.
func trimETag(etag string) string {
	return strings.Trim(etag, `"`)
}

func contentTypeFor(key string) string {
	switch {
	case strings.HasSuffix(key, ".md"):
		return "text/markdown; charset=utf-8"
	case strings.HasSuffix(key, ".json"):
		return "application/json"
	case strings.HasSuffix(key, ".txt"):
		return "text/plain; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}
