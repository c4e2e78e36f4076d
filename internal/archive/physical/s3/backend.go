// Package s3 keeps archive objects in an S3 bucket, or any S3-compatible
// store reachable through a custom endpoint.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/gezibash/arc-rosca/internal/archive/physical"
	"github.com/gezibash/arc-rosca/internal/storage"
)

const (
	KeyBucket          = "bucket"
	KeyRegion          = "region"
	KeyEndpoint        = "endpoint"
	KeyPrefix          = "prefix"
	KeyAccessKeyID     = "access_key_id"
	KeySecretAccessKey = "secret_access_key"
	KeyForcePathStyle  = "force_path_style"
	// KeyEncryption sets x-amz-server-side-encryption on uploads, e.g.
	// "AES256" or "aws:kms". Empty leaves the bucket default.
	KeyEncryption = "encryption"
	// KeyChecksums is "required" or "supported". S3-compatible stores that
	// reject the newer flexible checksum headers need "required".
	KeyChecksums = "checksums"
)

func init() {
	physical.Register("s3", NewFactory, Defaults)
}

func Defaults() map[string]string {
	return map[string]string{
		KeyRegion:         "us-east-1",
		KeyPrefix:         "rosca/",
		KeyForcePathStyle: "false",
		KeyChecksums:      "required",
	}
}

// NewFactory builds the client and fails fast when the bucket cannot be
// reached. Static credentials apply only when both keys are set; otherwise
// the default AWS chain does.
func NewFactory(ctx context.Context, config map[string]string) (physical.Backend, error) {
	o := storage.Bind("s3", config)
	bucket, err := o.Required(KeyBucket)
	if err != nil {
		return nil, err
	}
	pathStyle, err := o.Bool(KeyForcePathStyle, false)
	if err != nil {
		return nil, err
	}
	checksums := aws.RequestChecksumCalculationWhenRequired
	switch v := o.String(KeyChecksums, "required"); v {
	case "required":
	case "supported":
		checksums = aws.RequestChecksumCalculationWhenSupported
	default:
		return nil, o.Invalid(KeyChecksums, "must be required or supported")
	}
	sse := types.ServerSideEncryption(o.String(KeyEncryption, ""))
	if sse != "" && !isKnownSSE(sse) {
		return nil, o.Invalid(KeyEncryption, "unknown server side encryption")
	}

	loaders := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(o.String(KeyRegion, "us-east-1"))}
	if id, secret := o.String(KeyAccessKeyID, ""), o.String(KeySecretAccessKey, ""); id != "" && secret != "" {
		loaders = append(loaders, awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(id, secret, "")))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, loaders...)
	if err != nil {
		return nil, o.Failed("", "cannot load AWS config", err)
	}

	endpoint := o.String(KeyEndpoint, "")
	client := s3.NewFromConfig(cfg, func(so *s3.Options) {
		if endpoint != "" {
			so.BaseEndpoint = aws.String(endpoint)
		}
		so.UsePathStyle = pathStyle
		so.RequestChecksumCalculation = checksums
	})
	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, o.Failed(KeyBucket, "bucket not accessible", err)
	}

	b := &Backend{client: client, bucket: bucket, prefix: o.String(KeyPrefix, ""), sse: sse}
	slog.Info("s3 archive opened", "bucket", bucket, "region", cfg.Region, "prefix", b.prefix)
	return b, nil
}

func isKnownSSE(v types.ServerSideEncryption) bool {
	for _, known := range v.Values() {
		if v == known {
			return true
		}
	}
	return false
}

// Backend stores each key as the object prefix+key.
type Backend struct {
	client *s3.Client
	bucket string
	prefix string
	sse    types.ServerSideEncryption
	closed atomic.Bool
}

func (b *Backend) objectKey(key string) (*string, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	if err := physical.ValidateKey(key); err != nil {
		return nil, err
	}
	return aws.String(b.prefix + key), nil
}

func (b *Backend) Put(ctx context.Context, key string, data []byte) error {
	k, err := b.objectKey(key)
	if err != nil {
		return err
	}
	in := &s3.PutObjectInput{
		Bucket:        aws.String(b.bucket),
		Key:           k,
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	}
	if b.sse != "" {
		in.ServerSideEncryption = b.sse
	}
	if _, err := b.client.PutObject(ctx, in); err != nil {
		return fmt.Errorf("archive s3: put %s: %w", key, err)
	}
	return nil
}

func (b *Backend) Get(ctx context.Context, key string) ([]byte, error) {
	k, err := b.objectKey(key)
	if err != nil {
		return nil, err
	}
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.bucket), Key: k})
	if isNotFound(err) {
		return nil, physical.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("archive s3: get %s: %w", key, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("archive s3: read %s: %w", key, err)
	}
	return data, nil
}

// List pages through ListObjectsV2, which already returns keys in UTF-8
// byte order, and strips the backend prefix.
func (b *Backend) List(ctx context.Context, prefix string) ([]string, error) {
	if b.closed.Load() {
		return nil, physical.ErrClosed
	}
	pages := s3.NewListObjectsV2Paginator(b.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(b.bucket),
		Prefix: aws.String(b.prefix + prefix),
	})
	var keys []string
	for pages.HasMorePages() {
		page, err := pages.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("archive s3: list %q: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			keys = append(keys, strings.TrimPrefix(aws.ToString(obj.Key), b.prefix))
		}
	}
	return keys, nil
}

// Close only stops further calls; the SDK client holds nothing to release.
func (b *Backend) Close() error {
	b.closed.Store(true)
	return nil
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	var noSuchKey *types.NoSuchKey
	var notFound *types.NotFound
	if errors.As(err, &noSuchKey) || errors.As(err, &notFound) {
		return true
	}
	var status interface{ HTTPStatusCode() int }
	return errors.As(err, &status) && status.HTTPStatusCode() == http.StatusNotFound
}
