package cloud

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"extranef/internal/config"
	"extranef/internal/nef"
)

// S3Store stores objects in an S3 bucket. Folders are key prefixes: a folder
// id is its key without the trailing slash, and EnsureFolder writes an empty
// "<id>/" marker so the folder shows up in consoles.
type S3Store struct {
	client   *s3.Client
	uploader *manager.Uploader
	bucket   string
	prefix   string
}

// NewS3Store builds a client from the default AWS config chain, overridden by
// the region and static keys in cfg when set.
func NewS3Store(ctx context.Context, cfg config.CloudConfig) (*S3Store, error) {
	if cfg.S3Bucket == "" {
		return nil, fmt.Errorf("s3 cloud store requires s3_bucket to be set")
	}

	var opts []func(*awsconfig.LoadOptions) error
	if cfg.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.S3Region))
	}
	if cfg.S3AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewS3StoreFromClient(s3.NewFromConfig(awsCfg), cfg.S3Bucket, cfg.S3Prefix), nil
}

// NewS3StoreFromClient wraps an existing client.
func NewS3StoreFromClient(client *s3.Client, bucket, prefix string) *S3Store {
	return &S3Store{
		client:   client,
		uploader: manager.NewUploader(client),
		bucket:   bucket,
		prefix:   strings.Trim(prefix, "/"),
	}
}

// Root returns the id of the folder every upload goes under.
func (s *S3Store) Root() string {
	return s.prefix
}

func (s *S3Store) EnsureFolder(ctx context.Context, parentID, name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}
	id := path.Join(parentID, name)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(id + "/"),
		Body:   strings.NewReader(""),
	})
	if err != nil {
		return "", fmt.Errorf("creating s3 folder marker %s: %w", id, err)
	}
	return id, nil
}

func (s *S3Store) Upload(ctx context.Context, parentID, name, mimeType string, r io.Reader) (*nef.RemoteObject, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	key := path.Join(parentID, name)
	out, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        r,
		ContentType: aws.String(mimeType),
	})
	if err != nil {
		return nil, fmt.Errorf("uploading %s to s3: %w", key, err)
	}
	link := out.Location
	if link == "" {
		link = fmt.Sprintf("s3://%s/%s", s.bucket, key)
	}
	return &nef.RemoteObject{ID: key, Name: name, Link: link}, nil
}

var _ nef.CloudStore = (*S3Store)(nil)
