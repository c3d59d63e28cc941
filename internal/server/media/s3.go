package media

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newUploader = func(c *s3.Client) *manager.Uploader {
		return manager.NewUploader(c)
	}

	uploadObject = func(u *manager.Uploader, ctx context.Context, in *s3.PutObjectInput) (*manager.UploadOutput, error) {
		return u.Upload(ctx, in)
	}
)

// S3Store uploads media files to an S3-compatible bucket (AWS or MinIO).
type S3Store struct {
	rootUser     string
	rootPassword string
	bucket       string
	region       string
	baseEndpoint string
}

// NewS3Store constructs a store for the given bucket. baseEndpoint may be
// empty for AWS proper, or point at a MinIO-style endpoint.
func NewS3Store(rootUser, rootPassword, bucket, region, baseEndpoint string) *S3Store {
	return &S3Store{
		rootUser:     rootUser,
		rootPassword: rootPassword,
		bucket:       bucket,
		region:       region,
		baseEndpoint: baseEndpoint,
	}
}

// storageKey produces a unique object key, partitioned by date, keeping the
// original file extension.
func storageKey(ext string) string {
	d := time.Now()
	return fmt.Sprintf("media/%d/%02d/%02d/%s%s", d.Year(), d.Month(), d.Day(), uuid.New(), ext)
}

func (s *S3Store) getClient(ctx context.Context) (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.rootUser,
			s.rootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		if s.baseEndpoint != "" {
			o.BaseEndpoint = aws.String(s.baseEndpoint)
			o.UsePathStyle = true
		}
	})

	return client, nil
}

// Upload stores the file at localFilePath in the bucket and returns the
// public object URL. The local file is left in place; removal is the
// caller's responsibility.
func (s *S3Store) Upload(ctx context.Context, localFilePath string) (string, error) {
	f, err := os.Open(localFilePath)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", localFilePath, err)
	}
	defer f.Close()

	ext := filepath.Ext(localFilePath)
	contentType := mime.TypeByExtension(ext)
	if contentType == "" {
		head := make([]byte, 512)
		n, _ := f.Read(head)
		contentType = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, 0); err != nil {
			return "", fmt.Errorf("seek %s: %w", localFilePath, err)
		}
	}

	client, err := s.getClient(ctx)
	if err != nil {
		return "", err
	}

	key := storageKey(ext)
	out, err := uploadObject(newUploader(client), ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        f,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}

	if out.Location != "" {
		return out.Location, nil
	}
	return s.objectURL(key), nil
}

func (s *S3Store) objectURL(key string) string {
	if s.baseEndpoint != "" {
		return strings.TrimSuffix(s.baseEndpoint, "/") + "/" + s.bucket + "/" + key
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}
