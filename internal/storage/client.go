package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/docforge/docforge/internal/config"
	"github.com/docforge/docforge/internal/logging"
	"github.com/docforge/docforge/internal/models"
)

// Part number bounds enforced by S3 multipart uploads.
const (
	MinPartNumber = 1
	MaxPartNumber = 10000
)

// CompletedPart pairs a part number with the ETag returned by its upload.
type CompletedPart struct {
	PartNumber int32  `json:"partNumber"`
	ETag       string `json:"eTag"`
}

// Client is the S3-backed object store adapter.
//
// Thread-safe: all operations may be called concurrently.
type Client struct {
	client     *s3.Client
	presigner  *s3.PresignClient
	uploader   *manager.Uploader
	bucket     string
	presignTTL time.Duration
	tempDir    string
	logger     *logging.Logger
}

// NewClient creates the object store adapter from configuration. The
// AWS credential chain (env, shared config, instance role) applies
// unless explicit keys are configured for an S3-compatible endpoint.
func NewClient(ctx context.Context, cfg *config.Config) (*Client, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Storage.Region),
	}
	if cfg.Storage.AccessKeyID != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			cfg.Storage.AccessKeyID,
			cfg.Storage.SecretAccessKey,
			"",
		)))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	s3Client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Storage.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Storage.Endpoint)
			o.UsePathStyle = true
		}
	})

	return &Client{
		client:     s3Client,
		presigner:  s3.NewPresignClient(s3Client),
		uploader:   manager.NewUploader(s3Client),
		bucket:     cfg.Storage.Bucket,
		presignTTL: time.Duration(cfg.Storage.PresignTTLMinutes) * time.Minute,
		tempDir:    cfg.Zip.TempDir,
		logger:     logging.NewLogger("storage", false),
	}, nil
}

// PresignUpload mints a presigned PUT URL for key.
func (c *Client) PresignUpload(ctx context.Context, key string) (string, error) {
	req, err := c.presigner.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.presignTTL))
	if err != nil {
		return "", models.Transientf("presign upload for %s failed: %v", key, err)
	}
	return req.URL, nil
}

// PresignDownload mints a presigned GET URL for key.
func (c *Client) PresignDownload(ctx context.Context, key string) (string, error) {
	req, err := c.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(c.presignTTL))
	if err != nil {
		return "", models.Transientf("presign download for %s failed: %v", key, err)
	}
	return req.URL, nil
}

// InitiateMultipart starts a multipart upload and returns its id.
func (c *Client) InitiateMultipart(ctx context.Context, key string) (string, error) {
	resp, err := c.client.CreateMultipartUpload(ctx, &s3.CreateMultipartUploadInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", models.Transientf("initiate multipart for %s failed: %v", key, err)
	}
	return aws.ToString(resp.UploadId), nil
}

// PresignPart mints a presigned URL for one part of a multipart upload.
// partNumber must lie in [1, 10000].
func (c *Client) PresignPart(ctx context.Context, key, uploadID string, partNumber int32) (string, error) {
	if partNumber < MinPartNumber || partNumber > MaxPartNumber {
		return "", fmt.Errorf("part number %d outside [%d, %d]: %w",
			partNumber, MinPartNumber, MaxPartNumber, models.ErrValidation)
	}
	req, err := c.presigner.PresignUploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(c.bucket),
		Key:        aws.String(key),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(partNumber),
	}, s3.WithPresignExpires(c.presignTTL))
	if err != nil {
		return "", models.Transientf("presign part %d for %s failed: %v", partNumber, key, err)
	}
	return req.URL, nil
}

// CompleteMultipart finishes a multipart upload from the client-reported
// part list.
func (c *Client) CompleteMultipart(ctx context.Context, key, uploadID string, parts []CompletedPart) error {
	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{
			PartNumber: aws.Int32(p.PartNumber),
			ETag:       aws.String(p.ETag),
		}
	}
	_, err := c.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(c.bucket),
		Key:             aws.String(key),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		return models.Transientf("complete multipart for %s failed: %v", key, err)
	}
	return nil
}

// DownloadStream returns a streaming reader over the object at key. The
// caller closes it.
func (c *Client) DownloadStream(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := c.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, models.Transientf("download of %s failed: %v", key, err)
	}
	return resp.Body, nil
}

// Upload streams r to key. The stream is spooled to a temp file first so
// the managed uploader can switch to multipart when length exceeds the
// single-PUT limit, and so retries can reseek.
func (c *Client) Upload(ctx context.Context, key string, r io.Reader, length int64) error {
	tmp, err := os.CreateTemp(c.tempDir, "docforge-put-*")
	if err != nil {
		return models.Transientf("temp spool failed: %v", err)
	}
	defer func() {
		tmp.Close()
		os.Remove(tmp.Name())
	}()

	if _, err := io.Copy(tmp, r); err != nil {
		return models.Transientf("spooling %s failed: %v", key, err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return models.Transientf("seek on spool for %s failed: %v", key, err)
	}

	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentLength: aws.Int64(length),
	})
	if err != nil {
		return models.Transientf("upload of %s failed: %v", key, err)
	}
	c.logger.Debug().Str("key", key).Int64("size", length).Msg("Object uploaded")
	return nil
}

// UploadFile uploads the file at path to key.
func (c *Client) UploadFile(ctx context.Context, key, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return models.Transientf("open %s failed: %v", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return models.Transientf("stat %s failed: %v", path, err)
	}

	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(c.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(info.Size()),
	})
	if err != nil {
		return models.Transientf("upload of %s failed: %v", key, err)
	}
	return nil
}

// Copy performs a server-side copy from srcKey to dstKey. O(1) for the
// caller regardless of object size.
func (c *Client) Copy(ctx context.Context, srcKey, dstKey string) error {
	_, err := c.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(c.bucket),
		Key:        aws.String(dstKey),
		CopySource: aws.String(c.bucket + "/" + srcKey),
	})
	if err != nil {
		return models.Transientf("copy %s -> %s failed: %v", srcKey, dstKey, err)
	}
	return nil
}
