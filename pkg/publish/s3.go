// Package publish uploads corpus snapshots to S3-compatible object storage.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"
)

// DefaultPrefix is the key prefix of uploaded snapshots
const DefaultPrefix = "exports/"

// Archiver writes a complete archive of the corpus
type Archiver interface {
	Export(w io.Writer) error
}

// Config describes the target bucket. An empty Endpoint uses AWS; anything
// else (MinIO, Ceph) is addressed path-style.
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	CreateBucket    bool
}

// Snapshot describes one uploaded archive
type Snapshot struct {
	Bucket     string    `json:"bucket"`
	Key        string    `json:"key"`
	Size       int64     `json:"size"`
	UploadedAt time.Time `json:"uploadedAt"`
}

// S3Publisher builds the export archive and uploads it
type S3Publisher struct {
	client  *s3.Client
	cfg     Config
	archive Archiver
	log     *zap.Logger
	now     func() time.Time
}

// NewS3 creates a publisher for cfg. Static credentials are used when both
// keys are set, otherwise the default AWS credential chain.
func NewS3(ctx context.Context, cfg Config, archive Archiver, log *zap.Logger) (*S3Publisher, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultPrefix
	}
	if log == nil {
		log = zap.NewNop()
	}

	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
	})

	p := &S3Publisher{client: client, cfg: cfg, archive: archive, log: log, now: time.Now}
	if cfg.CreateBucket {
		if err := p.ensureBucket(ctx); err != nil {
			log.Warn("failed to ensure bucket exists", zap.String("bucket", cfg.Bucket), zap.Error(err))
		}
	}
	return p, nil
}

func (p *S3Publisher) ensureBucket(ctx context.Context) error {
	if _, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(p.cfg.Bucket)}); err == nil {
		return nil
	}

	in := &s3.CreateBucketInput{Bucket: aws.String(p.cfg.Bucket)}
	if p.cfg.Region != "us-east-1" {
		in.CreateBucketConfiguration = &s3types.CreateBucketConfiguration{
			LocationConstraint: s3types.BucketLocationConstraint(p.cfg.Region),
		}
	}
	if _, err := p.client.CreateBucket(ctx, in); err != nil {
		return err
	}
	p.log.Info("bucket created", zap.String("bucket", p.cfg.Bucket))
	return nil
}

// KeyFor returns the object key of a snapshot taken at t
func KeyFor(prefix string, t time.Time) string {
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return prefix + "images-and-labels-" + t.UTC().Format("20060102T150405Z") + ".zip"
}

// Publish writes the archive to a temp file and uploads it. The archiver's
// errors, including corpus.ErrNothingToExport, are returned unchanged.
func (p *S3Publisher) Publish(ctx context.Context) (*Snapshot, error) {
	tmp, err := os.CreateTemp("", "images-and-labels-*.zip")
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	if err := p.archive.Export(tmp); err != nil {
		return nil, err
	}
	size, err := tmp.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("archive size: %w", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind archive: %w", err)
	}

	now := p.now()
	key := KeyFor(p.cfg.Prefix, now)
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(p.cfg.Bucket),
		Key:           aws.String(key),
		Body:          tmp,
		ContentType:   aws.String("application/zip"),
		ContentLength: aws.Int64(size),
	})
	if err != nil {
		p.log.Error("snapshot upload failed", zap.String("key", key), zap.Error(err))
		return nil, fmt.Errorf("upload %s: %w", key, err)
	}

	p.log.Info("snapshot uploaded",
		zap.String("bucket", p.cfg.Bucket),
		zap.String("key", key),
		zap.Int64("size", size))
	return &Snapshot{Bucket: p.cfg.Bucket, Key: key, Size: size, UploadedAt: now.UTC()}, nil
}
