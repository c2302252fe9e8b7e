package assets

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	infra "github.com/cohort-modeler/cohort-infra"
)

// MaxInlineTemplateSize is the largest template body CloudFormation accepts
// inline. Larger templates must be uploaded to S3 and passed by URL.
const MaxInlineTemplateSize = 51200

// S3API is the subset of the S3 client used to publish assets.
type S3API interface {
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateBucket(ctx context.Context, params *s3.CreateBucketInput, optFns ...func(*s3.Options)) (*s3.CreateBucketOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

var _ S3API = (*s3.Client)(nil)

// Publisher uploads staged assets and oversize templates to S3.
type Publisher struct {
	client S3API
	region string
	logger *zap.Logger
	ready  map[string]bool
}

// NewPublisher returns a publisher writing to buckets in region.
func NewPublisher(client S3API, region string, logger *zap.Logger) *Publisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Publisher{client: client, region: region, logger: logger, ready: make(map[string]bool)}
}

// EnsureBucket creates the bucket when it does not exist.
func (p *Publisher) EnsureBucket(ctx context.Context, bucket string) error {
	if p.ready[bucket] {
		return nil
	}
	_, err := p.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)})
	if err == nil {
		p.ready[bucket] = true
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("head bucket %s: %w", bucket, err)
	}

	input := &s3.CreateBucketInput{Bucket: aws.String(bucket)}
	if p.region != "" && p.region != "us-east-1" {
		input.CreateBucketConfiguration = &types.CreateBucketConfiguration{
			LocationConstraint: types.BucketLocationConstraint(p.region),
		}
	}
	if _, err := p.client.CreateBucket(ctx, input); err != nil {
		return fmt.Errorf("create bucket %s: %w", bucket, err)
	}
	p.logger.Info("created asset bucket", zap.String("bucket", bucket), zap.String("region", p.region))
	p.ready[bucket] = true
	return nil
}

// Publish uploads the given assets from the assembly in dir, skipping objects
// already present. It returns the number of objects uploaded.
func (p *Publisher) Publish(ctx context.Context, dir string, entries []infra.AssetEntry) (int, error) {
	uploaded := 0
	for _, e := range entries {
		if err := p.EnsureBucket(ctx, e.Bucket); err != nil {
			return uploaded, err
		}
		data, err := os.ReadFile(StagedPath(dir, e))
		if err != nil {
			return uploaded, fmt.Errorf("asset %s: %w", e.ID, err)
		}
		put, err := p.put(ctx, e.Bucket, e.Key, data, "application/zip")
		if err != nil {
			return uploaded, fmt.Errorf("asset %s: %w", e.ID, err)
		}
		if put {
			uploaded++
		}
		p.logger.Debug("asset",
			zap.String("id", e.ID),
			zap.String("key", e.Key),
			zap.Bool("uploaded", put),
		)
	}
	return uploaded, nil
}

// UploadTemplate stores a template body under a content-addressed key and
// returns its URL for CreateStack/UpdateStack.
func (p *Publisher) UploadTemplate(ctx context.Context, bucket, stack string, body []byte) (string, error) {
	if err := p.EnsureBucket(ctx, bucket); err != nil {
		return "", err
	}
	sum := sha256.Sum256(body)
	key := "templates/" + stack + "-" + hex.EncodeToString(sum[:]) + ".json"
	if _, err := p.put(ctx, bucket, key, body, "application/json"); err != nil {
		return "", fmt.Errorf("template %s: %w", stack, err)
	}
	return ObjectURL(bucket, p.region, key), nil
}

// ObjectURL returns the virtual-hosted URL of an object.
func ObjectURL(bucket, region, key string) string {
	if region == "" || region == "us-east-1" {
		return fmt.Sprintf("https://%s.s3.amazonaws.com/%s", bucket, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", bucket, region, key)
}

// StagedPath returns where an asset is staged inside the assembly directory.
func StagedPath(dir string, e infra.AssetEntry) string {
	return filepath.Join(dir, e.StagedPath)
}

func (p *Publisher) put(ctx context.Context, bucket, key string, body []byte, contentType string) (bool, error) {
	_, err := p.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(bucket), Key: aws.String(key)})
	if err == nil {
		return false, nil
	}
	if !isNotFound(err) {
		return false, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}
	_, err = p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return false, fmt.Errorf("put s3://%s/%s: %w", bucket, key, err)
	}
	return true, nil
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var ae smithy.APIError
	if errors.As(err, &ae) {
		switch ae.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket":
			return true
		}
	}
	return false
}
