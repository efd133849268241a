package storage

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	s3manager "github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/multierr"
)

type uploadAPI interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*s3manager.Uploader)) (*s3manager.UploadOutput, error)
}

// S3Copier uploads finished dumps to a bucket as an offsite copy.
type S3Copier struct {
	uploader uploadAPI
	bucket   string
	prefix   string
}

func NewS3(awsCfg aws.Config, bucket, prefix string) *S3Copier {
	client := s3.NewFromConfig(awsCfg)
	return &S3Copier{
		uploader: s3manager.NewUploader(client),
		bucket:   bucket,
		prefix:   prefix,
	}
}

// CopyDir uploads every file below localDir to
// <prefix>/<remotePrefix>/<relative path>. It keeps going after a failed
// file and returns how many were uploaded along with the combined errors.
func (c *S3Copier) CopyDir(ctx context.Context, localDir, remotePrefix string) (int, error) {
	var files []string
	err := filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to walk %s: %w", localDir, err)
	}

	uploaded := 0
	var errs error
	for _, file := range files {
		rel, err := filepath.Rel(localDir, file)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		key := path.Join(c.prefix, remotePrefix, filepath.ToSlash(rel))

		if err := c.upload(ctx, file, key); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		uploaded++
	}

	return uploaded, errs
}

func (c *S3Copier) upload(ctx context.Context, localPath, key string) error {
	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	_, err = c.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
		Body:   file,
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s to s3://%s/%s: %w", localPath, c.bucket, key, err)
	}

	return nil
}
