package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	cfg "github.com/postdeck/postdeck/configs"
)

type R2Service struct {
	config cfg.Config
}

func NewR2Service(cfg cfg.Config) *R2Service {
	return &R2Service{config: cfg}
}

func (r *R2Service) R2Client() (*s3.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r.config.R2.AccessKey, r.config.R2.SecretKey, "")),
		awsconfig.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r.config.R2.AccountID))
	}), nil
}

// DeleteFiles removes the objects behind the given public URLs from the
// bucket. Called when a media set's reference count reaches zero.
func (r *R2Service) DeleteFiles(ctx context.Context, fileURLs []string) error {
	if len(fileURLs) == 0 {
		return nil
	}

	objects := make([]types.ObjectIdentifier, 0, len(fileURLs))
	for _, fileURL := range fileURLs {
		key, err := objectKey(fileURL)
		if err != nil {
			slog.Info(err.Error())
			continue
		}
		objects = append(objects, types.ObjectIdentifier{Key: aws.String(key)})
	}
	if len(objects) == 0 {
		return nil
	}

	client, err := r.R2Client()
	if err != nil {
		return err
	}

	input := &s3.DeleteObjectsInput{
		Bucket: aws.String(r.config.R2.BucketName),
		Delete: &types.Delete{Objects: objects},
	}

	if _, err := client.DeleteObjects(ctx, input); err != nil {
		slog.Info(err.Error())
		return err
	}

	return nil
}

func objectKey(fileURL string) (string, error) {
	u, err := url.Parse(fileURL)
	if err != nil {
		return "", fmt.Errorf("invalid media URL %q: %w", fileURL, err)
	}

	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", fmt.Errorf("media URL %q has no object key", fileURL)
	}

	return key, nil
}
