package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	cfg "github.com/maheshrc27/clipcast/configs"
)

// ClipStorage reads rendered clips from object storage.
type ClipStorage interface {
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	PublicURL(key string) string
}

type objectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type R2Storage struct {
	client  objectGetter
	bucket  string
	baseURL string
}

func NewR2Storage(c objectGetter, bucket, mediaBaseURL string) *R2Storage {
	return &R2Storage{client: c, bucket: bucket, baseURL: strings.TrimRight(mediaBaseURL, "/")}
}

// NewR2Client builds an S3 client pointed at the Cloudflare R2 account.
func NewR2Client(ctx context.Context, r2 cfg.R2) (*s3.Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx,
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(r2.AccessKey, r2.SecretKey, "")),
		config.WithRegion("auto"),
	)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(fmt.Sprintf("https://%s.r2.cloudflarestorage.com", r2.AccountID))
	}), nil
}

// Open streams an object. A missing object is terminal for the publish.
func (r *R2Storage) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, Terminal("content item has no media", nil)
	}

	out, err := r.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(r.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, Terminal("clip missing from storage", err)
		}
		slog.Info(err.Error())
		return nil, Retryable("storage read failed", err)
	}
	return out.Body, nil
}

func (r *R2Storage) PublicURL(key string) string {
	parts := strings.Split(key, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return r.baseURL + "/" + strings.Join(parts, "/")
}
