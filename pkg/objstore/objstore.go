// Package objstore uploads workspace artifacts to an S3-compatible bucket
// and issues presigned GET URLs for them.
//
// Keys are content-addressed: the object key embeds a prefix of the file's
// SHA-256, so re-uploading identical content is a no-op after a head
// check, and changed content never collides with a stale object.
package objstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// DefaultPresignExpiry is how long presigned GET URLs stay valid. The
// recognizer may fetch the audio well after submission.
const DefaultPresignExpiry = 10 * time.Hour

// hashPrefixLen is how many hex digits of the content hash go into keys.
const hashPrefixLen = 8

// Config is the bucket connection, loaded from the environment.
type Config struct {
	AccessKeyID     string
	SecretAccessKey string
	Region          string
	Bucket          string
	Endpoint        string
}

// LoadConfig reads the TOS_* variables, falling back to the AWS_* pair
// for the credentials. Credentials never come from config files.
func LoadConfig() (Config, error) {
	cfg := Config{
		AccessKeyID:     firstEnv("TOS_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"),
		SecretAccessKey: firstEnv("TOS_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"),
		Region:          os.Getenv("TOS_REGION"),
		Bucket:          os.Getenv("TOS_BUCKET"),
		Endpoint:        os.Getenv("TOS_ENDPOINT"),
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return Config{}, fmt.Errorf("objstore: TOS_ACCESS_KEY_ID and TOS_SECRET_ACCESS_KEY must be set")
	}
	if cfg.Region == "" {
		cfg.Region = "cn-beijing"
	}
	if cfg.Bucket == "" {
		return Config{}, fmt.Errorf("objstore: TOS_BUCKET must be set")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = fmt.Sprintf("https://tos-s3-%s.volces.com", cfg.Region)
	}
	if !strings.Contains(cfg.Endpoint, "://") {
		cfg.Endpoint = "https://" + cfg.Endpoint
	}
	return cfg, nil
}

func firstEnv(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// api is the slice of the S3 client the store uses.
type api interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, opts ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Store is an object-store handle bound to one bucket.
type Store struct {
	client  api
	presign *s3.PresignClient
	bucket  string
}

// New connects to the bucket with path-style addressing, which the
// S3-compatible endpoints require.
func New(cfg Config) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("objstore: bucket not set")
	}
	awsCfg := aws.Config{
		Region:      cfg.Region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.Endpoint)
		o.UsePathStyle = true
	})
	return &Store{
		client:  client,
		presign: s3.NewPresignClient(client),
		bucket:  cfg.Bucket,
	}, nil
}

// HashFile streams the file through SHA-256.
func HashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// ObjectKey derives the content-addressed key for a local file:
// {prefix or parent dir}/{stem}-{hash[:8]}{suffix}.
func ObjectKey(localPath, contentHash, prefix string) string {
	dir := prefix
	if dir == "" {
		dir = filepath.Base(filepath.Dir(localPath))
		if dir == "." || dir == string(filepath.Separator) {
			dir = "files"
		}
	}
	base := filepath.Base(localPath)
	suffix := filepath.Ext(base)
	stem := strings.TrimSuffix(base, suffix)
	return fmt.Sprintf("%s/%s-%s%s", dir, stem, contentHash[:hashPrefixLen], suffix)
}

// Exists heads the object. A 404 means absent; any other failure is an
// error, never silently treated as missing.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	var notFound *types.NotFound
	if errors.As(err, &notFound) {
		return false, nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorCode() == "NotFound" {
		return false, nil
	}
	return false, fmt.Errorf("head %s: %w", key, err)
}

// Upload puts the file at key. When the object already exists the upload
// is skipped unless overwrite is set; identical content always maps to
// the same key, so a skip is safe.
func (s *Store) Upload(ctx context.Context, localPath, key string, overwrite bool) error {
	fi, err := os.Stat(localPath)
	if err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	if fi.Size() == 0 {
		return fmt.Errorf("upload %s: empty file", localPath)
	}

	if !overwrite {
		exists, err := s.Exists(ctx, key)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("upload %s: %w", localPath, err)
	}
	defer f.Close()

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          f,
		ContentLength: aws.Int64(fi.Size()),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// PresignGet returns a time-limited GET URL for the object.
func (s *Store) PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if expiry <= 0 {
		expiry = DefaultPresignExpiry
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Publish hashes the file, uploads it under its content-addressed key
// when absent, and returns the key with a presigned GET URL.
func (s *Store) Publish(ctx context.Context, localPath, prefix string) (key, url string, err error) {
	hash, err := HashFile(localPath)
	if err != nil {
		return "", "", err
	}
	key = ObjectKey(localPath, hash, prefix)
	if err := s.Upload(ctx, localPath, key, false); err != nil {
		return "", "", err
	}
	url, err = s.PresignGet(ctx, key, DefaultPresignExpiry)
	if err != nil {
		return "", "", err
	}
	return key, url, nil
}
