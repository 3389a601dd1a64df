// Package s3 routes s3:// hrefs of a STAC catalog to an S3-compatible
// object store (AWS S3, MinIO, LocalStack, R2).
//
// Register a Store with the router for the "s3" scheme:
//
//	client, err := s3.NewClient(ctx, s3.ClientConfig{Region: "us-west-2", Anonymous: true})
//	store, err := s3.New(client, s3.Config{})
//	node, err := stacat.Open(ctx, "s3://bucket/catalog.json", stacat.WithStore("s3", store))
//
// With an empty Config.Bucket the first path segment names the bucket, so
// one Store serves every bucket an href refers to.
package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"github.com/pithecene-io/stacat/stacat"
)

// API is the subset of the S3 client used by Store.
type API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

// Config holds configuration for the S3 store.
type Config struct {
	// Bucket fixes the bucket. When empty, the first path segment of every
	// key names the bucket.
	Bucket string

	// Prefix is prepended to every key, with a trailing slash added if
	// missing.
	Prefix string
}

// Store implements stacat.Store on an S3-compatible backend.
type Store struct {
	client API
	bucket string
	prefix string
}

// New creates a store using a pre-configured client.
func New(client API, cfg Config) (*Store, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &Store{client: client, bucket: cfg.Bucket, prefix: prefix}, nil
}

// Put writes the object at key. Existing objects are not overwritten: the
// upload is conditional (If-None-Match) and a conflict returns
// stacat.ErrPathExists.
func (s *Store) Put(ctx context.Context, key string, r io.Reader) error {
	obj, err := s.object(key)
	if err != nil {
		return err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("s3: read body: %w", err)
	}
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        obj.bucket,
		Key:           obj.key,
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		IfNoneMatch:   aws.String("*"),
	})
	return translate("put", obj, err)
}

// Get returns the object at key, or stacat.ErrNotFound.
func (s *Store) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.object(key)
	if err != nil {
		return nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: obj.bucket, Key: obj.key})
	if err != nil {
		return nil, translate("get", obj, err)
	}
	return out.Body, nil
}

// Exists reports whether an object is stored at key.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	obj, err := s.object(key)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: obj.bucket, Key: obj.key})
	switch err = translate("head", obj, err); {
	case err == nil:
		return true, nil
	case errors.Is(err, stacat.ErrNotFound):
		return false, nil
	}
	return false, err
}

// objectRef addresses one object.
type objectRef struct {
	bucket *string
	key    *string
}

func (o objectRef) String() string { return "s3://" + *o.bucket + "/" + *o.key }

// object maps a store key onto a bucket and an object key below the
// configured prefix.
func (s *Store) object(key string) (objectRef, error) {
	cleaned := strings.TrimPrefix(path.Clean("/"+key), "/")
	if rel := path.Clean(key); cleaned == "" || rel == ".." || strings.HasPrefix(rel, "../") {
		return objectRef{}, stacat.ErrInvalidPath
	}

	bucket := s.bucket
	if bucket == "" {
		var ok bool
		bucket, cleaned, ok = strings.Cut(cleaned, "/")
		if !ok || cleaned == "" {
			return objectRef{}, fmt.Errorf("%w: %q names no bucket and object", stacat.ErrInvalidPath, key)
		}
	}
	return objectRef{bucket: aws.String(bucket), key: aws.String(s.prefix + cleaned)}, nil
}

// translate maps S3 error codes onto the stacat sentinels.
func translate(op string, obj objectRef, err error) error {
	if err == nil {
		return nil
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey", "NoSuchBucket", "404":
			return fmt.Errorf("s3: %s %s: %w", op, obj, stacat.ErrNotFound)
		case "PreconditionFailed", "412", "ConditionalRequestConflict":
			return fmt.Errorf("s3: %s %s: %w", op, obj, stacat.ErrPathExists)
		}
	}
	return fmt.Errorf("s3: %s %s: %w", op, obj, err)
}
