// Package s3io provides the storage operations the pipeline needs: source
// download, derivative upload, and bulk/prefix deletion.
package s3io

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// deleteBatchMax is the S3 DeleteObjects per-request limit.
const deleteBatchMax = 1000

// API is the subset of the S3 client the pipeline uses.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	DeleteObjects(ctx context.Context, params *s3.DeleteObjectsInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Store wraps an S3 client with the bucket it operates on.
type Store struct {
	Client API
	Bucket string
}

// Download fetches an object's bytes along with its user metadata, keys
// lowercased.
func (s *Store) Download(ctx context.Context, bucket, key string) ([]byte, map[string]string, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, nil, fmt.Errorf("get %s/%s: %w", bucket, key, err)
	}
	defer out.Body.Close()

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s/%s: %w", bucket, key, err)
	}

	meta := make(map[string]string, len(out.Metadata))
	for k, v := range out.Metadata {
		meta[strings.ToLower(k)] = v
	}
	return body, meta, nil
}

// Upload writes body at key, overwriting any existing object.
func (s *Store) Upload(ctx context.Context, key, contentType string, body []byte) error {
	_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}

// DeleteKeys bulk-deletes the given keys, chunked at the S3 request limit.
// Deleting an absent key is a no-op, so callers may over-delete safely.
func (s *Store) DeleteKeys(ctx context.Context, keys []string) error {
	for len(keys) > 0 {
		batch := keys
		if len(batch) > deleteBatchMax {
			batch = batch[:deleteBatchMax]
		}
		keys = keys[len(batch):]

		objects := make([]types.ObjectIdentifier, len(batch))
		for i, k := range batch {
			objects[i] = types.ObjectIdentifier{Key: aws.String(k)}
		}
		_, err := s.Client.DeleteObjects(ctx, &s3.DeleteObjectsInput{
			Bucket: aws.String(s.Bucket),
			Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
		})
		if err != nil {
			return fmt.Errorf("delete %d keys: %w", len(batch), err)
		}
	}
	return nil
}

// DeletePrefix removes every object under prefix, repeating the
// list-then-delete cycle until a listing reports no more pages. There is no
// server-side prefix delete, so large prefixes take several rounds.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) error {
	for {
		out, err := s.Client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket: aws.String(s.Bucket),
			Prefix: aws.String(prefix),
		})
		if err != nil {
			return fmt.Errorf("list prefix %s: %w", prefix, err)
		}
		if len(out.Contents) == 0 {
			return nil
		}

		keys := make([]string, 0, len(out.Contents))
		for _, obj := range out.Contents {
			if obj.Key != nil {
				keys = append(keys, *obj.Key)
			}
		}
		if err := s.DeleteKeys(ctx, keys); err != nil {
			return err
		}

		if out.IsTruncated == nil || !*out.IsTruncated {
			return nil
		}
	}
}
