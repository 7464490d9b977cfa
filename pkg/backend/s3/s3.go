// Package s3 implements backend.Enumerator against an S3 bucket, keying
// shares as prefix/storage_index/shnum objects, mirroring this codebase's
// existing S3-backed payload store layout.
package s3

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/marmos91/sharelease/pkg/backend"
)

// Client is the subset of the AWS SDK S3 client this package depends on,
// narrowed for testability.
type Client interface {
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
}

// Enumerator is a backend.Enumerator backed by an S3 bucket.
type Enumerator struct {
	client Client
	bucket string
}

// New returns an Enumerator over the given bucket using client.
func New(client Client, bucket string) *Enumerator {
	return &Enumerator{client: client, bucket: bucket}
}

func key(prefix, storageIndexB32 string, shnum int) string {
	return fmt.Sprintf("%s/%s/%d", prefix, storageIndexB32, shnum)
}

// ListPrefix paginates ListObjectsV2 under the two-character prefix and
// returns the distinct storage indices seen. Shares are leaves, so no
// delimiter is used; the full prefix is scanned and keys are split in Go.
func (e *Enumerator) ListPrefix(ctx context.Context, prefix string) ([]string, error) {
	seen := make(map[string]struct{})
	var continuationToken *string

	for {
		out, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(e.bucket),
			Prefix:            aws.String(prefix + "/"),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 backend: list prefix %q: %w", prefix, err)
		}

		for _, obj := range out.Contents {
			parts := strings.SplitN(aws.ToString(obj.Key), "/", 3)
			if len(parts) != 3 {
				continue
			}
			seen[parts[1]] = struct{}{}
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	indices := make([]string, 0, len(seen))
	for si := range seen {
		indices = append(indices, si)
	}
	return indices, nil
}

// ListBucket returns the share numbers present for a storage index.
func (e *Enumerator) ListBucket(ctx context.Context, prefix, storageIndexB32 string) ([]int, error) {
	bucketPrefix := prefix + "/" + storageIndexB32 + "/"
	var continuationToken *string
	var shnums []int

	for {
		out, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(e.bucket),
			Prefix:            aws.String(bucketPrefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("s3 backend: list bucket %q: %w", bucketPrefix, err)
		}

		for _, obj := range out.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), bucketPrefix)
			shnum, err := strconv.Atoi(name)
			if err != nil {
				continue
			}
			shnums = append(shnums, shnum)
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return shnums, nil
}

// UsedSpace returns the object's content length via HeadObject.
func (e *Enumerator) UsedSpace(ctx context.Context, prefix, storageIndexB32 string, shnum int) (int64, error) {
	out, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key(prefix, storageIndexB32, shnum)),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return 0, backend.ErrNotFound
		}
		return 0, fmt.Errorf("s3 backend: head object: %w", err)
	}
	return aws.ToInt64(out.ContentLength), nil
}

// Delete issues DeleteObject, treating a missing object as success.
func (e *Enumerator) Delete(ctx context.Context, prefix, storageIndexB32 string, shnum int) error {
	_, err := e.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(e.bucket),
		Key:    aws.String(key(prefix, storageIndexB32, shnum)),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil
		}
		return fmt.Errorf("s3 backend: delete object: %w", err)
	}
	return nil
}
