// Package s3 provides an S3-compatible archive backend for SAFE products.
//
// It serves SAFE products that live unpacked under a bucket prefix, the way
// public Sentinel-2 mirrors publish them. It supports AWS S3, MinIO, and
// other S3-compatible object stores; the backend is read-only, as products
// are immutable inputs.
//
// Raster-layer addressing uses GDAL /vsis3/ paths, so band decoding works
// against the object store directly without downloading whole products.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/terrastack/safe/safe"
)

// API defines the subset of the S3 client interface used by the archive.
// This enables testing with mock implementations.
type API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Config holds configuration for the S3 archive.
type Config struct {
	// Bucket is the S3 bucket name. Required.
	Bucket string

	// Prefix is the key prefix of the product root (for example
	// "tiles/33/U/UP/S2A_MSIL1C_20170105T101402.SAFE"). A trailing slash is
	// added if missing.
	Prefix string
}

// Archive implements safe.Archive over an S3-compatible backend.
type Archive struct {
	client API
	bucket string
	prefix string
}

// New creates an S3 archive for one product.
//
// The client must be pre-configured with credentials, region, and endpoint.
// Use github.com/aws/aws-sdk-go-v2/config to load configuration:
//
//	cfg, err := config.LoadDefaultConfig(ctx)
//	client := s3.NewFromConfig(cfg)
func New(client API, cfg Config) (*Archive, error) {
	if client == nil {
		return nil, errors.New("s3: client is required")
	}
	if cfg.Bucket == "" {
		return nil, errors.New("s3: bucket is required")
	}

	prefix := cfg.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}

	return &Archive{
		client: client,
		bucket: cfg.Bucket,
		prefix: prefix,
	}, nil
}

// Open retrieves the object at a product-relative path.
// Returns safe.ErrNotFound if the object does not exist.
func (a *Archive) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	fullKey, err := a.validateKey(key)
	if err != nil {
		return nil, err
	}

	out, err := a.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, safe.ErrNotFound
		}
		return nil, fmt.Errorf("s3: get object: %w", err)
	}

	return out.Body, nil
}

// Exists checks whether a product-relative path exists.
func (a *Archive) Exists(ctx context.Context, key string) (bool, error) {
	fullKey, err := a.validateKey(key)
	if err != nil {
		return false, err
	}

	_, err = a.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(fullKey),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("s3: head object: %w", err)
	}
	return true, nil
}

// List returns product-relative keys under the given prefix, following
// pagination to the end.
func (a *Archive) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := a.prefix + strings.TrimPrefix(prefix, "/")

	var keys []string
	var continuationToken *string

	for {
		out, err := a.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(fullPrefix),
			ContinuationToken: continuationToken,
		})
		if err != nil {
			return nil, fmt.Errorf("s3: list objects: %w", err)
		}

		for _, obj := range out.Contents {
			if obj.Key != nil {
				// Strip the archive prefix to return product-relative keys
				keys = append(keys, strings.TrimPrefix(*obj.Key, a.prefix))
			}
		}

		if !aws.ToBool(out.IsTruncated) {
			break
		}
		continuationToken = out.NextContinuationToken
	}

	return keys, nil
}

// RasterPath returns a GDAL /vsis3/ path addressing the band object.
func (a *Archive) RasterPath(key string) string {
	fullKey, err := a.validateKey(key)
	if err != nil {
		return ""
	}
	return "/vsis3/" + a.bucket + "/" + fullKey
}

func (a *Archive) validateKey(key string) (string, error) {
	if key == "" {
		return "", safe.ErrInvalidPath
	}

	cleaned := path.Clean(key)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", safe.ErrInvalidPath
	}
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" {
		return "", safe.ErrInvalidPath
	}

	return a.prefix + cleaned, nil
}

func isNotFound(err error) bool {
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var nsb *types.NoSuchBucket
	if errors.As(err, &nsb) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		return code == "NotFound" || code == "NoSuchKey" || code == "404"
	}
	return false
}
