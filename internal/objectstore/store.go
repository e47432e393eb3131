// Package objectstore abstracts the bucket-scoped object storage operations
// the orchestrator needs: paginated listing, get, put and presigned GET URL
// generation. The S3 implementation is the production backend; the memory
// implementation backs tests.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Sentinel errors surfaced by implementations.
var (
	ErrNotFound     = errors.New("object not found")
	ErrAccessDenied = errors.New("access denied")
)

// ObjectSummary describes one listed object.
type ObjectSummary struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// ListOptions controls a single page of a listing.
type ListOptions struct {
	Prefix            string
	ContinuationToken string
	MaxKeys           int
}

// ListResult is one page of objects. When IsTruncated is set the caller
// passes ContinuationToken back to fetch the next page.
type ListResult struct {
	Objects           []ObjectSummary
	ContinuationToken string
	IsTruncated       bool
}

// Store is a bucket-scoped object storage client.
type Store interface {
	Bucket() string
	List(ctx context.Context, opts ListOptions) (*ListResult, error)
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	PresignGet(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// ParseURI splits an s3://bucket/key URI into bucket and key.
func ParseURI(uri string) (bucket, key string, err error) {
	rest, ok := strings.CutPrefix(uri, "s3://")
	if !ok || rest == "" {
		return "", "", fmt.Errorf("invalid s3 uri: %q", uri)
	}
	bucket, key, _ = strings.Cut(rest, "/")
	key = strings.Trim(key, "/")
	if bucket == "" || key == "" {
		return "", "", fmt.Errorf("invalid s3 uri: %q", uri)
	}
	return bucket, key, nil
}

// URI builds an s3://bucket/key URI from parts, trimming stray slashes.
func URI(bucket string, parts ...string) string {
	segments := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			segments = append(segments, p)
		}
	}
	if len(segments) == 0 {
		return "s3://" + bucket
	}
	return "s3://" + bucket + "/" + strings.Join(segments, "/")
}
