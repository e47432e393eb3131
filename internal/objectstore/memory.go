package objectstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore implements Store with an in-memory map. It is used by tests
// and mirrors S3 listing semantics: lexicographic order, continuation
// tokens, truncation.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memoryObject

	// PageSize caps listing pages so tests can exercise pagination.
	PageSize int
}

type memoryObject struct {
	data     []byte
	modified time.Time
}

// NewMemory creates an empty in-memory store for the named bucket.
func NewMemory(bucket string) *MemoryStore {
	return &MemoryStore{
		bucket:   bucket,
		objects:  make(map[string]memoryObject),
		PageSize: 1000,
	}
}

// Bucket returns the bucket this store is scoped to.
func (s *MemoryStore) Bucket() string {
	return s.bucket
}

// List returns one lexicographically ordered page of objects.
func (s *MemoryStore) List(_ context.Context, opts ListOptions) (*ListResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	keys := make([]string, 0, len(s.objects))
	for key := range s.objects {
		if strings.HasPrefix(key, opts.Prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	// A continuation token is the last key of the previous page.
	if opts.ContinuationToken != "" {
		idx := sort.SearchStrings(keys, opts.ContinuationToken)
		if idx < len(keys) && keys[idx] == opts.ContinuationToken {
			idx++
		}
		keys = keys[idx:]
	}

	pageSize := s.PageSize
	if opts.MaxKeys > 0 && opts.MaxKeys < pageSize {
		pageSize = opts.MaxKeys
	}

	result := &ListResult{}
	if len(keys) > pageSize {
		result.IsTruncated = true
		keys = keys[:pageSize]
		result.ContinuationToken = keys[len(keys)-1]
	}

	for _, key := range keys {
		obj := s.objects[key]
		result.Objects = append(result.Objects, ObjectSummary{
			Key:          key,
			Size:         int64(len(obj.data)),
			LastModified: obj.modified,
		})
	}

	return result, nil
}

// Get returns a copy of the stored object.
func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	obj, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("get %s/%s: %w", s.bucket, key, ErrNotFound)
	}
	data := make([]byte, len(obj.data))
	copy(data, obj.data)
	return data, nil
}

// Put stores a copy of the object.
func (s *MemoryStore) Put(_ context.Context, key string, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := make([]byte, len(body))
	copy(data, body)
	s.objects[key] = memoryObject{data: data, modified: time.Now()}
	return nil
}

// PresignGet returns a synthetic URL naming the object.
func (s *MemoryStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.objects[key]; !ok {
		return "", fmt.Errorf("presign %s/%s: %w", s.bucket, key, ErrNotFound)
	}
	return fmt.Sprintf("memory://%s/%s?signed=1", s.bucket, key), nil
}

// Delete removes an object. Tests use it to simulate missing manifests.
func (s *MemoryStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
}
