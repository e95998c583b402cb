// Package memory 提供进程内对象存储，供 STORAGE_DRIVER=memory 与测试使用。
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"dropshare/internal/storage"
)

type object struct {
	data        []byte
	contentType string
}

// Store 实现 storage.BlobStore 与 storage.Reader。
type Store struct {
	mu      sync.RWMutex
	objects map[string]object
	signer  *storage.URLSigner
}

func New(signer *storage.URLSigner) *Store {
	return &Store{objects: make(map[string]object), signer: signer}
}

func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if _, ok := storage.CleanKey(key); !ok {
		return fmt.Errorf("invalid object key %q", key)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if size >= 0 && int64(len(data)) != size {
		return fmt.Errorf("short write: got %d bytes, want %d", len(data), size)
	}

	s.mu.Lock()
	s.objects[key] = object{data: data, contentType: contentType}
	s.mu.Unlock()
	return nil
}

func (s *Store) SignedURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	if !s.Has(key) {
		return "", storage.ErrObjectNotFound
	}
	return s.signer.Sign(key, filename, ttl)
}

func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (s *Store) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

// Has 判断对象是否存在。
func (s *Store) Has(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok
}

// Len 返回对象数量。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}
