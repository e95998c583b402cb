// Package local 将对象写入本地文件系统，下载地址由服务自身的 /blobs 路由签名提供。
package local

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"dropshare/internal/storage"
)

// Store 实现 storage.BlobStore 与 storage.Reader。
type Store struct {
	BaseDir string
	signer  *storage.URLSigner
}

func New(baseDir string, signer *storage.URLSigner) *Store {
	return &Store{BaseDir: baseDir, signer: signer}
}

func (s *Store) path(key string) (string, error) {
	cleaned, ok := storage.CleanKey(key)
	if !ok {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(s.BaseDir, filepath.FromSlash(cleaned)), nil
}

// Put 先写临时文件再重命名，读者不会看到写了一半的对象。
func (s *Store) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	if s == nil {
		return fmt.Errorf("local store uninitialized")
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	targetPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
		return fmt.Errorf("ensure dir: %w", err)
	}

	tempPath := targetPath + ".tmp"
	file, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, r)
	if err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write file: %w", err)
	}
	if size >= 0 && written != size {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("short write: got %d bytes, want %d", written, size)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync file: %w", err)
	}

	if err := file.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	if err := os.Rename(tempPath, targetPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// SignedURL 返回指向 /blobs/{key} 的带令牌地址。对象不存在时返回 storage.ErrObjectNotFound。
func (s *Store) SignedURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error) {
	targetPath, err := s.path(key)
	if err != nil {
		return "", err
	}
	if _, err := os.Stat(targetPath); err != nil {
		if os.IsNotExist(err) {
			return "", storage.ErrObjectNotFound
		}
		return "", fmt.Errorf("stat file: %w", err)
	}
	return s.signer.Sign(key, filename, ttl)
}

// Read 打开并返回指定 key 对应的文件内容。
func (s *Store) Read(ctx context.Context, key string) (io.ReadCloser, error) {
	if s == nil {
		return nil, fmt.Errorf("local store uninitialized")
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	targetPath, err := s.path(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(targetPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// Delete 删除文件，已不存在时视为成功。
func (s *Store) Delete(ctx context.Context, key string) error {
	targetPath, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(targetPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove file: %w", err)
	}
	return nil
}
