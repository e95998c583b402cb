// Package storage 定义对象存储抽象以及对象键、下载签名等公共工具。
package storage

import (
	"context"
	"errors"
	"io"
	"path"
	"regexp"
	"strings"
	"time"
)

// ErrObjectNotFound 表示对象在存储中不存在。
var ErrObjectNotFound = errors.New("storage: object not found")

// BlobStore 是分享服务依赖的对象存储能力。
type BlobStore interface {
	// Put 写入对象，size 为 -1 表示未知长度。
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// SignedURL 返回在 ttl 内有效的下载地址，filename 用于 Content-Disposition。
	SignedURL(ctx context.Context, key, filename string, ttl time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// Reader 由可以直接回源读取的驱动实现（本地磁盘、内存）。
type Reader interface {
	Read(ctx context.Context, key string) (io.ReadCloser, error)
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectKey 生成 {prefix}/{base}_{suffix}{ext} 形式的对象键。
// base 只保留安全字符，过长时截断。
func ObjectKey(prefix, originalName, suffix string) string {
	name := path.Base(strings.ReplaceAll(originalName, `\`, "/"))
	ext := strings.ToLower(path.Ext(name))
	base := strings.TrimSuffix(name, path.Ext(name))
	base = strings.Trim(unsafeNameChars.ReplaceAllString(base, "-"), "-.")
	if base == "" {
		base = "file"
	}
	if len(base) > 64 {
		base = base[:64]
	}
	if !validExt(ext) {
		ext = ""
	}

	key := base + "_" + suffix + ext
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		key = prefix + "/" + key
	}
	return key
}

func validExt(ext string) bool {
	if len(ext) < 2 || len(ext) > 16 {
		return false
	}
	return !unsafeNameChars.MatchString(ext[1:])
}

// CleanKey 规范化对象键并拒绝逃逸出存储根目录的路径。
func CleanKey(key string) (string, bool) {
	if key == "" || strings.Contains(key, `\`) {
		return "", false
	}
	cleaned := path.Clean("/" + key)[1:]
	if cleaned == "" || cleaned != strings.TrimPrefix(key, "/") {
		return "", false
	}
	return cleaned, true
}
