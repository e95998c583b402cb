// Package stats 维护每个用户的上传/下载聚合计数。
package stats

import (
	"context"
	"strings"

	"dropshare/internal/repository"
)

// MimeCategory 是上传统计使用的粗粒度文件类别。
type MimeCategory string

const (
	CategoryImage    MimeCategory = "image"
	CategoryVideo    MimeCategory = "video"
	CategoryDocument MimeCategory = "document"
	CategoryOther    MimeCategory = "other"
)

// Aggregator 在签发与下载成功后累加计数。实现必须保证并发累加不丢失。
type Aggregator interface {
	RecordUpload(ctx context.Context, ownerID, mimeType string) error
	RecordDownload(ctx context.Context, ownerID string) error
	Get(ctx context.Context, ownerID string) (repository.OwnerStats, error)
}

// Category 按 MIME 主类型归类，application/* 计为文档。
func Category(mimeType string) MimeCategory {
	major, _, _ := strings.Cut(strings.ToLower(strings.TrimSpace(mimeType)), "/")
	switch major {
	case "image":
		return CategoryImage
	case "video":
		return CategoryVideo
	case "application":
		return CategoryDocument
	default:
		return CategoryOther
	}
}
