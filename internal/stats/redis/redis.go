// Package redis 提供基于 Redis 哈希的统计聚合实现。
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"dropshare/internal/repository"
	"dropshare/internal/stats"

	goredis "github.com/redis/go-redis/v9"
)

const (
	fieldUploads   = "total_uploads"
	fieldDownloads = "total_downloads"
	fieldImages    = "image_count"
	fieldVideos    = "video_count"
	fieldDocuments = "document_count"
)

// Config 包含连接 Redis 所需的配置。
type Config struct {
	Addr     string
	Password string
	DB       int
}

// Aggregator 使用 HINCRBY 累加计数，单个命令在 Redis 端原子执行。
type Aggregator struct {
	rdb    goredis.UniversalClient
	logger *slog.Logger
}

// New 创建 Redis 统计聚合器并检查连通性。
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Aggregator, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(rdb, logger), nil
}

// NewWithClient 使用已有客户端构建聚合器。
func NewWithClient(rdb goredis.UniversalClient, logger *slog.Logger) *Aggregator {
	return &Aggregator{rdb: rdb, logger: logger.With(slog.String("component", "redis_stats"))}
}

// Key 返回用户统计所在的哈希键。
func Key(ownerID string) string { return "dropshare:owner:" + ownerID + ":stats" }

// RecordUpload 累加上传计数及对应类别计数。
func (a *Aggregator) RecordUpload(ctx context.Context, ownerID, mimeType string) error {
	key := Key(ownerID)
	_, err := a.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HIncrBy(ctx, key, fieldUploads, 1)
		if field := categoryField(stats.Category(mimeType)); field != "" {
			pipe.HIncrBy(ctx, key, field, 1)
		}
		return nil
	})
	if err != nil {
		a.logger.Warn("HINCRBY upload failed", slog.String("key", key), slog.Any("error", err))
	}
	return err
}

// RecordDownload 累加下载计数。
func (a *Aggregator) RecordDownload(ctx context.Context, ownerID string) error {
	key := Key(ownerID)
	err := a.rdb.HIncrBy(ctx, key, fieldDownloads, 1).Err()
	if err != nil {
		a.logger.Warn("HINCRBY download failed", slog.String("key", key), slog.Any("error", err))
	}
	return err
}

// Get 读取用户的聚合计数；没有任何记录时返回全零计数。
func (a *Aggregator) Get(ctx context.Context, ownerID string) (repository.OwnerStats, error) {
	values, err := a.rdb.HGetAll(ctx, Key(ownerID)).Result()
	if err != nil {
		return repository.OwnerStats{}, err
	}

	out := repository.OwnerStats{OwnerID: ownerID}
	for field, target := range map[string]*int64{
		fieldUploads:   &out.TotalUploads,
		fieldDownloads: &out.TotalDownloads,
		fieldImages:    &out.ImageCount,
		fieldVideos:    &out.VideoCount,
		fieldDocuments: &out.DocumentCount,
	} {
		raw, ok := values[field]
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return repository.OwnerStats{}, fmt.Errorf("parse %s: %w", field, err)
		}
		*target = n
	}
	return out, nil
}

// Close 关闭底层连接。
func (a *Aggregator) Close() error {
	return a.rdb.Close()
}

func categoryField(category stats.MimeCategory) string {
	switch category {
	case stats.CategoryImage:
		return fieldImages
	case stats.CategoryVideo:
		return fieldVideos
	case stats.CategoryDocument:
		return fieldDocuments
	default:
		return ""
	}
}
