package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dropshare/internal/repository"
	"dropshare/internal/stats"

	sq "github.com/Masterminds/squirrel"
)

const ownersTable = "owners"

// NewOwnerRepository 返回基于 owners 表的实现，同时承担统计聚合。
func NewOwnerRepository(db *sql.DB) *OwnerRepository {
	return &OwnerRepository{db: db}
}

// OwnerRepository 实现 repository.OwnerRepository 与 stats.Aggregator。
type OwnerRepository struct {
	db *sql.DB
}

// Ensure 幂等登记用户。
func (r *OwnerRepository) Ensure(ctx context.Context, ownerID string) error {
	query, args, err := qb().Insert(ownersTable).
		Columns("id").
		Values(ownerID).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build owner insert: %w", err)
	}
	_, err = r.db.ExecContext(ctx, query, args...)
	return err
}

// Exists 判断用户是否已登记。
func (r *OwnerRepository) Exists(ctx context.Context, ownerID string) (bool, error) {
	query, args, err := qb().Select("1").From(ownersTable).Where(sq.Eq{"id": ownerID}).Prefix("SELECT EXISTS(").Suffix(")").ToSql()
	if err != nil {
		return false, fmt.Errorf("build owner exists: %w", err)
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// RecordUpload 累加上传计数及对应类别计数。
func (r *OwnerRepository) RecordUpload(ctx context.Context, ownerID, mimeType string) error {
	fields := map[string]any{"total_uploads": sq.Expr("total_uploads + 1")}
	if column := categoryColumn(stats.Category(mimeType)); column != "" {
		fields[column] = sq.Expr(column + " + 1")
	}
	return r.increment(ctx, ownerID, fields)
}

// RecordDownload 累加下载计数。
func (r *OwnerRepository) RecordDownload(ctx context.Context, ownerID string) error {
	return r.increment(ctx, ownerID, map[string]any{"total_downloads": sq.Expr("total_downloads + 1")})
}

// Get 返回用户的聚合计数。
func (r *OwnerRepository) Get(ctx context.Context, ownerID string) (repository.OwnerStats, error) {
	query, args, err := qb().
		Select("id", "total_uploads", "total_downloads", "image_count", "video_count", "document_count").
		From(ownersTable).
		Where(sq.Eq{"id": ownerID}).
		ToSql()
	if err != nil {
		return repository.OwnerStats{}, fmt.Errorf("build owner stats: %w", err)
	}

	var out repository.OwnerStats
	err = r.db.QueryRowContext(ctx, query, args...).Scan(
		&out.OwnerID, &out.TotalUploads, &out.TotalDownloads, &out.ImageCount, &out.VideoCount, &out.DocumentCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return repository.OwnerStats{}, repository.ErrNotFound
	}
	return out, err
}

func (r *OwnerRepository) increment(ctx context.Context, ownerID string, fields map[string]any) error {
	query, args, err := qb().Update(ownersTable).
		SetMap(fields).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": ownerID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build owner increment: %w", err)
	}
	return execAffectingOne(ctx, r.db, query, args)
}

func categoryColumn(category stats.MimeCategory) string {
	switch category {
	case stats.CategoryImage:
		return "image_count"
	case stats.CategoryVideo:
		return "video_count"
	case stats.CategoryDocument:
		return "document_count"
	default:
		return ""
	}
}
