package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"dropshare/internal/repository"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sharesTable         = "shares"
	shortCodeConstraint = "shares_short_code_key"
	uniqueViolationCode = "23505"
	invalidTextCode     = "22P02"
	defaultListLimit    = 50
	maxListLimit        = 500
)

// NewShareRepository 返回基于 *sql.DB 的 Postgres 实现。
func NewShareRepository(db *sql.DB) *ShareRepository {
	return &ShareRepository{db: db}
}

// ShareRepository 实现 repository.ShareRepository。
type ShareRepository struct {
	db *sql.DB
}

var shareSelectColumns = []string{
	"id",
	"object_key",
	"original_name",
	"mime_type",
	"size_bytes",
	"short_code",
	"password_hash",
	"has_expiry",
	"expires_at",
	"status",
	"download_count",
	"owner_id",
	"created_at",
	"updated_at",
}

func qb() sq.StatementBuilderType {
	return sq.StatementBuilder.PlaceholderFormat(sq.Dollar)
}

// Create 插入分享记录并返回数据库生成字段（如时间戳）。
func (r *ShareRepository) Create(ctx context.Context, record *repository.ShareRecord) (*repository.ShareRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("share record is nil")
	}

	query, args, err := qb().Insert(sharesTable).
		Columns(
			"id", "object_key", "original_name", "mime_type", "size_bytes", "short_code",
			"password_hash", "has_expiry", "expires_at", "status", "owner_id", "created_at", "updated_at",
		).
		Values(
			record.ID, record.ObjectKey, record.OriginalName, record.MimeType, record.SizeBytes, record.ShortCode,
			nullableHash(record.PasswordHash), record.HasExpiry, record.ExpiresAt, record.Status, record.OwnerID,
			record.CreatedAt, record.UpdatedAt,
		).
		Suffix("RETURNING " + strings.Join(shareSelectColumns, ",")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}

	created, err := scanShareRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if isShortCodeViolation(err) {
			return nil, repository.ErrDuplicateShortCode
		}
		return nil, err
	}
	return created, nil
}

// GetByID 通过主键查询分享记录。
func (r *ShareRepository) GetByID(ctx context.Context, id string) (*repository.ShareRecord, error) {
	return r.getOne(ctx, sq.Eq{"id": id})
}

// GetByShortCode 通过短码查询分享记录。
func (r *ShareRepository) GetByShortCode(ctx context.Context, code string) (*repository.ShareRecord, error) {
	return r.getOne(ctx, sq.Eq{"short_code": code})
}

func (r *ShareRepository) getOne(ctx context.Context, where sq.Eq) (*repository.ShareRecord, error) {
	query, args, err := qb().Select(shareSelectColumns...).From(sharesTable).Where(where).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	record, err := scanShareRecord(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		// 非法 UUID 等输入同样视为不存在
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == invalidTextCode {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return record, nil
}

// List 按 owner 过滤并分页，最新的记录在前。
func (r *ShareRepository) List(ctx context.Context, params repository.ListSharesParams) ([]repository.ShareRecord, error) {
	limit := params.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	builder := qb().Select(shareSelectColumns...).From(sharesTable).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit))
	if params.OwnerID != "" {
		builder = builder.Where(sq.Eq{"owner_id": params.OwnerID})
	}
	if q := strings.TrimSpace(params.Query); q != "" {
		builder = builder.Where(sq.ILike{"original_name": "%" + escapeLike(q) + "%"})
	}
	if params.Offset > 0 {
		builder = builder.Offset(uint64(params.Offset))
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []repository.ShareRecord
	for rows.Next() {
		rec, err := scanShareRecord(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// UpdateStatus 更新分享状态。
func (r *ShareRepository) UpdateStatus(ctx context.Context, id string, status repository.ShareStatus) error {
	return r.update(ctx, id, map[string]any{"status": status})
}

// UpdatePassword 更新密码哈希，hash 为空时清除密码。
func (r *ShareRepository) UpdatePassword(ctx context.Context, id string, hash string) error {
	return r.update(ctx, id, map[string]any{"password_hash": nullableHash(hash)})
}

// UpdateExpiry 更新过期设置。
func (r *ShareRepository) UpdateExpiry(ctx context.Context, id string, hasExpiry bool, expiresAt time.Time) error {
	return r.update(ctx, id, map[string]any{"has_expiry": hasExpiry, "expires_at": expiresAt})
}

// UpdateShortCode 替换短码，冲突时返回 repository.ErrDuplicateShortCode。
func (r *ShareRepository) UpdateShortCode(ctx context.Context, id string, code string) error {
	err := r.update(ctx, id, map[string]any{"short_code": code})
	if isShortCodeViolation(err) {
		return repository.ErrDuplicateShortCode
	}
	return err
}

// IncrementDownloads 使用单条 UPDATE 原子自增，避免应用层读改写丢失更新。
func (r *ShareRepository) IncrementDownloads(ctx context.Context, id string) error {
	return r.update(ctx, id, map[string]any{"download_count": sq.Expr("download_count + 1")})
}

// Delete 物理删除分享记录。
func (r *ShareRepository) Delete(ctx context.Context, id string) error {
	query, args, err := qb().Delete(sharesTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	return execAffectingOne(ctx, r.db, query, args)
}

func (r *ShareRepository) update(ctx context.Context, id string, fields map[string]any) error {
	query, args, err := qb().Update(sharesTable).
		SetMap(fields).
		Set("updated_at", time.Now().UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	return execAffectingOne(ctx, r.db, query, args)
}

func execAffectingOne(ctx context.Context, db *sql.DB, query string, args []any) error {
	res, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == invalidTextCode {
			return repository.ErrNotFound
		}
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return repository.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShareRecord(rs rowScanner) (*repository.ShareRecord, error) {
	var (
		rec          repository.ShareRecord
		passwordHash sql.NullString
	)

	if err := rs.Scan(
		&rec.ID,
		&rec.ObjectKey,
		&rec.OriginalName,
		&rec.MimeType,
		&rec.SizeBytes,
		&rec.ShortCode,
		&passwordHash,
		&rec.HasExpiry,
		&rec.ExpiresAt,
		&rec.Status,
		&rec.DownloadCount,
		&rec.OwnerID,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	); err != nil {
		return nil, err
	}

	if passwordHash.Valid && passwordHash.String != "" {
		rec.PasswordHash = passwordHash.String
		rec.HasPassword = true
	}

	return &rec, nil
}

func nullableHash(hash string) sql.NullString {
	return sql.NullString{String: hash, Valid: hash != ""}
}

func isShortCodeViolation(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == uniqueViolationCode && pgErr.ConstraintName == shortCodeConstraint
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
