package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"dropshare/internal/repository"
)

// owned 读取记录并确认调用者是所有者。
func (s *ShareService) owned(ctx context.Context, ownerID, id string) (*repository.ShareRecord, error) {
	rec, err := s.shares.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr("lookup share", err)
	}
	if rec.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return rec, nil
}

// reload 在修改后重新读取记录并按对外格式返回。
func (s *ShareService) reload(ctx context.Context, id string) (*repository.ShareRecord, error) {
	rec, err := s.shares.GetByID(ctx, id)
	if err != nil {
		return nil, mapRepoErr("reload share", err)
	}
	return s.present(rec), nil
}

// Get 返回所有者可见的记录详情。
func (s *ShareService) Get(ctx context.Context, ownerID, id string) (*repository.ShareRecord, error) {
	rec, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	return s.present(rec), nil
}

// DownloadCount 返回记录当前的下载次数。
func (s *ShareService) DownloadCount(ctx context.Context, id string) (int64, error) {
	rec, err := s.shares.GetByID(ctx, id)
	if err != nil {
		return 0, mapRepoErr("lookup share", err)
	}
	return rec.DownloadCount, nil
}

// List 按创建时间倒序列出所有者的记录，query 为文件名子串。
func (s *ShareService) List(ctx context.Context, params repository.ListSharesParams) ([]repository.ShareRecord, error) {
	if strings.TrimSpace(params.OwnerID) == "" {
		return nil, validationError("owner id is required")
	}
	if params.Limit < 0 || params.Offset < 0 {
		return nil, validationError("limit and offset must not be negative")
	}

	records, err := s.shares.List(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("%w: list shares: %v", ErrInternal, err)
	}
	out := make([]repository.ShareRecord, 0, len(records))
	for i := range records {
		out = append(out, *s.present(&records[i]))
	}
	return out, nil
}

// OwnerStats 返回用户的聚合计数，从未上传过的用户返回全零。
func (s *ShareService) OwnerStats(ctx context.Context, ownerID string) (repository.OwnerStats, error) {
	if s.stats == nil {
		return repository.OwnerStats{OwnerID: ownerID}, nil
	}
	st, err := s.stats.Get(ctx, ownerID)
	if errors.Is(err, repository.ErrNotFound) {
		return repository.OwnerStats{OwnerID: ownerID}, nil
	}
	if err != nil {
		return repository.OwnerStats{}, fmt.Errorf("%w: owner stats: %v", ErrInternal, err)
	}
	return st, nil
}

// SetStatus 切换记录状态。
func (s *ShareService) SetStatus(ctx context.Context, ownerID, id string, status repository.ShareStatus) (*repository.ShareRecord, error) {
	if !status.Valid() {
		return nil, validationError("unknown status %q", status)
	}
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	if err := s.shares.UpdateStatus(ctx, id, status); err != nil {
		return nil, mapRepoErr("update status", err)
	}
	s.logger.Info("share status changed", slog.String("share_id", id), slog.String("status", string(status)))
	return s.reload(ctx, id)
}

// SetExpiry 设置从现在起 hours 小时后过期。
func (s *ShareService) SetExpiry(ctx context.Context, ownerID, id string, hours int) (*repository.ShareRecord, error) {
	if hours < 1 || hours > s.cfg.MaxExpiryHours {
		return nil, validationError("expiry hours must be between 1 and %d", s.cfg.MaxExpiryHours)
	}
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	expiresAt := s.now().UTC().Add(time.Duration(hours) * time.Hour)
	if err := s.shares.UpdateExpiry(ctx, id, true, expiresAt); err != nil {
		return nil, mapRepoErr("update expiry", err)
	}
	return s.reload(ctx, id)
}

// ClearExpiry 取消过期限制，保留期限从现在重新计算。
func (s *ShareService) ClearExpiry(ctx context.Context, ownerID, id string) (*repository.ShareRecord, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	retention := s.now().UTC().Add(s.cfg.DefaultRetention)
	if err := s.shares.UpdateExpiry(ctx, id, false, retention); err != nil {
		return nil, mapRepoErr("update expiry", err)
	}
	return s.reload(ctx, id)
}

// SetPassword 为记录设置新密码。
func (s *ShareService) SetPassword(ctx context.Context, ownerID, id, password string) (*repository.ShareRecord, error) {
	if password == "" {
		return nil, validationError("password is required")
	}
	if len(password) > 128 {
		return nil, validationError("password is too long")
	}
	if err := s.checkPasswordLength(password); err != nil {
		return nil, err
	}
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("%w: hash password: %v", ErrInternal, err)
	}
	if err := s.shares.UpdatePassword(ctx, id, hash); err != nil {
		return nil, mapRepoErr("update password", err)
	}
	return s.reload(ctx, id)
}

// ClearPassword 取消密码保护。
func (s *ShareService) ClearPassword(ctx context.Context, ownerID, id string) (*repository.ShareRecord, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}
	if err := s.shares.UpdatePassword(ctx, id, ""); err != nil {
		return nil, mapRepoErr("update password", err)
	}
	return s.reload(ctx, id)
}

// RegenerateShortCode 替换短码，旧链接随即失效。
func (s *ShareService) RegenerateShortCode(ctx context.Context, ownerID, id string) (*repository.ShareRecord, error) {
	if _, err := s.owned(ctx, ownerID, id); err != nil {
		return nil, err
	}

	for attempt := 1; attempt <= s.cfg.ShortCodeMaxAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, fmt.Errorf("%w: generate short code: %v", ErrInternal, err)
		}
		err = s.shares.UpdateShortCode(ctx, id, code)
		if err == nil {
			return s.reload(ctx, id)
		}
		if !errors.Is(err, repository.ErrDuplicateShortCode) {
			return nil, mapRepoErr("update short code", err)
		}
	}
	return nil, ErrConflict
}

// Delete 先删除对象再删除记录。对象删除失败时记录保持不变。
func (s *ShareService) Delete(ctx context.Context, ownerID, id string) error {
	rec, err := s.owned(ctx, ownerID, id)
	if err != nil {
		return err
	}

	blobCtx, cancel := context.WithTimeout(ctx, s.cfg.BlobTimeout)
	start := time.Now()
	err = s.blobs.Delete(blobCtx, rec.ObjectKey)
	blobDuration.WithLabelValues("delete").Observe(time.Since(start).Seconds())
	cancel()
	if err != nil {
		s.logger.Error("blob delete failed", slog.String("share_id", id), slog.String("object_key", rec.ObjectKey), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrBlobStore, err)
	}

	if err := s.shares.Delete(ctx, id); err != nil {
		return mapRepoErr("delete share", err)
	}
	s.logger.Info("share deleted", slog.String("share_id", id), slog.String("owner_id", ownerID))
	return nil
}
