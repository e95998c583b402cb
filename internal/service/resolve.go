package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"dropshare/internal/repository"
)

// Download 是一次授权成功的解析结果。
type Download struct {
	URL       string    `json:"downloadUrl"`
	FileName  string    `json:"fileName"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// ShareInfo 是输入密码前可以展示的链接元数据，不含对象键与密码哈希。
type ShareInfo struct {
	ID           string     `json:"id"`
	ShortCode    string     `json:"shortCode"`
	ShareURL     string     `json:"shareUrl"`
	OriginalName string     `json:"originalName"`
	MimeType     string     `json:"mimeType"`
	SizeBytes    int64      `json:"sizeBytes"`
	HasPassword  bool       `json:"hasPassword"`
	HasExpiry    bool       `json:"hasExpiry"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
}

// Resolve 按短码解析分享链接，校验通过后返回签名下载地址并累加下载计数。
// password 为空字符串表示未提供。
func (s *ShareService) Resolve(ctx context.Context, code, password string) (*Download, error) {
	rec, err := s.shares.GetByShortCode(ctx, code)
	return s.resolve(ctx, rec, err, password)
}

// ResolveByID 与 Resolve 相同，但按记录 id 查找。
func (s *ShareService) ResolveByID(ctx context.Context, id, password string) (*Download, error) {
	rec, err := s.shares.GetByID(ctx, id)
	return s.resolve(ctx, rec, err, password)
}

func (s *ShareService) resolve(ctx context.Context, rec *repository.ShareRecord, lookupErr error, password string) (dl *Download, err error) {
	defer func() {
		resolutions.WithLabelValues(outcomeOf(err)).Inc()
	}()

	if lookupErr != nil {
		return nil, mapRepoErr("lookup share", lookupErr)
	}
	if err := s.gate(rec, password); err != nil {
		return nil, err
	}

	url, err := s.signedURL(ctx, rec)
	if err != nil {
		return nil, err
	}

	// 计数失败不影响本次下载
	if err := s.shares.IncrementDownloads(ctx, rec.ID); err != nil {
		downloadCountErrors.Inc()
		s.logger.Error("increment download count failed", slog.String("share_id", rec.ID), slog.Any("error", err))
	}
	if s.stats != nil {
		if err := s.stats.RecordDownload(ctx, rec.OwnerID); err != nil {
			s.logger.Warn("record download stats failed", slog.String("owner_id", rec.OwnerID), slog.Any("error", err))
		}
	}

	return &Download{
		URL:       url,
		FileName:  rec.OriginalName,
		ExpiresAt: s.now().UTC().Add(s.cfg.SignedURLTTL),
	}, nil
}

// gate 按固定顺序校验：状态、过期、密码。
func (s *ShareService) gate(rec *repository.ShareRecord, password string) error {
	if err := s.checkAvailable(rec); err != nil {
		return err
	}
	if !rec.HasPassword {
		return nil
	}
	if password == "" {
		return ErrPasswordRequired
	}
	return s.checkPassword(rec, password)
}

func (s *ShareService) checkAvailable(rec *repository.ShareRecord) error {
	if rec.Status != repository.ShareStatusActive {
		return ErrDisabled
	}
	if rec.Expired(s.now()) {
		return ErrExpired
	}
	return nil
}

func (s *ShareService) checkPassword(rec *repository.ShareRecord, password string) error {
	ok, err := s.hasher.Verify(password, rec.PasswordHash)
	if err != nil {
		s.logger.Error("verify password failed", slog.String("share_id", rec.ID), slog.Any("error", err))
		return fmt.Errorf("%w: verify password", ErrInternal)
	}
	if !ok {
		return ErrIncorrectPassword
	}
	return nil
}

func (s *ShareService) signedURL(ctx context.Context, rec *repository.ShareRecord) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BlobTimeout)
	defer cancel()

	start := time.Now()
	url, err := s.blobs.SignedURL(ctx, rec.ObjectKey, rec.OriginalName, s.cfg.SignedURLTTL)
	blobDuration.WithLabelValues("sign").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("signed url generation failed",
			slog.String("share_id", rec.ID),
			slog.String("object_key", rec.ObjectKey),
			slog.Any("error", err),
		)
		return "", errSignedURL
	}
	return url, nil
}

// Peek 返回链接的展示信息。与 Resolve 一样检查状态与过期，但不校验密码、不计数。
func (s *ShareService) Peek(ctx context.Context, code string) (*ShareInfo, error) {
	rec, err := s.shares.GetByShortCode(ctx, code)
	if err != nil {
		return nil, mapRepoErr("lookup share", err)
	}
	if err := s.checkAvailable(rec); err != nil {
		return nil, err
	}

	info := &ShareInfo{
		ID:           rec.ID,
		ShortCode:    rec.ShortCode,
		ShareURL:     s.ShareURL(rec.ShortCode),
		OriginalName: rec.OriginalName,
		MimeType:     rec.MimeType,
		SizeBytes:    rec.SizeBytes,
		HasPassword:  rec.HasPassword,
		HasExpiry:    rec.HasExpiry,
	}
	if rec.HasExpiry {
		expiresAt := rec.ExpiresAt
		info.ExpiresAt = &expiresAt
	}
	return info, nil
}

// VerifyPassword 只执行密码校验这一步。不匹配返回 (false, nil)。
func (s *ShareService) VerifyPassword(ctx context.Context, id, password string) (bool, error) {
	rec, err := s.shares.GetByID(ctx, id)
	if err != nil {
		return false, mapRepoErr("lookup share", err)
	}
	if !rec.HasPassword {
		return false, ErrNotPasswordProtected
	}
	if password == "" {
		return false, ErrPasswordRequired
	}

	err = s.checkPassword(rec, password)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrIncorrectPassword):
		return false, nil
	default:
		return false, err
	}
}
