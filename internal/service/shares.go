// Package service 实现分享链接的签发、解析校验与所有者管理。
package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"
	"time"

	"dropshare/internal/repository"
	"dropshare/internal/stats"
	"dropshare/internal/storage"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// PasswordHasher 是分享密码的单向哈希能力。
type PasswordHasher interface {
	Hash(plain string) (string, error)
	Verify(plain, encoded string) (bool, error)
}

// passwordLimiter 由对密码长度有上限的哈希实现。
type passwordLimiter interface {
	MaxBytes() int
}

// CodeGenerator 生成 URL 安全的随机短码，不保证唯一。
type CodeGenerator interface {
	Generate() (string, error)
}

// Deps 聚合服务依赖的协作者。
type Deps struct {
	Shares repository.ShareRepository
	Owners repository.OwnerRepository
	Stats  stats.Aggregator
	Blobs  storage.BlobStore
	Hasher PasswordHasher
	Codes  CodeGenerator
}

// Config 是分享策略。零值字段使用默认值。
type Config struct {
	BaseURL              string
	StoragePrefix        string
	SignedURLTTL         time.Duration
	BlobTimeout          time.Duration
	MaxUploadBytes       int64
	MaxBatchFiles        int
	BatchConcurrency     int
	AllowedExtensions    []string
	DefaultRetention     time.Duration
	MaxExpiryHours       int
	ShortCodeMaxAttempts int
	OwnerCacheSize       int
	OwnerCacheTTL        time.Duration
}

const (
	defaultSignedURLTTL     = time.Hour
	defaultBlobTimeout      = 30 * time.Second
	defaultMaxUploadBytes   = 10 << 20
	defaultMaxBatchFiles    = 10
	defaultBatchConcurrency = 4
	defaultRetention        = 240 * time.Hour
	defaultMaxExpiryHours   = 24 * 365
	defaultMaxAttempts      = 5
)

func (c *Config) applyDefaults() {
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.SignedURLTTL <= 0 {
		c.SignedURLTTL = defaultSignedURLTTL
	}
	if c.BlobTimeout <= 0 {
		c.BlobTimeout = defaultBlobTimeout
	}
	if c.MaxUploadBytes <= 0 {
		c.MaxUploadBytes = defaultMaxUploadBytes
	}
	if c.MaxBatchFiles <= 0 {
		c.MaxBatchFiles = defaultMaxBatchFiles
	}
	if c.BatchConcurrency <= 0 {
		c.BatchConcurrency = defaultBatchConcurrency
	}
	if c.DefaultRetention <= 0 {
		c.DefaultRetention = defaultRetention
	}
	if c.MaxExpiryHours <= 0 {
		c.MaxExpiryHours = defaultMaxExpiryHours
	}
	if c.ShortCodeMaxAttempts <= 0 {
		c.ShortCodeMaxAttempts = defaultMaxAttempts
	}
}

// Option 调整 ShareService 的可选行为。
type Option func(*ShareService)

// WithLogger 设置日志记录器。
func WithLogger(logger *slog.Logger) Option {
	return func(s *ShareService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock 替换时间源，测试中用于模拟过期。
func WithClock(now func() time.Time) Option {
	return func(s *ShareService) {
		if now != nil {
			s.now = now
		}
	}
}

// ShareService 封装分享记录的完整生命周期。
type ShareService struct {
	shares   repository.ShareRepository
	owners   *ownerDirectory
	stats    stats.Aggregator
	blobs    storage.BlobStore
	hasher   PasswordHasher
	codes    CodeGenerator
	cfg      Config
	allowed  map[string]struct{}
	validate *validator.Validate
	logger   *slog.Logger
	now      func() time.Time
}

// New 创建服务。Stats 可以为空，此时不记录聚合计数。
func New(deps Deps, cfg Config, opts ...Option) (*ShareService, error) {
	switch {
	case deps.Shares == nil:
		return nil, errors.New("share repository is required")
	case deps.Owners == nil:
		return nil, errors.New("owner repository is required")
	case deps.Blobs == nil:
		return nil, errors.New("blob store is required")
	case deps.Hasher == nil:
		return nil, errors.New("password hasher is required")
	case deps.Codes == nil:
		return nil, errors.New("short code generator is required")
	}

	cfg.applyDefaults()
	s := &ShareService{
		shares:   deps.Shares,
		owners:   newOwnerDirectory(deps.Owners, cfg.OwnerCacheSize, cfg.OwnerCacheTTL),
		stats:    deps.Stats,
		blobs:    deps.Blobs,
		hasher:   deps.Hasher,
		codes:    deps.Codes,
		cfg:      cfg,
		validate: validator.New(),
		logger:   slog.Default(),
		now:      time.Now,
	}
	if len(cfg.AllowedExtensions) > 0 {
		s.allowed = make(map[string]struct{}, len(cfg.AllowedExtensions))
		for _, ext := range cfg.AllowedExtensions {
			s.allowed[strings.ToLower(ext)] = struct{}{}
		}
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With(slog.String("component", "share_service"))
	return s, nil
}

// ShareOptions 是签发时的访问控制选项。
type ShareOptions struct {
	// Password 为空表示不设密码。
	Password string `validate:"max=128"`
	// ExpiryHours 为 0 表示不设过期时间。
	ExpiryHours int `validate:"gte=0"`
}

// IssueInput 描述一次签发。Size 必须是 Body 的准确字节数。
type IssueInput struct {
	OwnerID      string `validate:"required,max=128"`
	OriginalName string `validate:"required,max=255"`
	MimeType     string `validate:"max=255"`
	Size         int64
	Body         io.Reader
	Options      ShareOptions
}

// IssueResult 是批量签发中单个文件的结果，Record 与 Err 二选一。
type IssueResult struct {
	Name   string
	Record *repository.ShareRecord
	Err    error
}

// EnsureOwner 登记经过鉴权的用户。
func (s *ShareService) EnsureOwner(ctx context.Context, ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return validationError("owner id is required")
	}
	if err := s.owners.ensure(ctx, ownerID); err != nil {
		return fmt.Errorf("%w: ensure owner: %v", ErrInternal, err)
	}
	return nil
}

// SeedOwners 在启动时登记一组用户。无鉴权模式下没有登记中间件，只能依赖这里。
func (s *ShareService) SeedOwners(ctx context.Context, ownerIDs []string) error {
	for _, id := range ownerIDs {
		if err := s.EnsureOwner(ctx, id); err != nil {
			return fmt.Errorf("seed owner %q: %w", id, err)
		}
	}
	return nil
}

// Issue 存储对象并创建分享记录。
// 对象写入失败时不创建记录；记录创建失败时尽力删除已写入的对象。
func (s *ShareService) Issue(ctx context.Context, in IssueInput) (*repository.ShareRecord, error) {
	if err := s.checkIssueInput(in); err != nil {
		return nil, err
	}

	ok, err := s.owners.exists(ctx, in.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("%w: lookup owner: %v", ErrInternal, err)
	}
	if !ok {
		return nil, ErrOwnerNotFound
	}

	var hash string
	if in.Options.Password != "" {
		if hash, err = s.hasher.Hash(in.Options.Password); err != nil {
			return nil, fmt.Errorf("%w: hash password: %v", ErrInternal, err)
		}
	}

	suffix, err := s.codes.Generate()
	if err != nil {
		return nil, fmt.Errorf("%w: object key suffix: %v", ErrInternal, err)
	}
	key := storage.ObjectKey(s.cfg.StoragePrefix, in.OriginalName, suffix)

	mimeType := strings.TrimSpace(in.MimeType)
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	if err := s.putBlob(ctx, key, in.Body, in.Size, mimeType); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	record := &repository.ShareRecord{
		ID:           uuid.NewString(),
		ObjectKey:    key,
		OriginalName: path.Base(strings.ReplaceAll(in.OriginalName, `\`, "/")),
		MimeType:     mimeType,
		SizeBytes:    in.Size,
		PasswordHash: hash,
		HasPassword:  hash != "",
		ExpiresAt:    now.Add(s.cfg.DefaultRetention),
		Status:       repository.ShareStatusActive,
		OwnerID:      in.OwnerID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if h := in.Options.ExpiryHours; h > 0 {
		record.HasExpiry = true
		record.ExpiresAt = now.Add(time.Duration(h) * time.Hour)
	}

	created, err := s.createWithUniqueCode(ctx, record)
	if err != nil {
		s.discardBlob(key)
		return nil, err
	}

	if s.stats != nil {
		if err := s.stats.RecordUpload(ctx, created.OwnerID, created.MimeType); err != nil {
			s.logger.Warn("record upload stats failed", slog.String("owner_id", created.OwnerID), slog.Any("error", err))
		}
	}
	linksIssued.Inc()
	s.logger.Info("share issued",
		slog.String("share_id", created.ID),
		slog.String("owner_id", created.OwnerID),
		slog.Int64("size_bytes", created.SizeBytes),
		slog.Bool("has_password", created.HasPassword),
		slog.Bool("has_expiry", created.HasExpiry),
	)

	return s.present(created), nil
}

// IssueBatch 并发签发多个文件。每个文件独立成功或失败，结果顺序与输入一致。
func (s *ShareService) IssueBatch(ctx context.Context, inputs []IssueInput) ([]IssueResult, error) {
	if len(inputs) == 0 {
		return nil, ErrNoObject
	}
	if len(inputs) > s.cfg.MaxBatchFiles {
		return nil, validationError("at most %d files per upload", s.cfg.MaxBatchFiles)
	}

	results := make([]IssueResult, len(inputs))
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i := range inputs {
		g.Go(func() error {
			rec, err := s.Issue(ctx, inputs[i])
			results[i] = IssueResult{Name: inputs[i].OriginalName, Record: rec, Err: err}
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *ShareService) checkIssueInput(in IssueInput) error {
	if in.Body == nil || in.Size == 0 {
		return ErrNoObject
	}
	if in.Size < 0 {
		return validationError("object size is unknown")
	}
	if in.Size > s.cfg.MaxUploadBytes {
		return fmt.Errorf("%w: limit is %d bytes", ErrPayloadTooLarge, s.cfg.MaxUploadBytes)
	}
	if err := s.validateStruct(in); err != nil {
		return err
	}
	if err := s.checkPasswordLength(in.Options.Password); err != nil {
		return err
	}
	if in.Options.ExpiryHours > s.cfg.MaxExpiryHours {
		return validationError("expiry hours must be between 1 and %d", s.cfg.MaxExpiryHours)
	}
	if s.allowed != nil {
		ext := strings.ToLower(path.Ext(in.OriginalName))
		if _, ok := s.allowed[ext]; !ok {
			return ErrUnsupportedType
		}
	}
	return nil
}

func (s *ShareService) checkPasswordLength(password string) error {
	limiter, ok := s.hasher.(passwordLimiter)
	if !ok {
		return nil
	}
	if limit := limiter.MaxBytes(); limit > 0 && len(password) > limit {
		return validationError("password must be at most %d bytes", limit)
	}
	return nil
}

func (s *ShareService) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		parts := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			parts = append(parts, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
		}
		return validationError("%s", strings.Join(parts, "; "))
	}
	return validationError("%v", err)
}

// createWithUniqueCode 生成短码并插入，唯一约束冲突时换码重试。
func (s *ShareService) createWithUniqueCode(ctx context.Context, record *repository.ShareRecord) (*repository.ShareRecord, error) {
	for attempt := 1; attempt <= s.cfg.ShortCodeMaxAttempts; attempt++ {
		code, err := s.codes.Generate()
		if err != nil {
			return nil, fmt.Errorf("%w: generate short code: %v", ErrInternal, err)
		}
		record.ShortCode = code

		created, err := s.shares.Create(ctx, record)
		if err == nil {
			return created, nil
		}
		if !errors.Is(err, repository.ErrDuplicateShortCode) {
			return nil, fmt.Errorf("%w: create share: %v", ErrInternal, err)
		}
		s.logger.Debug("short code collision", slog.Int("attempt", attempt))
	}
	return nil, ErrConflict
}

func (s *ShareService) putBlob(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.BlobTimeout)
	defer cancel()

	start := time.Now()
	err := s.blobs.Put(ctx, key, body, size, contentType)
	blobDuration.WithLabelValues("put").Observe(time.Since(start).Seconds())
	if err != nil {
		s.logger.Error("blob put failed", slog.String("object_key", key), slog.Any("error", err))
		return fmt.Errorf("%w: %v", ErrBlobStore, err)
	}
	return nil
}

// discardBlob 清理没有对应记录的对象，失败只记录日志。
func (s *ShareService) discardBlob(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.BlobTimeout)
	defer cancel()
	if err := s.blobs.Delete(ctx, key); err != nil {
		s.logger.Warn("orphan blob cleanup failed", slog.String("object_key", key), slog.Any("error", err))
	}
}

// ShareURL 返回短码对应的公开链接。
func (s *ShareService) ShareURL(code string) string {
	return s.cfg.BaseURL + "/f/" + code
}

// present 返回对外的副本：补全 ShareURL，去掉密码哈希。
func (s *ShareService) present(rec *repository.ShareRecord) *repository.ShareRecord {
	out := *rec
	out.HasPassword = rec.PasswordHash != "" || rec.HasPassword
	out.PasswordHash = ""
	out.ShareURL = s.ShareURL(rec.ShortCode)
	return &out
}

func mapRepoErr(op string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s: %v", ErrInternal, op, err)
}
