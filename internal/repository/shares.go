package repository

import (
	"context"
	"time"
)

// ShareStatus 描述分享记录的可用状态。
type ShareStatus string

const (
	ShareStatusActive   ShareStatus = "active"
	ShareStatusDisabled ShareStatus = "disabled"
	ShareStatusDeleted  ShareStatus = "deleted"
)

// Valid 判断状态值是否合法。
func (s ShareStatus) Valid() bool {
	switch s {
	case ShareStatusActive, ShareStatusDisabled, ShareStatusDeleted:
		return true
	default:
		return false
	}
}

// ShareRecord 代表一个已上传对象的分享状态。
//
// PasswordHash 只在存储层与服务层之间流转，不参与任何 JSON 输出。
// ExpiresAt 总是有值：HasExpiry 为 false 时它只是保留期限，不参与下载校验。
type ShareRecord struct {
	ID            string      `json:"id"`
	ObjectKey     string      `json:"object_key"`
	OriginalName  string      `json:"original_name"`
	MimeType      string      `json:"mime_type"`
	SizeBytes     int64       `json:"size_bytes"`
	ShortCode     string      `json:"short_code"`
	ShareURL      string      `json:"share_url"`
	HasPassword   bool        `json:"has_password"`
	PasswordHash  string      `json:"-"`
	HasExpiry     bool        `json:"has_expiry"`
	ExpiresAt     time.Time   `json:"expires_at"`
	Status        ShareStatus `json:"status"`
	DownloadCount int64       `json:"download_count"`
	OwnerID       string      `json:"owner_id"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// Expired 判断在 now 时刻记录是否已过期。未设置过期时间的记录永不过期。
func (r *ShareRecord) Expired(now time.Time) bool {
	return r.HasExpiry && !now.Before(r.ExpiresAt)
}

// ListSharesParams 用于按 owner 分页检索分享记录，结果按创建时间倒序。
type ListSharesParams struct {
	OwnerID string
	Query   string // 文件名子串，大小写不敏感
	Limit   int
	Offset  int
}

// ShareRepository 统一分享记录持久层接口。
type ShareRepository interface {
	// Create 插入新记录；短码冲突时返回 ErrDuplicateShortCode 且不修改任何已有记录。
	Create(ctx context.Context, record *ShareRecord) (*ShareRecord, error)
	GetByID(ctx context.Context, id string) (*ShareRecord, error)
	GetByShortCode(ctx context.Context, code string) (*ShareRecord, error)
	List(ctx context.Context, params ListSharesParams) ([]ShareRecord, error)
	UpdateStatus(ctx context.Context, id string, status ShareStatus) error
	// UpdatePassword 设置密码哈希；hash 为空表示取消密码保护。
	UpdatePassword(ctx context.Context, id string, hash string) error
	UpdateExpiry(ctx context.Context, id string, hasExpiry bool, expiresAt time.Time) error
	// UpdateShortCode 替换短码；冲突语义同 Create。
	UpdateShortCode(ctx context.Context, id string, code string) error
	// IncrementDownloads 在存储层原子地将下载计数加一。
	IncrementDownloads(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
}
