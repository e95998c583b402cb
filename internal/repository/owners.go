package repository

import "context"

// OwnerStats 是单个用户的上传/下载聚合计数。
type OwnerStats struct {
	OwnerID        string `json:"owner_id"`
	TotalUploads   int64  `json:"total_uploads"`
	TotalDownloads int64  `json:"total_downloads"`
	ImageCount     int64  `json:"image_count"`
	VideoCount     int64  `json:"video_count"`
	DocumentCount  int64  `json:"document_count"`
}

// OwnerRepository 记录由鉴权方确认过的用户。
type OwnerRepository interface {
	// Ensure 在用户不存在时登记，已存在时不做任何修改。
	Ensure(ctx context.Context, ownerID string) error
	Exists(ctx context.Context, ownerID string) (bool, error)
}
