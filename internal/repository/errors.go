package repository

import "errors"

var (
	// ErrNotFound 表示目标记录不存在。
	ErrNotFound = errors.New("repository: record not found")
	// ErrDuplicateShortCode 表示短码已被其他记录占用。
	ErrDuplicateShortCode = errors.New("repository: short code already exists")
)
