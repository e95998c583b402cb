package service

import (
	"context"
	"time"

	"dropshare/internal/repository"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// ownerDirectory 在 OwnerRepository 前加一层带 TTL 的存在性缓存。
// 只缓存“存在”，不存在的结果每次都回源。
type ownerDirectory struct {
	repo  repository.OwnerRepository
	known *expirable.LRU[string, struct{}]
}

func newOwnerDirectory(repo repository.OwnerRepository, size int, ttl time.Duration) *ownerDirectory {
	if size <= 0 {
		size = 1024
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &ownerDirectory{repo: repo, known: expirable.NewLRU[string, struct{}](size, nil, ttl)}
}

func (d *ownerDirectory) exists(ctx context.Context, ownerID string) (bool, error) {
	if _, ok := d.known.Get(ownerID); ok {
		return true, nil
	}
	ok, err := d.repo.Exists(ctx, ownerID)
	if err != nil {
		return false, err
	}
	if ok {
		d.known.Add(ownerID, struct{}{})
	}
	return ok, nil
}

func (d *ownerDirectory) ensure(ctx context.Context, ownerID string) error {
	if _, ok := d.known.Get(ownerID); ok {
		return nil
	}
	if err := d.repo.Ensure(ctx, ownerID); err != nil {
		return err
	}
	d.known.Add(ownerID, struct{}{})
	return nil
}
