package memory

import (
	"context"
	"sync"

	"dropshare/internal/repository"
	"dropshare/internal/stats"
)

// OwnerRepository 在内存中登记用户并维护统计计数，实现 stats.Aggregator。
type OwnerRepository struct {
	mu     sync.Mutex
	owners map[string]*repository.OwnerStats
}

// NewOwnerRepository 创建空的内存用户表。
func NewOwnerRepository() *OwnerRepository {
	return &OwnerRepository{owners: make(map[string]*repository.OwnerStats)}
}

func (r *OwnerRepository) Ensure(ctx context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.owners[ownerID]; !ok {
		r.owners[ownerID] = &repository.OwnerStats{OwnerID: ownerID}
	}
	return nil
}

func (r *OwnerRepository) Exists(ctx context.Context, ownerID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.owners[ownerID]
	return ok, nil
}

func (r *OwnerRepository) RecordUpload(ctx context.Context, ownerID, mimeType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.owners[ownerID]
	if !ok {
		return repository.ErrNotFound
	}
	s.TotalUploads++
	switch stats.Category(mimeType) {
	case stats.CategoryImage:
		s.ImageCount++
	case stats.CategoryVideo:
		s.VideoCount++
	case stats.CategoryDocument:
		s.DocumentCount++
	}
	return nil
}

func (r *OwnerRepository) RecordDownload(ctx context.Context, ownerID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.owners[ownerID]
	if !ok {
		return repository.ErrNotFound
	}
	s.TotalDownloads++
	return nil
}

func (r *OwnerRepository) Get(ctx context.Context, ownerID string) (repository.OwnerStats, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.owners[ownerID]
	if !ok {
		return repository.OwnerStats{}, repository.ErrNotFound
	}
	return *s, nil
}
