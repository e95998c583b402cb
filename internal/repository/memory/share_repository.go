// Package memory 提供进程内的仓储实现，用于测试与单机开发模式。
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"dropshare/internal/repository"
)

// ShareRepository 是 repository.ShareRepository 的内存实现。
// 短码唯一性在同一把锁内检查并写入，与数据库唯一约束等价。
type ShareRepository struct {
	mu      sync.RWMutex
	byID    map[string]*repository.ShareRecord
	byCode  map[string]string
	nowFunc func() time.Time
}

// NewShareRepository 创建空的内存仓储。
func NewShareRepository() *ShareRepository {
	return &ShareRepository{
		byID:    make(map[string]*repository.ShareRecord),
		byCode:  make(map[string]string),
		nowFunc: func() time.Time { return time.Now().UTC() },
	}
}

func (r *ShareRepository) Create(ctx context.Context, record *repository.ShareRecord) (*repository.ShareRecord, error) {
	if record == nil {
		return nil, fmt.Errorf("share record is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.byCode[record.ShortCode]; taken {
		return nil, repository.ErrDuplicateShortCode
	}
	if _, exists := r.byID[record.ID]; exists {
		return nil, fmt.Errorf("share %s already exists", record.ID)
	}

	stored := *record
	stored.HasPassword = stored.PasswordHash != ""
	stored.ShareURL = ""
	r.byID[stored.ID] = &stored
	r.byCode[stored.ShortCode] = stored.ID

	out := stored
	return &out, nil
}

func (r *ShareRepository) GetByID(ctx context.Context, id string) (*repository.ShareRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.byID[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *rec
	return &out, nil
}

func (r *ShareRepository) GetByShortCode(ctx context.Context, code string) (*repository.ShareRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byCode[code]
	if !ok {
		return nil, repository.ErrNotFound
	}
	out := *r.byID[id]
	return &out, nil
}

func (r *ShareRepository) List(ctx context.Context, params repository.ListSharesParams) ([]repository.ShareRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(params.Query))
	var matched []repository.ShareRecord
	for _, rec := range r.byID {
		if params.OwnerID != "" && rec.OwnerID != params.OwnerID {
			continue
		}
		if query != "" && !strings.Contains(strings.ToLower(rec.OriginalName), query) {
			continue
		}
		matched = append(matched, *rec)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	if params.Offset > 0 {
		if params.Offset >= len(matched) {
			return nil, nil
		}
		matched = matched[params.Offset:]
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 50
	}
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

func (r *ShareRepository) UpdateStatus(ctx context.Context, id string, status repository.ShareStatus) error {
	return r.mutate(id, func(rec *repository.ShareRecord) error {
		rec.Status = status
		return nil
	})
}

func (r *ShareRepository) UpdatePassword(ctx context.Context, id string, hash string) error {
	return r.mutate(id, func(rec *repository.ShareRecord) error {
		rec.PasswordHash = hash
		rec.HasPassword = hash != ""
		return nil
	})
}

func (r *ShareRepository) UpdateExpiry(ctx context.Context, id string, hasExpiry bool, expiresAt time.Time) error {
	return r.mutate(id, func(rec *repository.ShareRecord) error {
		rec.HasExpiry = hasExpiry
		rec.ExpiresAt = expiresAt
		return nil
	})
}

func (r *ShareRepository) UpdateShortCode(ctx context.Context, id string, code string) error {
	return r.mutate(id, func(rec *repository.ShareRecord) error {
		if owner, taken := r.byCode[code]; taken && owner != id {
			return repository.ErrDuplicateShortCode
		}
		delete(r.byCode, rec.ShortCode)
		rec.ShortCode = code
		r.byCode[code] = id
		return nil
	})
}

func (r *ShareRepository) IncrementDownloads(ctx context.Context, id string) error {
	return r.mutate(id, func(rec *repository.ShareRecord) error {
		rec.DownloadCount++
		return nil
	})
}

func (r *ShareRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	delete(r.byCode, rec.ShortCode)
	delete(r.byID, id)
	return nil
}

func (r *ShareRepository) mutate(id string, fn func(rec *repository.ShareRecord) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return repository.ErrNotFound
	}
	if err := fn(rec); err != nil {
		return err
	}
	rec.UpdatedAt = r.nowFunc()
	return nil
}
