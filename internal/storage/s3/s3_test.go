package s3

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"dropshare/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMinio 模拟路径风格的 S3 接口：bucket 恒存在，对象状态码按键配置。
type fakeMinio struct {
	mu      sync.Mutex
	head    map[string]int
	deletes []string
}

func (f *fakeMinio) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, "/bucket"), "/")
	f.mu.Lock()
	defer f.mu.Unlock()

	if key == "" {
		w.WriteHeader(http.StatusOK)
		return
	}
	switch r.Method {
	case http.MethodHead:
		status, ok := f.head[key]
		if !ok {
			status = http.StatusNotFound
		}
		if status == http.StatusOK {
			w.Header().Set("Content-Length", "5")
			w.Header().Set("ETag", `"5d41402abc4b2a76b9719d911017c592"`)
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		}
		w.WriteHeader(status)
	case http.MethodDelete:
		f.deletes = append(f.deletes, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*Store, *fakeMinio) {
	t.Helper()
	fake := &fakeMinio{head: map[string]int{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Config{
		Endpoint:  strings.TrimPrefix(srv.URL, "http://"),
		AccessKey: "minioadmin",
		SecretKey: "minioadmin",
		Bucket:    "bucket",
		Region:    "us-east-1",
		PathStyle: true,
	})
	require.NoError(t, err)
	return s, fake
}

func TestStore_SignedURL(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	fake.head["uploads/report_1.pdf"] = http.StatusOK
	fake.head["uploads/locked.pdf"] = http.StatusForbidden

	t.Run("existing object is presigned", func(t *testing.T) {
		raw, err := s.SignedURL(ctx, "uploads/report_1.pdf", "report.pdf", 10*time.Minute)
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "/bucket/uploads/report_1.pdf", u.Path)
		q := u.Query()
		assert.Equal(t, "600", q.Get("X-Amz-Expires"))
		assert.Equal(t, storage.ContentDisposition("report.pdf"), q.Get("response-content-disposition"))
	})

	t.Run("missing object maps to not found", func(t *testing.T) {
		_, err := s.SignedURL(ctx, "uploads/gone.pdf", "gone.pdf", time.Minute)
		assert.ErrorIs(t, err, storage.ErrObjectNotFound)
	})

	t.Run("other failures are not reported as missing", func(t *testing.T) {
		_, err := s.SignedURL(ctx, "uploads/locked.pdf", "locked.pdf", time.Minute)
		require.Error(t, err)
		assert.False(t, errors.Is(err, storage.ErrObjectNotFound))
	})
}

func TestStore_Delete(t *testing.T) {
	s, fake := newTestStore(t)

	require.NoError(t, s.Delete(context.Background(), "uploads/a_1.txt"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, []string{"uploads/a_1.txt"}, fake.deletes)
}

func TestStore_Uninitialized(t *testing.T) {
	var s *Store
	assert.Error(t, s.Delete(context.Background(), "k"))
	_, err := s.SignedURL(context.Background(), "k", "f", time.Minute)
	assert.Error(t, err)
}
