package awss3

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

// fakeS3 按对象键返回固定状态码，记录收到的写请求。
type fakeS3 struct {
	mu      sync.Mutex
	head    map[string]int
	puts    map[string]string
	deletes []string
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/bucket/")
	f.mu.Lock()
	defer f.mu.Unlock()

	switch r.Method {
	case http.MethodHead:
		status, ok := f.head[key]
		if !ok {
			status = http.StatusNotFound
		}
		if status == http.StatusOK {
			w.Header().Set("Content-Length", "5")
			w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
		}
		w.WriteHeader(status)
	case http.MethodPut:
		f.puts[key] = r.Header.Get("Content-Type")
		w.WriteHeader(http.StatusOK)
	case http.MethodDelete:
		f.deletes = append(f.deletes, key)
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestStore(t *testing.T) (*Store, *fakeS3) {
	t.Helper()
	fake := &fakeS3{head: map[string]int{}, puts: map[string]string{}}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	s, err := New(context.Background(), Config{
		Region:    "us-east-1",
		Bucket:    "bucket",
		AccessKey: "test-key",
		SecretKey: "test-secret",
		Endpoint:  srv.URL,
	})
	require.NoError(t, err)
	return s, fake
}

func TestNew_RequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.Error(t, err)
}

func TestStore_SignedURL(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()
	fake.head["uploads/report_1.pdf"] = http.StatusOK
	fake.head["uploads/locked.pdf"] = http.StatusForbidden

	t.Run("existing object is presigned", func(t *testing.T) {
		raw, err := s.SignedURL(ctx, "uploads/report_1.pdf", "报告.pdf", 10*time.Minute)
		require.NoError(t, err)

		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, "/bucket/uploads/report_1.pdf", u.Path)
		q := u.Query()
		assert.Equal(t, "600", q.Get("X-Amz-Expires"))
		assert.Equal(t, storage.ContentDisposition("报告.pdf"), q.Get("response-content-disposition"))
		assert.NotEmpty(t, q.Get("X-Amz-Signature"))
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

func TestStore_PutAndDelete(t *testing.T) {
	s, fake := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "uploads/a_1.txt", strings.NewReader("hello"), 5, ""))
	require.NoError(t, s.Delete(ctx, "uploads/a_1.txt"))

	fake.mu.Lock()
	defer fake.mu.Unlock()
	assert.Equal(t, "application/octet-stream", fake.puts["uploads/a_1.txt"])
	assert.Equal(t, []string{"uploads/a_1.txt"}, fake.deletes)
}
