package redis

import (
	"context"
	"os"
	"sync"
	"testing"

	"dropshare/internal/logging"
	"dropshare/internal/stats"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
)

func TestKey(t *testing.T) {
	assert.Equal(t, "dropshare:owner:user-1:stats", Key("user-1"))
}

func TestCategoryField(t *testing.T) {
	assert.Equal(t, fieldImages, categoryField(stats.CategoryImage))
	assert.Equal(t, fieldVideos, categoryField(stats.CategoryVideo))
	assert.Equal(t, fieldDocuments, categoryField(stats.CategoryDocument))
	assert.Empty(t, categoryField(stats.CategoryOther))
}

// setupAggregator 启动 Redis 容器并返回连接到它的聚合器。
func setupAggregator(t *testing.T) *Aggregator {
	t.Helper()

	if os.Getenv("TEST_INTEGRATION") == "" {
		t.Skip("跳过集成测试：未设置 TEST_INTEGRATION")
	}

	ctx := context.Background()
	container, err := tcredis.Run(ctx, "docker.io/redis:7-alpine")
	require.NoError(t, err, "启动 Redis 容器")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("停止容器失败: %v", err)
		}
	})

	uri, err := container.ConnectionString(ctx)
	require.NoError(t, err)
	opts, err := goredis.ParseURL(uri)
	require.NoError(t, err)

	agg, err := New(ctx, Config{Addr: opts.Addr}, logging.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = agg.Close() })
	return agg
}

func TestAggregator_Integration(t *testing.T) {
	agg := setupAggregator(t)
	ctx := context.Background()

	t.Run("uploads are counted per category", func(t *testing.T) {
		for _, mt := range []string{"image/png", "image/jpeg", "video/mp4", "application/pdf", "text/plain"} {
			require.NoError(t, agg.RecordUpload(ctx, "alice", mt))
		}

		st, err := agg.Get(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", st.OwnerID)
		assert.Equal(t, int64(5), st.TotalUploads)
		assert.Equal(t, int64(2), st.ImageCount)
		assert.Equal(t, int64(1), st.VideoCount)
		assert.Equal(t, int64(1), st.DocumentCount)
		assert.Zero(t, st.TotalDownloads)
	})

	t.Run("concurrent downloads are not lost", func(t *testing.T) {
		const n = 50
		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, agg.RecordDownload(ctx, "bob"))
			}()
		}
		wg.Wait()

		st, err := agg.Get(ctx, "bob")
		require.NoError(t, err)
		assert.Equal(t, int64(n), st.TotalDownloads)
		assert.Zero(t, st.TotalUploads)
	})

	t.Run("unknown owner reads as zero", func(t *testing.T) {
		st, err := agg.Get(ctx, "nobody")
		require.NoError(t, err)
		assert.Equal(t, "nobody", st.OwnerID)
		assert.Zero(t, st.TotalUploads)
		assert.Zero(t, st.TotalDownloads)
		assert.Zero(t, st.ImageCount)
	})

	t.Run("corrupt counter is reported", func(t *testing.T) {
		require.NoError(t, agg.rdb.HSet(ctx, Key("carol"), fieldUploads, "many").Err())
		_, err := agg.Get(ctx, "carol")
		assert.Error(t, err)
	})
}
