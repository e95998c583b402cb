package memory

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"dropshare/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_Lifecycle(t *testing.T) {
	signer, err := storage.NewURLSigner("http://h", "k")
	require.NoError(t, err)
	s := New(signer)
	ctx := context.Background()

	_, err = s.SignedURL(ctx, "p/a.txt", "a.txt", time.Minute)
	assert.ErrorIs(t, err, storage.ErrObjectNotFound)

	require.NoError(t, s.Put(ctx, "p/a.txt", strings.NewReader("data"), 4, "text/plain"))
	assert.Equal(t, 1, s.Len())

	u, err := s.SignedURL(ctx, "p/a.txt", "a.txt", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(u, "http://h/blobs/p/a.txt?token="))

	rc, err := s.Read(ctx, "p/a.txt")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "data", string(b))

	require.NoError(t, s.Delete(ctx, "p/a.txt"))
	assert.False(t, s.Has("p/a.txt"))
}
