package storage

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		original string
		want     string
	}{
		{"simple", "file-share-app", "report.pdf", "file-share-app/report_abc.pdf"},
		{"unsafe chars", "p", "my report (1).PDF", "p/my-report-1_abc.pdf"},
		{"path stripped", "p", "../../etc/passwd", "p/passwd_abc"},
		{"windows path", "p", `C:\Users\a\photo.png`, "p/photo_abc.png"},
		{"empty base", "", ".png", "file_abc.png"},
		{"no prefix", "", "a.txt", "a_abc.txt"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ObjectKey(tt.prefix, tt.original, "abc"))
		})
	}
}

func TestCleanKey(t *testing.T) {
	ok := []string{"a/b.txt", "file-share-app/x_1.png"}
	for _, k := range ok {
		got, valid := CleanKey(k)
		assert.True(t, valid, k)
		assert.Equal(t, k, got)
	}
	for _, k := range []string{"", "../a", "a/../../b", `a\b`, "a//b", "a/./b"} {
		_, valid := CleanKey(k)
		assert.False(t, valid, k)
	}
}

func TestURLSigner_SignAndVerify(t *testing.T) {
	s, err := NewURLSigner("http://localhost:8080/", "secret")
	require.NoError(t, err)

	raw, err := s.Sign("p/a b.txt", "a b.txt", time.Minute)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(raw, "http://localhost:8080/blobs/p/a%20b.txt?token="))

	u, err := url.Parse(raw)
	require.NoError(t, err)
	token := u.Query().Get("token")

	claims, err := s.Verify("p/a b.txt", token)
	require.NoError(t, err)
	assert.Equal(t, "a b.txt", claims.Filename)

	_, err = s.Verify("p/other.txt", token)
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewURLSigner("http://localhost:8080", "different")
	require.NoError(t, err)
	_, err = other.Verify("p/a b.txt", token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestURLSigner_Expired(t *testing.T) {
	s, err := NewURLSigner("http://x", "secret")
	require.NoError(t, err)
	past := time.Now().Add(-time.Hour)
	s.now = func() time.Time { return past }

	raw, err := s.Sign("k", "", time.Minute)
	require.NoError(t, err)
	u, _ := url.Parse(raw)

	s.now = time.Now
	_, err = s.Verify("k", u.Query().Get("token"))
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestNewURLSigner_EmptySecret(t *testing.T) {
	_, err := NewURLSigner("http://x", "")
	assert.Error(t, err)
}
