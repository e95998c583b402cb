package stats

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategory(t *testing.T) {
	cases := map[string]MimeCategory{
		"image/png":                CategoryImage,
		"IMAGE/JPEG":               CategoryImage,
		"video/mp4":                CategoryVideo,
		"application/pdf":          CategoryDocument,
		"application/octet-stream": CategoryDocument,
		"text/plain":               CategoryOther,
		"":                         CategoryOther,
	}
	for mime, want := range cases {
		assert.Equal(t, want, Category(mime), "mime %q", mime)
	}
}
