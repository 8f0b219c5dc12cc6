package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolveImageURL(t *testing.T) {
	t.Parallel()

	page := "https://shop.test/products/lamp?variant=1"
	tests := []struct {
		raw  string
		want string
	}{
		{"//cdn.shop.test/files/lamp.jpg?v=123&width=400", "https://cdn.shop.test/files/lamp.jpg"},
		{"/images/lamp.png", "https://shop.test/images/lamp.png"},
		{"img/lamp.webp?w=200&h=200&id=7", "https://shop.test/products/img/lamp.webp?id=7"},
		{"https://img.test/render?width=300", "https://img.test/render?width=300"},
		{"https://img.test/a.jpg 1x, https://img.test/b.jpg 2x", "https://img.test/a.jpg"},
		{"data:image/png;base64,AAAA", ""},
		{"  ", ""},
		{"javascript:void(0)", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ResolveImageURL(page, tt.raw), tt.raw)
	}
}

func TestResolveImageURLUsesPageScheme(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "http://cdn.test/x.gif", ResolveImageURL("http://shop.test/", "//cdn.test/x.gif"))
}
