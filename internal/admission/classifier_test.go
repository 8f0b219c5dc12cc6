package admission

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/catalog-scraper/internal/crawler"
)

func TestClassifyDefaults(t *testing.T) {
	t.Parallel()

	c, err := NewClassifier(nil, nil)
	require.NoError(t, err)

	tests := []struct {
		url  string
		want crawler.URLKind
	}{
		{"https://shop.test/category/lamps", crawler.KindListing},
		{"https://shop.test/collections/all", crawler.KindListing},
		{"https://shop.test/search?q=lamp", crawler.KindListing},
		{"https://shop.test/buscar?term=lampara", crawler.KindListing},
		{"https://shop.test/lamps?page=2", crawler.KindListing},
		{"https://shop.test/lamps#page=3", crawler.KindListing},
		{"https://shop.test/product/brass-lamp", crawler.KindItem},
		{"https://shop.test/products/brass-lamp?variant=1", crawler.KindItem},
		{"https://shop.test/brass-lamp/p", crawler.KindItem},
		{"https://shop.test/gp/dp/B0001", crawler.KindItem},
		{"https://shop.test/view?sku=123", crawler.KindItem},
		{"https://shop.test/home/lighting/brass-lamp", crawler.KindItem},
		{"https://shop.test/", crawler.KindListing},
		{"https://shop.test/about-us", crawler.KindListing},
		{"::not a url", crawler.KindListing},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify(tt.url), tt.url)
	}
}

func TestClassifySitePatterns(t *testing.T) {
	t.Parallel()

	c, err := NewClassifier([]string{`^/ofertas`}, []string{`^/collections/[^/]+/products/`})
	require.NoError(t, err)

	assert.Equal(t, crawler.KindItem, c.Classify("https://shop.test/collections/all/products/lamp"))
	assert.Equal(t, crawler.KindListing, c.Classify("https://shop.test/ofertas/lamparas/brass-lamp-xl"))

	_, err = NewClassifier([]string{"("}, nil)
	assert.Error(t, err)
}
