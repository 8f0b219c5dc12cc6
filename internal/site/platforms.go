package site

import (
	"regexp"
	"strings"

	"github.com/JakeFAU/catalog-scraper/internal/extract"
)

func nameOf(p *extract.Product) string        { return p.Name }
func priceOf(p *extract.Product) string       { return p.Price }
func descriptionOf(p *extract.Product) string { return p.Description }
func imageOf(p *extract.Product) string       { return p.Image }

var (
	metaPrice       = []string{"product:price:amount", "og:price:amount", "price"}
	metaDescription = []string{"og:description", "description"}
	metaImage       = []string{"og:image", "og:image:secure_url", "image"}
)

// Generic is driven by configured selectors on top of structured metadata.
func Generic() Profile {
	return Profile{
		Platform:      "generic",
		CategoryLinks: []string{`a[href*="/category/"]`, `a[href*="/categoria/"]`, `nav a[href*="/c/"]`},
		ItemLinks:     []string{`a[href*="/product/"]`, `a[href*="/producto/"]`, `a[href*="/item/"]`},
		NextPage:      []string{`a.next`, `a[aria-label="Next"]`},
		Name: extract.Cascade{
			Meta:   []string{"og:title", "twitter:title", "name"},
			JSONLD: nameOf,
			CSS:    []string{"h1"},
		},
		Price: extract.Cascade{
			Meta:   metaPrice,
			JSONLD: priceOf,
			CSS:    []string{`[data-price]@data-price`, ".price"},
		},
		Description: extract.Cascade{
			Meta:   metaDescription,
			JSONLD: descriptionOf,
			CSS:    []string{".description", "#description"},
		},
		Image: extract.Cascade{
			Meta:   metaImage,
			JSONLD: imageOf,
			CSS:    []string{"main img@src", "img@src"},
		},
	}
}

var shopifyCollectionPrefix = regexp.MustCompile(`/collections/[^/]+(/products/)`)

// Shopify covers collection and /products/<handle> storefronts.
func Shopify() Profile {
	return Profile{
		Platform:      "shopify",
		Root:          "main, #MainContent",
		CategoryLinks: []string{`a[href*="/collections/"]:not([href*="/products/"])`},
		ItemLinks:     []string{`a[href*="/products/"]`},
		NextPage:      []string{`.pagination a.next`, `a.pagination__item--next`},
		Name: extract.Cascade{
			Meta:   []string{"og:title"},
			JSONLD: nameOf,
			CSS:    []string{"h1.product__title", "h1.product-single__title", "h1"},
		},
		Price: extract.Cascade{
			Meta:   metaPrice,
			JSONLD: priceOf,
			CSS:    []string{".price-item--sale", ".price-item--regular", ".product__price", "[data-product-price]"},
		},
		Description: extract.Cascade{
			Meta:   metaDescription,
			JSONLD: descriptionOf,
			CSS:    []string{".product__description", ".product-single__description"},
		},
		Image: extract.Cascade{
			Meta:   metaImage,
			JSONLD: imageOf,
			CSS:    []string{".product__media img@src", ".product-single__photo img@src"},
		},
		ListingPatterns: []string{`^/collections/[^/]+/?$`},
		ItemPatterns:    []string{`^/products/[^/?]+`, `^/collections/[^/]+/products/`},
		CanonicalItem: func(u string) string {
			return shopifyCollectionPrefix.ReplaceAllString(u, "$1")
		},
	}
}

// WooCommerce covers WordPress shops with /product-category/ and /product/.
func WooCommerce() Profile {
	return Profile{
		Platform:      "woocommerce",
		Root:          "ul.products, .woocommerce",
		CategoryLinks: []string{`a[href*="/product-category/"]`},
		ItemLinks:     []string{`ul.products li.product a.woocommerce-LoopProduct-link`, `a[href*="/product/"]`},
		NextPage:      []string{`a.next.page-numbers`},
		Name: extract.Cascade{
			Meta:   []string{"og:title"},
			JSONLD: nameOf,
			CSS:    []string{"h1.product_title", "h1"},
		},
		Price: extract.Cascade{
			Meta:   metaPrice,
			JSONLD: priceOf,
			CSS: []string{
				"p.price ins .woocommerce-Price-amount",
				"p.price .woocommerce-Price-amount",
				".summary .price",
			},
		},
		Description: extract.Cascade{
			Meta:   metaDescription,
			JSONLD: descriptionOf,
			CSS:    []string{".woocommerce-product-details__short-description", "#tab-description"},
		},
		Image: extract.Cascade{
			Meta:   metaImage,
			JSONLD: imageOf,
			CSS: []string{
				".woocommerce-product-gallery__image img@data-large_image",
				".woocommerce-product-gallery__image img@src",
			},
		},
		ListingPatterns: []string{`^/product-category/`, `^/shop(/page/\d+)?/?$`},
		ItemPatterns:    []string{`^/product/[^/]+`},
	}
}

// VTEX covers VTEX IO stores: /<slug>/p items and a "Mostrar más" button
// on search results.
func VTEX() Profile {
	return Profile{
		Platform:      "vtex",
		Root:          `.vtex-search-result-3-x-gallery, #gallery-layout-container, main`,
		CategoryLinks: []string{`a.vtex-menu-2-x-styledLink`, `a.vtex-store-link-0-x-link`},
		ItemLinks:     []string{`a.vtex-product-summary-2-x-clearLink`, `a[href$="/p"]`},
		NextPage:      []string{`.vtex-search-result-3-x-buttonShowMore a`},
		Name: extract.Cascade{
			Meta:   []string{"og:title"},
			JSONLD: nameOf,
			CSS:    []string{".vtex-store-components-3-x-productNameContainer", "h1"},
			Regex:  []*regexp.Regexp{regexp.MustCompile(`"productName":"([^"]+)"`)},
		},
		Price: extract.Cascade{
			Meta:   metaPrice,
			JSONLD: priceOf,
			CSS:    []string{".vtex-product-price-1-x-sellingPriceValue", ".vtex-product-price-1-x-currencyContainer"},
			Regex:  []*regexp.Regexp{regexp.MustCompile(`"Price":\s*([\d.]+)`)},
		},
		Description: extract.Cascade{
			Meta:   metaDescription,
			JSONLD: descriptionOf,
			CSS:    []string{".vtex-store-components-3-x-productDescriptionText"},
		},
		Image: extract.Cascade{
			Meta:   metaImage,
			JSONLD: imageOf,
			CSS:    []string{"img.vtex-store-components-3-x-productImageTag@src"},
		},
		ItemPatterns:     []string{`/p/?$`},
		LoadMoreSelector: ".vtex-search-result-3-x-buttonShowMore button",
		CanonicalItem: func(u string) string {
			if i := strings.Index(u, "/p?"); i >= 0 {
				return u[:i+2]
			}
			return u
		},
	}
}
