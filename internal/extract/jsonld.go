package extract

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Product is the subset of a schema.org Product the catalog stores.
type Product struct {
	Name        string
	Description string
	Image       string
	Price       string
}

// ProductFromJSONLD returns the first schema.org Product declared in the
// document's JSON-LD blocks, or nil. Malformed blocks are skipped.
func ProductFromJSONLD(doc *goquery.Document) *Product {
	var found *Product
	doc.Find(`script[type="application/ld+json"]`).EachWithBreak(func(_ int, s *goquery.Selection) bool {
		var payload any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &payload); err != nil {
			return true
		}
		if node := findProduct(payload); node != nil {
			found = productFromNode(node)
			return false
		}
		return true
	})
	return found
}

func findProduct(v any) map[string]any {
	switch node := v.(type) {
	case []any:
		for _, item := range node {
			if p := findProduct(item); p != nil {
				return p
			}
		}
	case map[string]any:
		if hasType(node["@type"], "Product") {
			return node
		}
		if graph, ok := node["@graph"]; ok {
			return findProduct(graph)
		}
		if entity, ok := node["mainEntity"]; ok {
			return findProduct(entity)
		}
	}
	return nil
}

func hasType(v any, want string) bool {
	switch t := v.(type) {
	case string:
		return strings.EqualFold(t, want)
	case []any:
		for _, item := range t {
			if hasType(item, want) {
				return true
			}
		}
	}
	return false
}

func productFromNode(node map[string]any) *Product {
	return &Product{
		Name:        scalar(node["name"]),
		Description: scalar(node["description"]),
		Image:       imageOf(node["image"]),
		Price:       offerPrice(node["offers"]),
	}
}

func imageOf(v any) string {
	switch img := v.(type) {
	case []any:
		for _, item := range img {
			if s := imageOf(item); s != "" {
				return s
			}
		}
	case map[string]any:
		if s := scalar(img["url"]); s != "" {
			return s
		}
		return scalar(img["contentUrl"])
	default:
		return scalar(v)
	}
	return ""
}

func offerPrice(v any) string {
	switch offer := v.(type) {
	case []any:
		for _, item := range offer {
			if p := offerPrice(item); p != "" {
				return p
			}
		}
	case map[string]any:
		for _, key := range []string{"price", "lowPrice"} {
			if p := scalar(offer[key]); p != "" {
				return p
			}
		}
		if spec, ok := offer["priceSpecification"]; ok {
			return offerPrice(spec)
		}
		if nested, ok := offer["offers"]; ok {
			return offerPrice(nested)
		}
	}
	return ""
}

func scalar(v any) string {
	switch s := v.(type) {
	case string:
		return strings.TrimSpace(s)
	case float64:
		return fmt.Sprintf("%.2f", s)
	case json.Number:
		return s.String()
	}
	return ""
}
