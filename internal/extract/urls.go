package extract

import (
	"net/url"
	"path"
	"strings"
)

var imageExtensions = map[string]struct{}{
	".jpg": {}, ".jpeg": {}, ".png": {}, ".webp": {}, ".gif": {}, ".avif": {}, ".svg": {},
}

// cdnResizeParams only ever change rendition, never the image itself.
var cdnResizeParams = []string{"width", "height", "w", "h", "crop", "resize", "quality", "q", "fit", "format", "v"}

// ResolveImageURL makes raw absolute against pageURL. Resize parameters are
// removed when the path ends in an image extension, since the canonical
// image is then addressable without them.
func ResolveImageURL(pageURL, raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" || strings.HasPrefix(raw, "data:") {
		return ""
	}
	// srcset style values carry descriptors after the first URL.
	if fields := strings.Fields(raw); len(fields) > 1 {
		raw = strings.TrimSuffix(fields[0], ",")
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	var resolved *url.URL
	switch {
	case strings.HasPrefix(raw, "//"):
		resolved, err = url.Parse(base.Scheme + ":" + raw)
	case strings.HasPrefix(raw, "/"):
		resolved, err = url.Parse(base.Scheme + "://" + base.Host + raw)
	default:
		var ref *url.URL
		ref, err = url.Parse(raw)
		if err == nil {
			resolved = base.ResolveReference(ref)
		}
	}
	if err != nil || resolved.Host == "" {
		return ""
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}

	if _, ok := imageExtensions[strings.ToLower(path.Ext(resolved.Path))]; ok && resolved.RawQuery != "" {
		q := resolved.Query()
		for _, p := range cdnResizeParams {
			q.Del(p)
		}
		resolved.RawQuery = q.Encode()
	}
	resolved.Fragment = ""
	return resolved.String()
}
