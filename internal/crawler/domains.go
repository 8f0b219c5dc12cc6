package crawler

import (
	"net/url"
	"strings"
)

// DomainMatcher holds the allowed hosts of a crawl target. A plain entry
// matches itself and any subdomain; "*.example.com" matches subdomains only.
type DomainMatcher struct {
	exact    map[string]struct{}
	suffixes []string
}

// NewDomainMatcher builds a matcher from configured patterns. It returns nil
// when no usable pattern is given, and a nil matcher allows every host.
func NewDomainMatcher(patterns []string) *DomainMatcher {
	matcher := &DomainMatcher{
		exact: make(map[string]struct{}),
	}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		value = strings.TrimPrefix(value, "www.")
		if value == "" {
			continue
		}
		switch {
		case strings.HasPrefix(value, "*."):
			matcher.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			matcher.addSuffix(strings.TrimPrefix(value, "."))
		default:
			matcher.exact[value] = struct{}{}
			matcher.addSuffix(value)
		}
	}
	if len(matcher.exact) == 0 && len(matcher.suffixes) == 0 {
		return nil
	}
	return matcher
}

func (m *DomainMatcher) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

// AllowsHost reports whether host belongs to the target.
func (m *DomainMatcher) AllowsHost(host string) bool {
	if m == nil {
		return true
	}
	host = strings.TrimSpace(strings.ToLower(host))
	if host == "" {
		return false
	}
	bare := strings.TrimPrefix(host, "www.")
	if _, exact := m.exact[bare]; exact {
		return true
	}
	for _, suffix := range m.suffixes {
		if strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}

// Allows reports whether rawURL points at an allowed host.
func (m *DomainMatcher) Allows(rawURL string) bool {
	if m == nil {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return m.AllowsHost(u.Hostname())
}
