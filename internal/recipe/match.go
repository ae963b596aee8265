package recipe

import (
	"net/url"
	"strings"
)

// MatchesSite reports whether this recipe's site pattern covers siteURL.
// Patterns are an exact host ("shop.example.com"), the universal wildcard
// ("*"), or a subdomain wildcard ("*.example.com", which also matches the
// bare apex host).
func (r *Recipe) MatchesSite(siteURL string) bool {
	host := hostOf(siteURL)
	if host == "" {
		return false
	}
	pattern := hostOf(r.SiteURL)
	if pattern == "" {
		pattern = strings.ToLower(strings.TrimSpace(r.SiteURL))
	}

	switch {
	case pattern == "*":
		return true
	case strings.HasPrefix(pattern, "*."):
		suffix := strings.TrimPrefix(pattern, "*.")
		return host == suffix || strings.HasSuffix(host, "."+suffix)
	default:
		return host == pattern
	}
}

// matchRank orders candidate recipes: exact host first, then the universal
// wildcard, then a subdomain wildcard.
func (r *Recipe) matchRank() int {
	pattern := hostOf(r.SiteURL)
	if pattern == "" {
		pattern = strings.ToLower(strings.TrimSpace(r.SiteURL))
	}
	switch {
	case pattern == "*":
		return 1
	case strings.HasPrefix(pattern, "*."):
		return 0
	default:
		return 2
	}
}

func hostOf(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Hostname())
}
