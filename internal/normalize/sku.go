package normalize

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"sort"
	"strings"
	"unicode"
)

// GenerateSKU derives a stable SKU from a product URL. Only the URL path
// participates, so query strings and fragments never change the result: the
// same product page always yields the same SKU. The SKU combines a cleaned
// trailing path segment with a short hash of the full path to keep distinct
// paths distinct.
func GenerateSKU(rawURL string) string {
	path := rawURL
	if u, err := url.Parse(rawURL); err == nil {
		path = u.Path
	}

	segment := lastPathSegment(path)
	h := fnv.New64a()
	h.Write([]byte(path))
	digest := fmt.Sprintf("%08X", h.Sum64()&0xFFFFFFFF)

	if segment == "" {
		return "SKU-" + digest
	}
	return segment + "-" + digest
}

func lastPathSegment(path string) string {
	path = strings.Trim(path, "/")
	if path == "" {
		return ""
	}
	parts := strings.Split(path, "/")
	seg := parts[len(parts)-1]

	var b strings.Builder
	for _, r := range seg {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(unicode.ToUpper(r))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == '-' || r == '_' || r == ' ':
			b.WriteRune('-')
		}
	}
	cleaned := strings.Trim(b.String(), "-")
	if len(cleaned) > 16 {
		cleaned = cleaned[:16]
	}
	return cleaned
}

// BuildVariationSKU appends the non-empty assignment values to the parent SKU
// in attribute-name order. An all-empty assignment map returns the parent SKU
// unchanged.
func BuildVariationSKU(parentSKU string, assignments map[string]string) string {
	if len(assignments) == 0 {
		return parentSKU
	}

	keys := make([]string, 0, len(assignments))
	for k := range assignments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	sku := parentSKU
	for _, k := range keys {
		v := strings.TrimSpace(assignments[k])
		if v == "" {
			continue
		}
		sku += "-" + skuToken(v)
	}
	return sku
}

func skuToken(v string) string {
	var b strings.Builder
	for _, r := range v {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(unicode.ToUpper(r))
		case (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteRune('-')
		default:
			// Non-Latin scripts pass through so Hebrew option values stay
			// distinguishable.
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
			}
		}
	}
	return strings.Trim(b.String(), "-")
}

// Slugify builds a URL slug from a title, preserving non-Latin scripts.
func Slugify(title string) string {
	var b strings.Builder
	prevDash := true
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			prevDash = false
			continue
		}
		if !prevDash {
			b.WriteRune('-')
			prevDash = true
		}
	}
	return strings.Trim(b.String(), "-")
}
