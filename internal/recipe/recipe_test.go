package recipe

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

const validYAML = `
name: example-shop
version: "1.0"
site_url: shop.example.com
selectors:
  title: h1.product-title
  price: [".price ins .amount", ".price .amount"]
  images: ".product-gallery img"
  product_links: ".products a.product-link"
  next_page: "a.next"
fallbacks:
  title: [".entry-title", "h1"]
transforms:
  price: ["trim:", "replace:₪|", "\\s+-> "]
behavior:
  rate_limit_ms: 200
  max_concurrent: 4
  max_pages: 5
validation:
  required: [title, price]
  formats:
    sku: "^[A-Z0-9-]+$"
`

func writeRecipe(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFileYAML(t *testing.T) {
	dir := t.TempDir()
	path := writeRecipe(t, dir, "example.yaml", validYAML)

	recipes, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, recipes, 1)

	r := recipes[0]
	assert.Equal(t, "example-shop", r.Name)
	assert.Equal(t, StringList{"h1.product-title"}, r.Selectors.Title)
	assert.Equal(t, StringList{".price ins .amount", ".price .amount"}, r.Selectors.Price)
	assert.Equal(t, []string{".entry-title", "h1"}, []string(r.FieldFallbacks("title")))
	assert.Len(t, r.FieldTransforms("price"), 3)
	assert.NotNil(t, r.FieldFormat("sku"))
	assert.Equal(t, 200, r.RateLimitMs())
	assert.Equal(t, 4, r.MaxConcurrent())
	assert.Equal(t, 5, r.MaxPages())
}

func TestLoadFileJSONCollection(t *testing.T) {
	dir := t.TempDir()
	path := writeRecipe(t, dir, "shops.json", `{
		"recipes": [
			{
				"name": "a",
				"version": "1",
				"site_url": "a.example.com",
				"selectors": {"title": "h1", "price": ".price", "images": "img"}
			},
			{
				"name": "b",
				"version": "1",
				"site_url": "*.example.com",
				"selectors": {"title": ["h1", ".title"], "price": ".price", "images": "img"}
			}
		]
	}`)

	recipes, err := LoadFile(path)
	require.NoError(t, err)
	require.Len(t, recipes, 2)
	assert.Equal(t, StringList{"h1", ".title"}, recipes[1].Selectors.Title)
}

func TestLoadFileRejectsIncompleteRecipes(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"missing name", "version: '1'\nsite_url: x.com\nselectors: {title: h1, price: .p, images: img}"},
		{"missing version", "name: x\nsite_url: x.com\nselectors: {title: h1, price: .p, images: img}"},
		{"missing site_url", "name: x\nversion: '1'\nselectors: {title: h1, price: .p, images: img}"},
		{"missing title", "name: x\nversion: '1'\nsite_url: x.com\nselectors: {price: .p, images: img}"},
		{"missing price", "name: x\nversion: '1'\nsite_url: x.com\nselectors: {title: h1, images: img}"},
		{"missing images", "name: x\nversion: '1'\nsite_url: x.com\nselectors: {title: h1, price: .p}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			path := writeRecipe(t, dir, "bad.yaml", tt.content)
			_, err := LoadFile(path)
			assert.Error(t, err)
		})
	}
}

func TestParseTransforms(t *testing.T) {
	chain, err := ParseTransforms([]string{"trim:", "replace:a|b", "regex:[0-9]+|N", "foo->bar"})
	require.NoError(t, err)
	require.Len(t, chain, 4)

	assert.Equal(t, "b c N bar", ApplyTransforms("  a c 12 foo ", chain))
}

func TestParseTransformsOrderMatters(t *testing.T) {
	first, err := ParseTransforms([]string{"replace:a|b", "replace:b|c"})
	require.NoError(t, err)
	assert.Equal(t, "c", ApplyTransforms("a", first))

	second, err := ParseTransforms([]string{"replace:b|c", "replace:a|b"})
	require.NoError(t, err)
	assert.Equal(t, "b", ApplyTransforms("a", second))
}

func TestParseTransformsRejectsUnknownStep(t *testing.T) {
	_, err := ParseTransforms([]string{"uppercase:"})
	assert.Error(t, err)
}

func TestParseTransformsRejectsBadRegex(t *testing.T) {
	_, err := ParseTransforms([]string{"regex:[|x"})
	assert.Error(t, err)
}

func TestMatchesSite(t *testing.T) {
	tests := []struct {
		pattern string
		siteURL string
		want    bool
	}{
		{"shop.example.com", "https://shop.example.com/products", true},
		{"shop.example.com", "https://other.example.com", false},
		{"*", "https://anything.at.all", true},
		{"*.example.com", "https://shop.example.com", true},
		{"*.example.com", "https://example.com", true},
		{"*.example.com", "https://example.org", false},
		{"https://shop.example.com", "https://shop.example.com/x", true},
	}

	for _, tt := range tests {
		r := &Recipe{SiteURL: tt.pattern}
		assert.Equal(t, tt.want, r.MatchesSite(tt.siteURL), "pattern %q vs %q", tt.pattern, tt.siteURL)
	}
}

func TestStoreByNameAndMatch(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "exact.yaml", `
name: exact
version: "1"
site_url: shop.example.com
selectors: {title: h1, price: .p, images: img}
`)
	writeRecipe(t, dir, "wild.yaml", `
name: wild
version: "1"
site_url: "*"
selectors: {title: h1, price: .p, images: img}
`)
	writeRecipe(t, dir, "sub.yaml", `
name: sub
version: "1"
site_url: "*.example.com"
selectors: {title: h1, price: .p, images: img}
`)

	store, err := NewStore(dir, testLogger())
	require.NoError(t, err)

	r, err := store.ByName("exact")
	require.NoError(t, err)
	assert.Equal(t, "exact", r.Name)

	_, err = store.ByName("missing")
	assert.Error(t, err)

	// Exact host beats both wildcards.
	r, err = store.Match("https://shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, "exact", r.Name)

	// The universal wildcard outranks the subdomain wildcard.
	r, err = store.Match("https://other.example.com")
	require.NoError(t, err)
	assert.Equal(t, "wild", r.Name)

	r, err = store.Match("https://unrelated.org")
	require.NoError(t, err)
	assert.Equal(t, "wild", r.Name)
}

func TestStoreSkipsInvalidFiles(t *testing.T) {
	dir := t.TempDir()
	writeRecipe(t, dir, "good.yaml", `
name: good
version: "1"
site_url: good.example.com
selectors: {title: h1, price: .p, images: img}
`)
	writeRecipe(t, dir, "bad.yaml", "name: bad\nversion: '1'")

	store, err := NewStore(dir, testLogger())
	require.NoError(t, err)

	_, err = store.ByName("good")
	assert.NoError(t, err)
	_, err = store.ByName("bad")
	assert.Error(t, err)
}
