package adapter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxfell/recipe-scraper/internal/dom"
	"github.com/maxfell/recipe-scraper/internal/models"
	"github.com/maxfell/recipe-scraper/internal/recipe"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeProvider serves canned HTML by URL and records every fetch.
type fakeProvider struct {
	pages  map[string]string
	calls  []string
	err    error
	closed bool
}

func (f *fakeProvider) Fetch(_ context.Context, url string, _ dom.FetchOptions) (*goquery.Document, error) {
	f.calls = append(f.calls, url)
	if f.err != nil {
		return nil, f.err
	}
	html, ok := f.pages[url]
	if !ok {
		return nil, fmt.Errorf("no page for %s", url)
	}
	return goquery.NewDocumentFromReader(strings.NewReader(html))
}

func (f *fakeProvider) Close() error {
	f.closed = true
	return nil
}

func testRecipe() *recipe.Recipe {
	return &recipe.Recipe{
		Name:    "shop",
		Version: "1.0",
		SiteURL: "shop.example.com",
		Selectors: recipe.Selectors{
			Title:        recipe.StringList{"h1.product-title"},
			Price:        recipe.StringList{".price"},
			Images:       recipe.StringList{".gallery img"},
			SKU:          recipe.StringList{".sku"},
			Category:     recipe.StringList{".breadcrumb .current"},
			ProductLinks: recipe.StringList{"a.product"},
			NextPage:     recipe.StringList{"a.next"},
		},
	}
}

func newTestAdapter(t *testing.T, r *recipe.Recipe, provider dom.Provider) *RecipeAdapter {
	t.Helper()
	a, err := New(r, "https://shop.example.com/shoes", provider, testLogger())
	require.NoError(t, err)
	return a
}

func drain(t *testing.T, s *URLStream) []string {
	t.Helper()
	var urls []string
	for {
		u, ok := s.Next(context.Background())
		if !ok {
			return urls
		}
		urls = append(urls, u)
	}
}

func TestDiscoverPaginatesAndFilters(t *testing.T) {
	provider := &fakeProvider{pages: map[string]string{
		"https://shop.example.com/shoes": `<html><body>
			<h1>Shoes</h1>
			<a class="product" href="/products/alpha">Alpha</a>
			<a class="product" href="/products/alpha">Alpha again</a>
			<a class="product" href="/products/beta?add-to-cart=9">Cart</a>
			<a class="product" href="/product-category/boots">Boots</a>
			<a class="product" href="/products/gamma">Gamma</a>
			<a class="next" href="/shoes?page=2">Next</a>
		</body></html>`,
		"https://shop.example.com/shoes?page=2": `<html><body>
			<a class="product" href="/products/delta">Delta</a>
		</body></html>`,
	}}
	a := newTestAdapter(t, testRecipe(), provider)

	urls := drain(t, a.Discover(context.Background()))
	assert.Equal(t, []string{
		"https://shop.example.com/products/alpha",
		"https://shop.example.com/products/gamma",
		"https://shop.example.com/products/delta",
	}, urls)
	assert.Len(t, provider.calls, 2)
	assert.Equal(t, "Shoes", a.categoryFallback())
}

func TestDiscoverHonorsMaxPages(t *testing.T) {
	r := testRecipe()
	r.Behavior.MaxPages = 1
	provider := &fakeProvider{pages: map[string]string{
		"https://shop.example.com/shoes": `<html><body>
			<a class="product" href="/products/alpha">Alpha</a>
			<a class="next" href="/shoes?page=2">Next</a>
		</body></html>`,
	}}
	a := newTestAdapter(t, r, provider)

	urls := drain(t, a.Discover(context.Background()))
	assert.Equal(t, []string{"https://shop.example.com/products/alpha"}, urls)
	assert.Len(t, provider.calls, 1)
}

func TestURLStreamCloseStopsPagination(t *testing.T) {
	provider := &fakeProvider{pages: map[string]string{
		"https://shop.example.com/shoes": `<html><body>
			<a class="product" href="/products/alpha">Alpha</a>
			<a class="product" href="/products/beta">Beta</a>
			<a class="next" href="/shoes?page=2">Next</a>
		</body></html>`,
	}}
	a := newTestAdapter(t, testRecipe(), provider)

	s := a.Discover(context.Background())
	u, ok := s.Next(context.Background())
	require.True(t, ok)
	assert.Equal(t, "https://shop.example.com/products/alpha", u)

	s.Close()
	_, ok = s.Next(context.Background())
	assert.False(t, ok)
	assert.Len(t, provider.calls, 1)
	assert.NoError(t, s.Err())
}

func TestDiscoverFetchFailureEndsStream(t *testing.T) {
	provider := &fakeProvider{err: errors.New("connection refused")}
	a := newTestAdapter(t, testRecipe(), provider)

	s := a.Discover(context.Background())
	_, ok := s.Next(context.Background())
	assert.False(t, ok)
	assert.ErrorContains(t, s.Err(), "connection refused")
}

func TestExtractUsesFallbackWhenPrimaryIsPriceLike(t *testing.T) {
	r := testRecipe()
	r.Selectors.Title = recipe.StringList{".maybe-title"}
	r.Fallbacks = map[string]recipe.StringList{"title": {"h1.product-title"}}

	provider := &fakeProvider{pages: map[string]string{
		"https://shop.example.com/products/alpha": `<html><body>
			<div class="maybe-title">₪149.90</div>
			<h1 class="product-title">Alpha Runner</h1>
			<span class="price">₪149.90</span>
			<div class="gallery"><img src="/img/alpha.jpg"></div>
		</body></html>`,
	}}
	a := newTestAdapter(t, r, provider)

	raw, err := a.Extract(context.Background(), "https://shop.example.com/products/alpha")
	require.NoError(t, err)
	assert.Equal(t, "Alpha Runner", raw.Title)
	assert.Equal(t, "₪149.90", raw.Price)
	assert.Equal(t, []string{"https://shop.example.com/img/alpha.jpg"}, raw.Images)
}

func TestExtractFetchFailureIsNetworkError(t *testing.T) {
	provider := &fakeProvider{err: errors.New("dns failure")}
	a := newTestAdapter(t, testRecipe(), provider)

	_, err := a.Extract(context.Background(), "https://shop.example.com/products/alpha")
	var serr *models.ScrapingError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, models.ErrNetwork, serr.Code)
	assert.True(t, serr.Retryable)
}

func TestExtractInvalidSelectorDegradesToEmpty(t *testing.T) {
	r := testRecipe()
	r.Selectors.SKU = recipe.StringList{"div[unclosed"}

	provider := &fakeProvider{pages: map[string]string{
		"https://shop.example.com/products/alpha": `<html><body>
			<h1 class="product-title">Alpha</h1>
			<span class="price">10</span>
		</body></html>`,
	}}
	a := newTestAdapter(t, r, provider)

	raw, err := a.Extract(context.Background(), "https://shop.example.com/products/alpha")
	require.NoError(t, err)
	assert.Empty(t, raw.SKU)
	assert.Equal(t, "Alpha", raw.Title)
}

func TestExtractImagesLazyAndDeduped(t *testing.T) {
	provider := &fakeProvider{pages: map[string]string{
		"https://shop.example.com/products/alpha": `<html><body>
			<h1 class="product-title">Alpha</h1>
			<div class="gallery">
				<img src="/img/a.jpg">
				<img src="data:image/gif;base64,R0lGOD" data-src="/img/b.jpg">
				<img src="/img/a.jpg">
				<img src="javascript:void(0)">
			</div>
		</body></html>`,
	}}
	a := newTestAdapter(t, testRecipe(), provider)

	raw, err := a.Extract(context.Background(), "https://shop.example.com/products/alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{
		"https://shop.example.com/img/a.jpg",
		"https://shop.example.com/img/b.jpg",
	}, raw.Images)
}

func TestExtractAttributesFilterPlaceholders(t *testing.T) {
	provider := &fakeProvider{pages: map[string]string{
		"https://shop.example.com/products/alpha": `<html><body>
			<h1 class="product-title">Alpha</h1>
			<div class="variations">
				<select name="attribute_pa_color">
					<option value="">Choose an option</option>
					<option value="red">Red</option>
					<option value="blue">Blue</option>
				</select>
				<select name="attribute_size">
					<option value="">בחר אפשרות</option>
					<option value="l">L</option>
				</select>
			</div>
		</body></html>`,
	}}
	a := newTestAdapter(t, testRecipe(), provider)

	raw, err := a.Extract(context.Background(), "https://shop.example.com/products/alpha")
	require.NoError(t, err)
	assert.Equal(t, []string{"Red", "Blue"}, raw.Attributes["pa_color"])
	assert.Equal(t, []string{"L"}, raw.Attributes["size"])
}

func TestVariationsParsedFromEmbeddedPayload(t *testing.T) {
	payload := `[{&quot;sku&quot;:&quot;ALPHA-R&quot;,&quot;display_price&quot;:149.9,` +
		`&quot;is_in_stock&quot;:true,&quot;image&quot;:{&quot;url&quot;:&quot;/img/red.jpg&quot;},` +
		`&quot;attributes&quot;:{&quot;attribute_pa_color&quot;:&quot;red&quot;}},` +
		`{&quot;sku&quot;:&quot;ALPHA-B&quot;,&quot;display_price&quot;:159.9,` +
		`&quot;is_in_stock&quot;:false,&quot;image&quot;:{&quot;url&quot;:&quot;&quot;},` +
		`&quot;attributes&quot;:{&quot;attribute_pa_color&quot;:&quot;blue&quot;}}]`

	provider := &fakeProvider{pages: map[string]string{
		"https://shop.example.com/products/alpha": `<html><body>
			<h1 class="product-title">Alpha</h1>
			<form class="variations_form" data-product_variations="` + payload + `"></form>
		</body></html>`,
	}}
	a := newTestAdapter(t, testRecipe(), provider)

	raw, err := a.Extract(context.Background(), "https://shop.example.com/products/alpha")
	require.NoError(t, err)
	require.Len(t, raw.Variations, 2)

	assert.Equal(t, "ALPHA-R", raw.Variations[0].SKU)
	assert.Equal(t, "149.9", raw.Variations[0].Price)
	assert.True(t, raw.Variations[0].InStock)
	assert.Equal(t, "https://shop.example.com/img/red.jpg", raw.Variations[0].Image)
	assert.Equal(t, map[string]string{"pa_color": "red"}, raw.Variations[0].Assignments)

	assert.Equal(t, "ALPHA-B", raw.Variations[1].SKU)
	assert.False(t, raw.Variations[1].InStock)
	assert.Empty(t, raw.Variations[1].Image)
}

func TestVariationsSynthesizedOnlyWithDivergenceEvidence(t *testing.T) {
	withAttributes := func(extra string) string {
		return `<html><body>
			<h1 class="product-title">Alpha</h1>
			` + extra + `
			<div class="variations">
				<select name="attribute_pa_color">
					<option value="">Choose an option</option>
					<option>Red</option>
					<option>Blue</option>
				</select>
				<select name="attribute_size">
					<option value="">Choose an option</option>
					<option>L</option>
				</select>
			</div>
		</body></html>`
	}

	t.Run("single price yields no synthetic variations", func(t *testing.T) {
		provider := &fakeProvider{pages: map[string]string{
			"https://shop.example.com/products/alpha": withAttributes(`<span class="price">100</span>`),
		}}
		a := newTestAdapter(t, testRecipe(), provider)

		raw, err := a.Extract(context.Background(), "https://shop.example.com/products/alpha")
		require.NoError(t, err)
		assert.Empty(t, raw.Variations)
	})

	t.Run("diverging prices synthesize the cartesian product", func(t *testing.T) {
		provider := &fakeProvider{pages: map[string]string{
			"https://shop.example.com/products/alpha": withAttributes(
				`<span class="price">100</span><span class="price">120</span>`),
		}}
		a := newTestAdapter(t, testRecipe(), provider)

		raw, err := a.Extract(context.Background(), "https://shop.example.com/products/alpha")
		require.NoError(t, err)
		require.Len(t, raw.Variations, 2)
		assert.Equal(t, map[string]string{"pa_color": "Red", "size": "L"}, raw.Variations[0].Assignments)
		assert.Equal(t, map[string]string{"pa_color": "Blue", "size": "L"}, raw.Variations[1].Assignments)
		for _, v := range raw.Variations {
			assert.True(t, v.InStock)
			assert.Empty(t, v.SKU)
		}
	})
}

func TestValidateRequiredAndLength(t *testing.T) {
	r := testRecipe()
	r.Validation = recipe.Validation{
		Required:  []string{"title", "price"},
		MaxLength: map[string]int{"title": 10},
	}
	a := newTestAdapter(t, r, &fakeProvider{})

	assert.NoError(t, a.Validate(&models.RawProduct{Title: "Alpha", Price: "10"}))

	err := a.Validate(&models.RawProduct{Title: "Alpha"})
	assert.ErrorContains(t, err, `missing required field "price"`)

	err = a.Validate(&models.RawProduct{Title: "A very long product title", Price: "10"})
	assert.ErrorContains(t, err, `exceeds 10 characters`)
}

func writeRecipeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

const resolverRecipeYAML = `name: shop
version: "1.0"
site_url: shop.example.com
selectors:
  title: h1.product-title
  price: .price
  images: .gallery img
transforms:
  price:
    - "replace:₪|"
    - trim
validation:
  formats:
    price: '^[0-9.]+$'
`

const wildcardRecipeYAML = `name: generic
version: "1.0"
site_url: "*"
selectors:
  title: h1
  price: .price
  images: img
`

func newTestResolver(t *testing.T, provider dom.Provider) *Resolver {
	t.Helper()
	dir := t.TempDir()
	writeRecipeFile(t, dir, "shop.yaml", resolverRecipeYAML)
	writeRecipeFile(t, dir, "generic.yaml", wildcardRecipeYAML)

	store, err := recipe.NewStore(dir, testLogger())
	require.NoError(t, err)
	resolver, err := NewResolver(store, provider, nil, testLogger())
	require.NoError(t, err)
	return resolver
}

func TestResolverResolvesAndCaches(t *testing.T) {
	resolver := newTestResolver(t, &fakeProvider{})

	a1, err := resolver.Resolve("shop", "https://shop.example.com")
	require.NoError(t, err)
	a2, err := resolver.Resolve("shop", "https://shop.example.com")
	require.NoError(t, err)
	assert.Same(t, a1, a2)

	// Auto-selection prefers the exact-host recipe over the wildcard.
	auto, err := resolver.Resolve("", "https://shop.example.com")
	require.NoError(t, err)
	assert.Equal(t, "shop", auto.Recipe().Name)

	other, err := resolver.Resolve("", "https://other.example.net")
	require.NoError(t, err)
	assert.Equal(t, "generic", other.Recipe().Name)
}

func TestResolverRejectsSiteMismatch(t *testing.T) {
	resolver := newTestResolver(t, &fakeProvider{})

	_, err := resolver.Resolve("shop", "https://unrelated.example.net")
	assert.ErrorContains(t, err, "does not match site")
}

func TestResolverEvictMintsFreshAdapter(t *testing.T) {
	resolver := newTestResolver(t, &fakeProvider{})

	a1, err := resolver.Resolve("shop", "https://shop.example.com")
	require.NoError(t, err)

	resolver.Evict("shop")
	a2, err := resolver.Resolve("shop", "https://shop.example.com")
	require.NoError(t, err)
	assert.NotSame(t, a1, a2)
}

func TestResolvedRecipeAppliesTransforms(t *testing.T) {
	provider := &fakeProvider{pages: map[string]string{
		"https://shop.example.com/products/alpha": `<html><body>
			<h1 class="product-title">Alpha</h1>
			<span class="price"> ₪149.90 </span>
			<div class="gallery"><img src="/img/a.jpg"></div>
		</body></html>`,
	}}
	resolver := newTestResolver(t, provider)

	a, err := resolver.Resolve("shop", "https://shop.example.com")
	require.NoError(t, err)

	raw, err := a.Extract(context.Background(), "https://shop.example.com/products/alpha")
	require.NoError(t, err)
	assert.Equal(t, "149.90", raw.Price)
	assert.NoError(t, a.Validate(raw))
}
