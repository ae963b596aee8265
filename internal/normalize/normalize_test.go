package normalize

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxfell/recipe-scraper/internal/models"
)

func sampleRaw() *models.RawProduct {
	return &models.RawProduct{
		Title:       "  Blue%20Widget &amp; Co  ",
		Price:       "₪ 149.90",
		Description: "A   fine widget.",
		StockText:   "In stock",
		Category:    "Widgets",
		Images: []string{
			"https://example.com/img/widget.jpg",
			"/relative/skipped.jpg",
			"https://example.com/img/widget.jpg",
		},
		Attributes: map[string][]string{
			"pa_color":       {"Red", "Select option", "", "Red"},
			"attribute_size": {"Large"},
		},
	}
}

func TestProductDeterministicExceptTimestamp(t *testing.T) {
	raw := sampleRaw()

	a := Product(raw, "https://example.com/products/widget", Options{})
	b := Product(raw, "https://example.com/products/widget", Options{})

	a.NormalizedAt = time.Time{}
	b.NormalizedAt = time.Time{}
	assert.Equal(t, a, b)
}

func TestProductDoesNotMutateInput(t *testing.T) {
	raw := sampleRaw()
	raw.Variations = []models.RawVariation{
		{SKU: "V-1", Price: "10", InStock: true, Assignments: map[string]string{"pa_color": "Red"}},
	}

	snapshot, err := json.Marshal(raw)
	require.NoError(t, err)

	Product(raw, "https://example.com/products/widget", Options{CanonicalAttributeKeys: true})

	after, err := json.Marshal(raw)
	require.NoError(t, err)
	assert.JSONEq(t, string(snapshot), string(after))
}

func TestProductTextCleaning(t *testing.T) {
	p := Product(sampleRaw(), "https://example.com/products/widget", Options{})

	assert.Equal(t, "Blue Widget & Co", p.Title)
	assert.Equal(t, "A fine widget.", p.Description)
	assert.Equal(t, models.StockIn, p.Stock)
	assert.Equal(t, []string{"https://example.com/img/widget.jpg"}, p.Images)
}

func TestProductAttributeCanonicalization(t *testing.T) {
	raw := sampleRaw()

	t.Run("raw keys", func(t *testing.T) {
		p := Product(raw, "https://example.com/products/widget", Options{})
		assert.Equal(t, []string{"Red"}, p.Attributes["color"])
		assert.Equal(t, []string{"Large"}, p.Attributes["size"])
	})

	t.Run("canonical keys", func(t *testing.T) {
		p := Product(raw, "https://example.com/products/widget", Options{CanonicalAttributeKeys: true})
		assert.Equal(t, []string{"Red"}, p.Attributes["pa_color"])
		assert.Equal(t, []string{"Large"}, p.Attributes["pa_size"])
	})
}

func TestProductTypeDetection(t *testing.T) {
	raw := sampleRaw()
	p := Product(raw, "https://example.com/products/widget", Options{})
	// Multi-valued attributes alone do not make a product variable.
	assert.Equal(t, models.ProductSimple, p.ProductType)

	raw.Variations = []models.RawVariation{{SKU: "V-1", InStock: true}}
	p = Product(raw, "https://example.com/products/widget", Options{})
	assert.Equal(t, models.ProductVariable, p.ProductType)
}

func TestGenerateSKUIgnoresQueryAndFragment(t *testing.T) {
	base := GenerateSKU("https://example.com/products/widget")
	withQuery := GenerateSKU("https://example.com/products/widget?x=1#y")
	assert.Equal(t, base, withQuery)
	assert.Contains(t, base, "WIDGET")

	other := GenerateSKU("https://example.com/products/gadget")
	assert.NotEqual(t, base, other)
}

func TestGenerateSKUStable(t *testing.T) {
	assert.Equal(t,
		GenerateSKU("https://example.com/products/widget"),
		GenerateSKU("https://example.com/products/widget"))
}

func TestBuildVariationSKU(t *testing.T) {
	assert.Equal(t, "WIDGET-ABC123-RED-LARGE",
		BuildVariationSKU("WIDGET-ABC123", map[string]string{"color": "red", "size": "large"}))

	assert.Equal(t, "WIDGET-ABC123-RED",
		BuildVariationSKU("WIDGET-ABC123", map[string]string{"color": "red", "size": ""}))

	assert.Equal(t, "WIDGET-ABC123",
		BuildVariationSKU("WIDGET-ABC123", map[string]string{"color": "", "size": ""}))

	assert.Equal(t, "WIDGET-ABC123",
		BuildVariationSKU("WIDGET-ABC123", nil))
}

func TestParentVariationSKUCollision(t *testing.T) {
	raw := &models.RawProduct{
		Title: "Widget",
		SKU:   "WIDGET-1",
		Variations: []models.RawVariation{
			{SKU: "WIDGET-1", InStock: true},
			{SKU: "WIDGET-2", InStock: true},
		},
	}

	p := Product(raw, "https://example.com/products/widget", Options{})

	assert.Equal(t, "WIDGET-1-PARENT", p.SKU)
	// Variation SKUs are untouched.
	assert.Equal(t, "WIDGET-1", p.Variations[0].SKU)
	assert.Equal(t, "WIDGET-2", p.Variations[1].SKU)
	for _, v := range p.Variations {
		assert.NotEqual(t, p.SKU, v.SKU)
	}
}

func TestVariationSKUSynthesizedFromAssignments(t *testing.T) {
	raw := &models.RawProduct{
		Title: "Widget",
		SKU:   "WIDGET-1",
		Variations: []models.RawVariation{
			{InStock: true, Assignments: map[string]string{"pa_color": "Red"}},
		},
	}

	p := Product(raw, "https://example.com/products/widget", Options{})
	assert.Equal(t, "WIDGET-1-RED", p.Variations[0].SKU)
}

func TestStockStatus(t *testing.T) {
	tests := []struct {
		text string
		want models.StockStatus
	}{
		{"In stock", models.StockIn},
		{"Out of stock", models.StockOut},
		{"Currently unavailable", models.StockOut},
		{"0", models.StockOut},
		{"אזל מהמלאי", models.StockOut},
		{"", models.StockIn},
		{"Ships tomorrow", models.StockIn},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StockStatus(tt.text), "text %q", tt.text)
	}
}

func TestCleanTextStripsBidiAndPlaceholders(t *testing.T) {
	assert.Equal(t, "Widget", CleanText("‏Widget‎"))
	assert.Equal(t, "", CleanText("Select option"))
	assert.Equal(t, "", CleanText("בחר אפשרות"))
	assert.Equal(t, "a b", CleanText("  a \t\n b "))
}

func TestSlugifyPreservesNonLatin(t *testing.T) {
	assert.Equal(t, "blue-widget", Slugify("Blue Widget!"))
	assert.Equal(t, "חולצת-כותנה", Slugify("חולצת כותנה"))
}
