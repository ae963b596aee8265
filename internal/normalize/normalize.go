// Package normalize turns raw scraped product data into the canonical record
// downstream formatting consumes. Every function is pure: inputs are never
// mutated and, apart from the NormalizedAt timestamp, the same raw product
// always normalizes to the same output.
package normalize

import (
	"strings"

	"github.com/maxfell/recipe-scraper/internal/models"
)

// Options tune normalization per call site.
type Options struct {
	// CanonicalAttributeKeys re-prefixes attribute keys with the canonical
	// taxonomy prefix after stripping raw prefixes. When false the stripped
	// raw keys are kept as-is.
	CanonicalAttributeKeys bool
}

// taxonomyPrefix is the single canonical attribute prefix re-added when
// CanonicalAttributeKeys is on.
const taxonomyPrefix = "pa_"

var rawAttributePrefixes = []string{"attribute_pa_", "attribute_", "pa_"}

// Product canonicalizes one raw product scraped from sourceURL.
func Product(raw *models.RawProduct, sourceURL string, opts Options) *models.NormalizedProduct {
	title := CleanText(raw.Title)

	sku := CleanText(raw.SKU)
	if sku == "" {
		sku = GenerateSKU(sourceURL)
	}

	p := &models.NormalizedProduct{
		ID:               sku,
		SKU:              sku,
		Title:            title,
		Slug:             Slugify(title),
		Price:            NormalizePrice(raw.Price),
		Description:      CleanText(raw.Description),
		ShortDescription: CleanText(raw.ShortDescription),
		Stock:            StockStatus(raw.StockText),
		Category:         CleanText(raw.Category),
		Brand:            CleanText(raw.Brand),
		Images:           filterImages(raw.Images),
		Attributes:       normalizeAttributes(raw.Attributes, opts),
		SourceURL:        sourceURL,
		NormalizedAt:     now(),
	}

	if len(raw.Variations) > 0 {
		p.ProductType = models.ProductVariable
		p.Variations = make([]models.NormalizedVariation, 0, len(raw.Variations))
		for _, rv := range raw.Variations {
			p.Variations = append(p.Variations, variation(rv, sku, opts))
		}
		resolveSKUCollision(p)
	} else {
		p.ProductType = models.ProductSimple
		p.Variations = []models.NormalizedVariation{}
	}

	p.Confidence = confidence(p)
	return p
}

func variation(rv models.RawVariation, parentSKU string, opts Options) models.NormalizedVariation {
	assignments := make(map[string]string, len(rv.Assignments))
	for k, v := range rv.Assignments {
		key := attributeKey(k, opts)
		val := CleanText(v)
		if key == "" || val == "" {
			continue
		}
		assignments[key] = val
	}

	sku := CleanText(rv.SKU)
	if sku == "" {
		sku = BuildVariationSKU(parentSKU, assignments)
	}

	stock := models.StockIn
	if !rv.InStock {
		stock = models.StockOut
	}

	return models.NormalizedVariation{
		SKU:         sku,
		Price:       NormalizePrice(rv.Price),
		Stock:       stock,
		Image:       absoluteImage(rv.Image),
		Assignments: assignments,
	}
}

// resolveSKUCollision enforces the parent/variation invariant: when the
// parent SKU equals any variation SKU, the parent is suffixed. Variation SKUs
// are never rewritten.
func resolveSKUCollision(p *models.NormalizedProduct) {
	for {
		collides := false
		for _, v := range p.Variations {
			if v.SKU == p.SKU {
				collides = true
				break
			}
		}
		if !collides {
			return
		}
		p.SKU += "-PARENT"
		p.ID = p.SKU
	}
}

func normalizeAttributes(raw map[string][]string, opts Options) map[string][]string {
	out := make(map[string][]string, len(raw))
	for k, values := range raw {
		key := attributeKey(k, opts)
		if key == "" {
			continue
		}
		cleaned := make([]string, 0, len(values))
		seen := make(map[string]struct{}, len(values))
		for _, v := range values {
			cv := CleanText(v)
			if cv == "" {
				continue
			}
			if _, dup := seen[cv]; dup {
				continue
			}
			seen[cv] = struct{}{}
			cleaned = append(cleaned, cv)
		}
		if len(cleaned) == 0 {
			continue
		}
		out[key] = cleaned
	}
	return out
}

// attributeKey strips the raw prefixes and, when canonicalization is on,
// re-adds the single taxonomy prefix over a slugged key.
func attributeKey(k string, opts Options) string {
	key := strings.ToLower(CleanText(k))
	for _, prefix := range rawAttributePrefixes {
		if strings.HasPrefix(key, prefix) {
			key = strings.TrimPrefix(key, prefix)
			break
		}
	}
	if key == "" {
		return ""
	}
	if opts.CanonicalAttributeKeys {
		return taxonomyPrefix + Slugify(key)
	}
	return key
}

func filterImages(images []string) []string {
	out := make([]string, 0, len(images))
	seen := make(map[string]struct{}, len(images))
	for _, img := range images {
		abs := absoluteImage(img)
		if abs == "" {
			continue
		}
		if _, dup := seen[abs]; dup {
			continue
		}
		seen[abs] = struct{}{}
		out = append(out, abs)
	}
	return out
}

// absoluteImage keeps only absolute http(s) URLs.
func absoluteImage(img string) string {
	img = strings.TrimSpace(img)
	if strings.HasPrefix(img, "http://") || strings.HasPrefix(img, "https://") {
		return img
	}
	return ""
}

// confidence scores how complete the canonical record is.
func confidence(p *models.NormalizedProduct) float64 {
	fields := []bool{
		p.Title != "",
		p.Price != "",
		p.Description != "",
		len(p.Images) > 0,
		p.Category != "",
	}
	present := 0
	for _, ok := range fields {
		if ok {
			present++
		}
	}
	return float64(present) / float64(len(fields))
}
