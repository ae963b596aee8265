package adapter

import (
	"encoding/json"
	"html"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maxfell/recipe-scraper/internal/models"
)

// synthesizedVariationCap bounds the cartesian product of attribute values
// when variations must be synthesized from select widgets.
const synthesizedVariationCap = 100

// variationPayload mirrors the embedded storefront variation JSON.
type variationPayload struct {
	SKU          string            `json:"sku"`
	DisplayPrice json.Number       `json:"display_price"`
	IsInStock    bool              `json:"is_in_stock"`
	Image        variationImage    `json:"image"`
	Attributes   map[string]string `json:"attributes"`
}

type variationImage struct {
	URL string `json:"url"`
}

// extractVariations tries the embedded JSON payload first; when the page
// carries none, it falls back to synthesizing combinations from the attribute
// selects, but only when the page shows evidence that variants actually
// diverge.
func (a *RecipeAdapter) extractVariations(doc *goquery.Document, raw *models.RawProduct) []models.RawVariation {
	if parsed := a.parseVariationData(doc); len(parsed) > 0 {
		return parsed
	}
	return a.synthesizeVariations(doc, raw)
}

func (a *RecipeAdapter) parseVariationData(doc *goquery.Document) []models.RawVariation {
	selectors := a.recipe.Selectors.VariationData
	if len(selectors) == 0 {
		selectors = []string{"form.variations_form"}
	}

	for _, selector := range selectors {
		sel, ok := a.safeFind(doc.Selection, selector)
		if !ok {
			continue
		}
		payload, exists := sel.First().Attr("data-product_variations")
		if !exists || payload == "" || payload == "false" {
			continue
		}

		var entries []variationPayload
		if err := json.Unmarshal([]byte(html.UnescapeString(payload)), &entries); err != nil {
			a.logger.Warn("variation payload unparsable", "selector", selector, "error", err)
			continue
		}

		variations := make([]models.RawVariation, 0, len(entries))
		for _, entry := range entries {
			assignments := make(map[string]string, len(entry.Attributes))
			for key, value := range entry.Attributes {
				if value == "" {
					continue
				}
				assignments[strings.TrimPrefix(key, "attribute_")] = value
			}
			variations = append(variations, models.RawVariation{
				SKU:         entry.SKU,
				Price:       entry.DisplayPrice.String(),
				InStock:     entry.IsInStock,
				Image:       a.absoluteURL(entry.Image.URL),
				Assignments: assignments,
			})
		}
		if len(variations) > 0 {
			return variations
		}
	}
	return nil
}

// synthesizeVariations builds the cartesian product of the extracted
// attribute values. It requires divergence evidence on the page (more than
// one distinct price or SKU) so simple products with decorative selects do
// not balloon into fake variants.
func (a *RecipeAdapter) synthesizeVariations(doc *goquery.Document, raw *models.RawProduct) []models.RawVariation {
	if len(raw.Attributes) == 0 {
		return nil
	}
	if !a.variantsDiverge(doc) {
		return nil
	}

	keys := make([]string, 0, len(raw.Attributes))
	for key := range raw.Attributes {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	combos := cartesian(keys, raw.Attributes, synthesizedVariationCap)
	variations := make([]models.RawVariation, 0, len(combos))
	for _, combo := range combos {
		variations = append(variations, models.RawVariation{
			Price:       raw.Price,
			InStock:     true,
			Assignments: combo,
		})
	}
	a.logger.Debug("variations synthesized from attribute selects",
		"count", len(variations), "attributes", len(keys))
	return variations
}

// variantsDiverge looks for more than one distinct price or SKU rendered on
// the page.
func (a *RecipeAdapter) variantsDiverge(doc *goquery.Document) bool {
	return a.distinctTexts(doc, a.recipe.Selectors.Price) > 1 ||
		a.distinctTexts(doc, a.recipe.Selectors.SKU) > 1
}

func (a *RecipeAdapter) distinctTexts(doc *goquery.Document, selectors []string) int {
	seen := make(map[string]struct{})
	for _, selector := range selectors {
		sel, ok := a.safeFind(doc.Selection, selector)
		if !ok {
			continue
		}
		sel.Each(func(_ int, el *goquery.Selection) {
			if text := strings.TrimSpace(el.Text()); text != "" {
				seen[text] = struct{}{}
			}
		})
	}
	return len(seen)
}

func cartesian(keys []string, values map[string][]string, limit int) []map[string]string {
	combos := []map[string]string{{}}
	for _, key := range keys {
		var next []map[string]string
		for _, combo := range combos {
			for _, value := range values[key] {
				if len(next) >= limit {
					break
				}
				grown := make(map[string]string, len(combo)+1)
				for k, v := range combo {
					grown[k] = v
				}
				grown[key] = value
				next = append(next, grown)
			}
		}
		combos = next
		if len(combos) >= limit {
			combos = combos[:limit]
		}
	}
	if len(combos) == 1 && len(combos[0]) == 0 {
		return nil
	}
	return combos
}
