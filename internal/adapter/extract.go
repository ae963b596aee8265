package adapter

import (
	"context"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/maxfell/recipe-scraper/internal/dom"
	"github.com/maxfell/recipe-scraper/internal/models"
	"github.com/maxfell/recipe-scraper/internal/normalize"
	"github.com/maxfell/recipe-scraper/internal/recipe"
)

// Extract scrapes one product page into a raw record. Only document-fetch
// failure is returned as an error; every per-field problem degrades to an
// empty value with a logged warning.
func (a *RecipeAdapter) Extract(ctx context.Context, productURL string) (*models.RawProduct, error) {
	doc, err := a.provider.Fetch(ctx, productURL, dom.FetchOptions{
		WaitForSelectors: a.recipe.Behavior.WaitForSelectors,
	})
	if err != nil {
		return nil, models.WrapError(models.ErrNetwork, productURL, err)
	}

	sel := a.recipe.Selectors
	raw := &models.RawProduct{
		Title:            a.extractField(doc, "title", sel.Title, true),
		Price:            a.extractField(doc, "price", sel.Price, false),
		SKU:              a.extractField(doc, "sku", sel.SKU, false),
		Description:      a.extractField(doc, "description", sel.Description, true),
		ShortDescription: a.extractField(doc, "short_description", sel.ShortDescription, true),
		StockText:        a.extractField(doc, "stock", sel.Stock, false),
		Brand:            a.extractField(doc, "brand", sel.Brand, true),
		Images:           a.extractImages(doc),
		Attributes:       a.extractAttributes(doc),
	}

	raw.Category = a.extractField(doc, "category", sel.Category, true)
	if raw.Category == "" {
		raw.Category = a.categoryFallback()
	}

	raw.Variations = a.extractVariations(doc, raw)
	return raw, nil
}

// extractField walks the field's selector chain: primary selectors in
// declared order, then configured fallbacks. The first hit that is non-empty
// and, for textual fields, not price-like wins. Transforms apply to the
// winner in recipe-declared order.
func (a *RecipeAdapter) extractField(doc *goquery.Document, field string, primary recipe.StringList, textual bool) string {
	chain := make([]string, 0, len(primary)+4)
	chain = append(chain, primary...)
	chain = append(chain, a.recipe.FieldFallbacks(field)...)

	for _, selector := range chain {
		sel, ok := a.safeFind(doc.Selection, selector)
		if !ok {
			continue
		}
		text := strings.TrimSpace(sel.First().Text())
		if text == "" {
			continue
		}
		if textual && looksLikePrice(text) {
			a.logger.Debug("selector matched price-like content, trying fallback",
				"field", field, "selector", selector)
			continue
		}
		return recipe.ApplyTransforms(text, a.recipe.FieldTransforms(field))
	}
	return ""
}

func (a *RecipeAdapter) extractImages(doc *goquery.Document) []string {
	var images []string
	seen := make(map[string]struct{})

	for _, selector := range a.recipe.Selectors.Images {
		sel, ok := a.safeFind(doc.Selection, selector)
		if !ok {
			continue
		}
		sel.Each(func(_ int, el *goquery.Selection) {
			src, exists := el.Attr("src")
			if !exists || strings.HasPrefix(src, "data:") {
				if lazy, ok := el.Attr("data-src"); ok {
					src = lazy
				} else if href, ok := el.Attr("href"); ok {
					src = href
				}
			}
			abs := a.absoluteURL(src)
			if abs == "" {
				return
			}
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			images = append(images, abs)
		})
	}
	return images
}

// extractAttributes reads select-style attribute widgets: the element name
// (minus the form prefix) keys the option texts, with placeholder entries
// filtered out.
func (a *RecipeAdapter) extractAttributes(doc *goquery.Document) map[string][]string {
	attributes := make(map[string][]string)

	for _, selector := range a.attributeSelectSelectors() {
		sel, ok := a.safeFind(doc.Selection, selector)
		if !ok {
			continue
		}
		sel.Each(func(_ int, el *goquery.Selection) {
			name, _ := el.Attr("name")
			if name == "" {
				name, _ = el.Attr("data-attribute_name")
			}
			name = strings.TrimPrefix(strings.TrimSpace(name), "attribute_")
			if name == "" {
				return
			}

			var values []string
			el.Find("option").Each(func(_ int, opt *goquery.Selection) {
				value := strings.TrimSpace(opt.Text())
				if value == "" {
					value, _ = opt.Attr("value")
					value = strings.TrimSpace(value)
				}
				if value == "" || normalize.IsPlaceholder(value) {
					return
				}
				values = append(values, value)
			})
			if len(values) > 0 {
				attributes[name] = values
			}
		})
	}
	return attributes
}

func (a *RecipeAdapter) attributeSelectSelectors() []string {
	if len(a.recipe.Selectors.AttributeSelects) > 0 {
		return a.recipe.Selectors.AttributeSelects
	}
	return []string{".variations select", "select[name^=attribute]"}
}

// safeFind runs a selector defensively: an invalid selector is logged and
// reported as a miss instead of panicking out of the extraction.
func (a *RecipeAdapter) safeFind(root *goquery.Selection, selector string) (sel *goquery.Selection, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Warn("selector failed", "selector", selector, "error", r)
			sel, ok = nil, false
		}
	}()
	return root.Find(selector), true
}

// currencyTokens mark text as a price for the disambiguation heuristic.
var currencyTokens = []string{"₪", "$", "€", "£", "usd", "eur", "ils", "nis"}

// looksLikePrice detects short numeric/currency content so a misconfigured
// textual selector that lands on a price widget falls through to fallbacks.
func looksLikePrice(text string) bool {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" || len([]rune(trimmed)) > 20 {
		return false
	}

	lower := strings.ToLower(trimmed)
	hasCurrency := false
	for _, token := range currencyTokens {
		if strings.Contains(lower, token) {
			hasCurrency = true
			break
		}
	}

	digits := 0
	letters := 0
	for _, r := range trimmed {
		switch {
		case unicode.IsDigit(r):
			digits++
		case unicode.IsLetter(r):
			letters++
		}
	}

	if digits == 0 {
		return false
	}
	if hasCurrency {
		return true
	}
	// Pure short numerics (e.g. "149.90") count as price-like; anything with
	// real words does not.
	return letters == 0
}
