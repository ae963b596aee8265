// Package adapter applies a recipe against live documents: it discovers
// product URLs on listing pages and extracts one raw product per URL.
// Site-specific behavior is data (the recipe), not code.
package adapter

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/maxfell/recipe-scraper/internal/dom"
	"github.com/maxfell/recipe-scraper/internal/models"
	"github.com/maxfell/recipe-scraper/internal/recipe"
)

// SiteAdapter is the capability contract the scheduler drives.
type SiteAdapter interface {
	// Discover returns a fresh lazy URL stream. Each call restarts
	// pagination; streams are not shared between calls.
	Discover(ctx context.Context) *URLStream
	// Extract scrapes one raw product. It only fails for document-fetch
	// failures; per-field selector trouble degrades to empty values.
	Extract(ctx context.Context, productURL string) (*models.RawProduct, error)
	// Validate applies the recipe's validation rules to a raw product.
	Validate(raw *models.RawProduct) error
	// Recipe exposes the immutable configuration driving this adapter.
	Recipe() *recipe.Recipe
	// Cleanup releases per-job state. Idempotent.
	Cleanup()
}

// RecipeAdapter is the generic, selector-driven implementation: one instance
// per (recipe, site) pair, minted and cached by the Resolver.
type RecipeAdapter struct {
	recipe   *recipe.Recipe
	provider dom.Provider
	siteURL  string
	base     *url.URL
	logger   *slog.Logger

	mu               sync.Mutex
	fallbackCategory string
	cleanupOnce      sync.Once
}

func New(r *recipe.Recipe, siteURL string, provider dom.Provider, logger *slog.Logger) (*RecipeAdapter, error) {
	base, err := url.Parse(siteURL)
	if err != nil || base.Host == "" {
		return nil, fmt.Errorf("invalid site url %q", siteURL)
	}
	return &RecipeAdapter{
		recipe:   r,
		provider: provider,
		siteURL:  siteURL,
		base:     base,
		logger:   logger.With("component", "adapter", "recipe", r.Name),
	}, nil
}

// Recipe exposes the adapter's immutable configuration.
func (a *RecipeAdapter) Recipe() *recipe.Recipe {
	return a.recipe
}

// Validate applies the recipe's validation block: required fields, regex
// formats, and length bounds.
func (a *RecipeAdapter) Validate(raw *models.RawProduct) error {
	var problems []string

	for _, field := range a.recipe.Validation.Required {
		if fieldValue(raw, field) == "" {
			problems = append(problems, fmt.Sprintf("missing required field %q", field))
		}
	}
	for field := range a.recipe.Validation.Formats {
		re := a.recipe.FieldFormat(field)
		if re == nil {
			continue
		}
		v := fieldValue(raw, field)
		if v != "" && !re.MatchString(v) {
			problems = append(problems, fmt.Sprintf("field %q does not match format", field))
		}
	}
	for field, max := range a.recipe.Validation.MaxLength {
		if v := fieldValue(raw, field); len(v) > max {
			problems = append(problems, fmt.Sprintf("field %q exceeds %d characters", field, max))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Cleanup drops per-job state. Safe to call more than once and from a
// finally-style path.
func (a *RecipeAdapter) Cleanup() {
	a.cleanupOnce.Do(func() {
		a.mu.Lock()
		a.fallbackCategory = ""
		a.mu.Unlock()
		a.logger.Debug("adapter cleaned up", "site", a.siteURL)
	})
}

func (a *RecipeAdapter) setFallbackCategory(heading string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.fallbackCategory == "" && heading != "" {
		a.fallbackCategory = heading
	}
}

func (a *RecipeAdapter) categoryFallback() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.fallbackCategory
}

// absoluteURL resolves href against the adapter's site base.
func (a *RecipeAdapter) absoluteURL(href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := a.base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func fieldValue(raw *models.RawProduct, field string) string {
	switch field {
	case "title":
		return raw.Title
	case "price":
		return raw.Price
	case "sku":
		return raw.SKU
	case "description":
		return raw.Description
	case "short_description":
		return raw.ShortDescription
	case "stock":
		return raw.StockText
	case "category":
		return raw.Category
	case "brand":
		return raw.Brand
	case "images":
		if len(raw.Images) > 0 {
			return raw.Images[0]
		}
	}
	return ""
}
