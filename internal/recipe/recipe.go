// Package recipe loads and resolves the declarative per-site scraping
// configuration. Recipes are parsed and validated once at load time and never
// mutated afterwards.
package recipe

import (
	"encoding/json"
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

// StringList accepts either a scalar or a sequence in recipe files, so
// `title: h1` and `title: [h1, .product-title]` both work.
type StringList []string

func (s *StringList) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var single string
		if err := value.Decode(&single); err != nil {
			return err
		}
		*s = StringList{single}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = StringList(list)
		return nil
	}
	return fmt.Errorf("selector must be a string or list of strings")
}

func (s *StringList) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		*s = StringList{single}
		return nil
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("selector must be a string or list of strings")
	}
	*s = StringList(list)
	return nil
}

// Selectors configure where the adapter looks for each field. Any entry may
// carry several selectors tried in order.
type Selectors struct {
	Title            StringList `yaml:"title" json:"title"`
	Price            StringList `yaml:"price" json:"price"`
	Images           StringList `yaml:"images" json:"images"`
	SKU              StringList `yaml:"sku" json:"sku"`
	Description      StringList `yaml:"description" json:"description"`
	ShortDescription StringList `yaml:"short_description" json:"short_description"`
	Stock            StringList `yaml:"stock" json:"stock"`
	Category         StringList `yaml:"category" json:"category"`
	Brand            StringList `yaml:"brand" json:"brand"`
	ProductLinks     StringList `yaml:"product_links" json:"product_links"`
	NextPage         StringList `yaml:"next_page" json:"next_page"`
	AttributeSelects StringList `yaml:"attribute_selects" json:"attribute_selects"`
	VariationData    StringList `yaml:"variation_data" json:"variation_data"`
}

// Behavior tunes how a recipe is driven at runtime.
type Behavior struct {
	RateLimitMs        int      `yaml:"rate_limit_ms" json:"rate_limit_ms"`
	MaxConcurrent      int      `yaml:"max_concurrent" json:"max_concurrent"`
	MaxPages           int      `yaml:"max_pages" json:"max_pages"`
	UseHeadlessBrowser bool     `yaml:"use_headless_browser" json:"use_headless_browser"`
	WaitForSelectors   []string `yaml:"wait_for_selectors" json:"wait_for_selectors"`
}

// Validation declares per-field acceptance rules applied after extraction.
type Validation struct {
	Required  []string          `yaml:"required" json:"required"`
	Formats   map[string]string `yaml:"formats" json:"formats"`
	MaxLength map[string]int    `yaml:"max_length" json:"max_length"`
}

// Recipe is the immutable per-site configuration.
type Recipe struct {
	Name       string              `yaml:"name" json:"name"`
	Version    string              `yaml:"version" json:"version"`
	SiteURL    string              `yaml:"site_url" json:"site_url"`
	Selectors  Selectors           `yaml:"selectors" json:"selectors"`
	Fallbacks  map[string]StringList `yaml:"fallbacks" json:"fallbacks"`
	Transforms map[string][]string `yaml:"transforms" json:"transforms"`
	Behavior   Behavior            `yaml:"behavior" json:"behavior"`
	Validation Validation          `yaml:"validation" json:"validation"`

	compiledTransforms map[string][]Transform
	compiledFormats    map[string]*regexp.Regexp
}

// Defaults applied where behavior fields are unset.
const (
	DefaultRateLimitMs   = 50
	DefaultMaxConcurrent = 10
	DefaultMaxPages      = 100
	MinRateLimitMs       = 10
)

// Validate checks file-level validity: a recipe without a name, version, site
// pattern, or the three required selectors is rejected at load time.
func (r *Recipe) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("recipe is missing name")
	}
	if r.Version == "" {
		return fmt.Errorf("recipe %q is missing version", r.Name)
	}
	if r.SiteURL == "" {
		return fmt.Errorf("recipe %q is missing site_url", r.Name)
	}
	if len(r.Selectors.Title) == 0 {
		return fmt.Errorf("recipe %q is missing title selector", r.Name)
	}
	if len(r.Selectors.Price) == 0 {
		return fmt.Errorf("recipe %q is missing price selector", r.Name)
	}
	if len(r.Selectors.Images) == 0 {
		return fmt.Errorf("recipe %q is missing images selector", r.Name)
	}
	return nil
}

// compile parses the transform micro-language and validation regexes once so
// extraction never re-parses strings.
func (r *Recipe) compile() error {
	r.compiledTransforms = make(map[string][]Transform, len(r.Transforms))
	for field, steps := range r.Transforms {
		parsed, err := ParseTransforms(steps)
		if err != nil {
			return fmt.Errorf("recipe %q, field %q: %w", r.Name, field, err)
		}
		r.compiledTransforms[field] = parsed
	}

	r.compiledFormats = make(map[string]*regexp.Regexp, len(r.Validation.Formats))
	for field, pattern := range r.Validation.Formats {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("recipe %q, format for %q: %w", r.Name, field, err)
		}
		r.compiledFormats[field] = re
	}
	return nil
}

// FieldTransforms returns the parsed transform chain for a field, in declared
// order. Nil when the field has none.
func (r *Recipe) FieldTransforms(field string) []Transform {
	return r.compiledTransforms[field]
}

// FieldFormat returns the compiled validation regex for a field, if any.
func (r *Recipe) FieldFormat(field string) *regexp.Regexp {
	return r.compiledFormats[field]
}

// FieldFallbacks returns the configured fallback selectors for a field.
func (r *Recipe) FieldFallbacks(field string) []string {
	return r.Fallbacks[field]
}

// RateLimitMs returns the effective inter-batch delay with defaults and the
// floor applied.
func (r *Recipe) RateLimitMs() int {
	ms := r.Behavior.RateLimitMs
	if ms <= 0 {
		ms = DefaultRateLimitMs
	}
	if ms < MinRateLimitMs {
		ms = MinRateLimitMs
	}
	return ms
}

// MaxConcurrent returns the effective worker cap with the default applied.
func (r *Recipe) MaxConcurrent() int {
	if r.Behavior.MaxConcurrent <= 0 {
		return DefaultMaxConcurrent
	}
	return r.Behavior.MaxConcurrent
}

// MaxPages returns the pagination cap with the default applied.
func (r *Recipe) MaxPages() int {
	if r.Behavior.MaxPages <= 0 {
		return DefaultMaxPages
	}
	return r.Behavior.MaxPages
}
