package adapter

import (
	"context"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maxfell/recipe-scraper/internal/dom"
)

// Substrings that mark links discovery must skip: cart actions and
// category/archive pages that only lead back into listings.
var (
	cartLinkMarkers    = []string{"add-to-cart", "add_to_cart", "?add-to-cart"}
	archiveLinkMarkers = []string{"/product-category/", "/category/", "/tag/"}
)

// URLStream is a pull-based, lazily paginated sequence of product URLs. Each
// Discover call returns a fresh stream; a stream is not safe for concurrent
// use. Close stops pagination early without fetching further pages.
type URLStream struct {
	adapter *RecipeAdapter

	nextPage string
	pages    int
	maxPages int
	pending  []string
	closed   bool
	err      error
}

// Discover starts pagination at the adapter's site URL.
func (a *RecipeAdapter) Discover(ctx context.Context) *URLStream {
	return &URLStream{
		adapter:  a,
		nextPage: a.siteURL,
		maxPages: a.recipe.MaxPages(),
	}
}

// Next yields the next product URL. It returns false when the stream is
// exhausted, closed, or pagination failed; Err distinguishes the last case.
// Fetch or selector failure ends the sequence rather than propagating.
func (s *URLStream) Next(ctx context.Context) (string, bool) {
	for {
		if s.closed {
			return "", false
		}
		if len(s.pending) > 0 {
			u := s.pending[0]
			s.pending = s.pending[1:]
			return u, true
		}
		if s.nextPage == "" || s.pages >= s.maxPages {
			return "", false
		}
		if err := s.fetchPage(ctx); err != nil {
			s.adapter.logger.Warn("discovery aborted", "page", s.pages+1, "error", err)
			s.err = err
			s.closed = true
			return "", false
		}
	}
}

// Err reports why the stream ended early, if it did.
func (s *URLStream) Err() error {
	return s.err
}

// Close stops the stream. Subsequent Next calls return false immediately.
func (s *URLStream) Close() {
	s.closed = true
	s.pending = nil
}

func (s *URLStream) fetchPage(ctx context.Context) error {
	a := s.adapter
	pageURL := s.nextPage
	s.nextPage = ""
	s.pages++

	doc, err := a.provider.Fetch(ctx, pageURL, dom.FetchOptions{
		WaitForSelectors: a.recipe.Behavior.WaitForSelectors,
	})
	if err != nil {
		return err
	}

	// The listing page's primary heading doubles as a category fallback for
	// products that carry none of their own.
	if heading := strings.TrimSpace(doc.Find("h1").First().Text()); heading != "" {
		a.setFallbackCategory(heading)
	}

	s.pending = append(s.pending, s.collectProductLinks(doc)...)
	s.nextPage = s.findNextPage(doc)

	a.logger.Debug("listing page crawled",
		"page", s.pages, "url", pageURL, "links", len(s.pending), "hasNext", s.nextPage != "")
	return nil
}

// collectProductLinks applies the recipe's product-link selectors, filters
// cart and archive links, and de-duplicates within the page.
func (s *URLStream) collectProductLinks(doc *goquery.Document) []string {
	a := s.adapter

	var links []string
	seen := make(map[string]struct{})

	selectors := a.recipe.Selectors.ProductLinks
	if len(selectors) == 0 {
		selectors = []string{"a[href]"}
	}

	for _, selector := range selectors {
		sel, ok := a.safeFind(doc.Selection, selector)
		if !ok {
			continue
		}
		sel.Each(func(_ int, el *goquery.Selection) {
			href, _ := el.Attr("href")
			abs := a.absoluteURL(href)
			if abs == "" || skipLink(abs) {
				return
			}
			if _, dup := seen[abs]; dup {
				return
			}
			seen[abs] = struct{}{}
			links = append(links, abs)
		})
	}
	return links
}

func (s *URLStream) findNextPage(doc *goquery.Document) string {
	a := s.adapter
	for _, selector := range a.recipe.Selectors.NextPage {
		sel, ok := a.safeFind(doc.Selection, selector)
		if !ok {
			continue
		}
		href, exists := sel.First().Attr("href")
		if !exists {
			continue
		}
		if abs := a.absoluteURL(href); abs != "" {
			return abs
		}
	}
	return ""
}

func skipLink(link string) bool {
	lower := strings.ToLower(link)
	for _, marker := range cartLinkMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	for _, marker := range archiveLinkMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
