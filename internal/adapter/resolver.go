package adapter

import (
	"fmt"
	"log/slog"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/maxfell/recipe-scraper/internal/dom"
	"github.com/maxfell/recipe-scraper/internal/recipe"
)

const adapterCacheSize = 64

// Resolver mints adapters from recipes and caches them per (recipe, site)
// pair. It also picks the document provider: recipes that ask for a headless
// browser get the scripted provider with a plain-HTTP fallback.
type Resolver struct {
	store    *recipe.Store
	plain    dom.Provider
	scripted dom.Provider
	logger   *slog.Logger
	cache    *lru.Cache[string, *RecipeAdapter]
}

// NewResolver builds a resolver. scripted may be nil when no browser runtime
// is available; recipes requesting one then degrade to the plain provider.
func NewResolver(store *recipe.Store, plain, scripted dom.Provider, logger *slog.Logger) (*Resolver, error) {
	cache, err := lru.New[string, *RecipeAdapter](adapterCacheSize)
	if err != nil {
		return nil, err
	}
	return &Resolver{
		store:    store,
		plain:    plain,
		scripted: scripted,
		logger:   logger.With("component", "resolver"),
		cache:    cache,
	}, nil
}

// Resolve returns the adapter for (recipeName, siteURL). An empty recipeName
// auto-selects the best-matching recipe for the site. A named recipe that
// does not cover the site is a hard error, not a silent fallback.
func (r *Resolver) Resolve(recipeName, siteURL string) (SiteAdapter, error) {
	var (
		rcp *recipe.Recipe
		err error
	)
	if recipeName == "" {
		rcp, err = r.store.Match(siteURL)
	} else {
		rcp, err = r.store.ByName(recipeName)
		if err == nil && !rcp.MatchesSite(siteURL) {
			return nil, fmt.Errorf("recipe %q does not match site %q", recipeName, siteURL)
		}
	}
	if err != nil {
		return nil, err
	}

	key := rcp.Name + "|" + siteURL
	if cached, ok := r.cache.Get(key); ok {
		return cached, nil
	}

	a, err := New(rcp, siteURL, r.providerFor(rcp), r.logger)
	if err != nil {
		return nil, err
	}
	r.cache.Add(key, a)
	r.logger.Debug("adapter minted", "recipe", rcp.Name, "site", siteURL,
		"headless", rcp.Behavior.UseHeadlessBrowser)
	return a, nil
}

// Evict drops all cached adapters for a recipe, typically after the recipe
// file changed on disk.
func (r *Resolver) Evict(recipeName string) {
	r.store.Remove(recipeName)
	for _, key := range r.cache.Keys() {
		if strings.HasPrefix(key, recipeName+"|") {
			r.cache.Remove(key)
		}
	}
}

func (r *Resolver) providerFor(rcp *recipe.Recipe) dom.Provider {
	if rcp.Behavior.UseHeadlessBrowser && r.scripted != nil {
		return &dom.Fallback{Primary: r.scripted, Secondary: r.plain}
	}
	return r.plain
}
