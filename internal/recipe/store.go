package recipe

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
	"gopkg.in/yaml.v3"
)

// recipeCacheSize bounds the by-name cache. Entries are only evicted by
// explicit removal in practice; the bound is a safety net.
const recipeCacheSize = 256

// Store loads recipes from a directory and caches them by name. Recipes are
// immutable once loaded.
type Store struct {
	dir    string
	logger *slog.Logger

	mu      sync.RWMutex
	byName  *lru.Cache[string, *Recipe]
	loaded  []*Recipe
	scanned bool
}

func NewStore(dir string, logger *slog.Logger) (*Store, error) {
	cache, err := lru.New[string, *Recipe](recipeCacheSize)
	if err != nil {
		return nil, err
	}
	return &Store{
		dir:    dir,
		logger: logger.With("component", "recipe_store"),
		byName: cache,
	}, nil
}

// ByName returns the named recipe, loading the directory on first use.
func (s *Store) ByName(name string) (*Recipe, error) {
	if r, ok := s.byName.Get(name); ok {
		return r, nil
	}
	if err := s.ensureScanned(); err != nil {
		return nil, err
	}
	if r, ok := s.byName.Get(name); ok {
		return r, nil
	}
	return nil, fmt.Errorf("recipe %q not found", name)
}

// Match auto-selects a recipe for siteURL: exact host match first, then the
// universal wildcard, then subdomain wildcards.
func (s *Store) Match(siteURL string) (*Recipe, error) {
	if err := s.ensureScanned(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Recipe
	bestRank := -1
	for _, r := range s.loaded {
		if !r.MatchesSite(siteURL) {
			continue
		}
		if rank := r.matchRank(); rank > bestRank {
			best, bestRank = r, rank
		}
	}
	if best == nil {
		return nil, fmt.Errorf("no recipe matches site %q", siteURL)
	}
	return best, nil
}

// Remove evicts a recipe from the by-name cache. The next ByName reloads it
// from disk.
func (s *Store) Remove(name string) {
	s.byName.Remove(name)
	s.mu.Lock()
	s.scanned = false
	s.loaded = nil
	s.mu.Unlock()
}

func (s *Store) ensureScanned() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.scanned {
		return nil
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("read recipe dir: %w", err)
	}

	var loaded []*Recipe
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yaml" && ext != ".yml" && ext != ".json" {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		recipes, err := LoadFile(path)
		if err != nil {
			s.logger.Warn("skipping invalid recipe file", "path", path, "error", err)
			continue
		}
		loaded = append(loaded, recipes...)
	}

	for _, r := range loaded {
		s.byName.Add(r.Name, r)
	}
	s.loaded = loaded
	s.scanned = true
	s.logger.Info("recipes loaded", "count", len(loaded), "dir", s.dir)
	return nil
}

// recipeFile is the on-disk shape: either a single recipe or a collection.
type recipeFile struct {
	Recipes []*Recipe `yaml:"recipes" json:"recipes"`
}

// LoadFile parses one recipe file (YAML or JSON, single recipe or a
// {recipes: [...]} collection), validates every recipe, and compiles the
// transform chains.
func LoadFile(path string) ([]*Recipe, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read recipe file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	recipes, err := parse(data, ext == ".json")
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}

	for _, r := range recipes {
		if err := r.Validate(); err != nil {
			return nil, err
		}
		if err := r.compile(); err != nil {
			return nil, err
		}
	}
	return recipes, nil
}

func parse(data []byte, isJSON bool) ([]*Recipe, error) {
	var collection recipeFile
	if isJSON {
		if err := json.Unmarshal(data, &collection); err == nil && len(collection.Recipes) > 0 {
			return collection.Recipes, nil
		}
		var single Recipe
		if err := json.Unmarshal(data, &single); err != nil {
			return nil, err
		}
		return []*Recipe{&single}, nil
	}

	if err := yaml.Unmarshal(data, &collection); err == nil && len(collection.Recipes) > 0 {
		return collection.Recipes, nil
	}
	var single Recipe
	if err := yaml.Unmarshal(data, &single); err != nil {
		return nil, err
	}
	return []*Recipe{&single}, nil
}
