// Package serialize turns a job's normalized products into CSV artifacts: one
// parent file with a row per product, one variation file with a row per
// purchasable option combination.
package serialize

import (
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/maxfell/recipe-scraper/internal/models"
)

// Outputs describes the artifacts generated for one job.
type Outputs struct {
	ParentArtifact    string
	VariationArtifact string
	VariationCount    int
}

var parentHeader = []string{
	"id", "sku", "title", "slug", "price", "stock", "product_type",
	"category", "brand", "description", "short_description", "images",
	"attributes", "source_url", "confidence", "normalized_at",
}

var variationHeader = []string{
	"parent_sku", "sku", "price", "stock", "image", "assignments",
}

// CSVGenerator writes one parent and one variation CSV per job under a base
// output directory.
type CSVGenerator struct {
	dir    string
	logger *slog.Logger
}

func NewCSVGenerator(dir string, logger *slog.Logger) *CSVGenerator {
	return &CSVGenerator{
		dir:    dir,
		logger: logger.With("component", "serializer"),
	}
}

// GenerateOutputs writes both artifacts for a job. The variation file is only
// created when at least one product is variable.
func (g *CSVGenerator) GenerateOutputs(jobID string, products []*models.NormalizedProduct) (*Outputs, error) {
	if err := os.MkdirAll(g.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory %q: %w", g.dir, err)
	}

	out := &Outputs{
		ParentArtifact: filepath.Join(g.dir, jobID+"-products.csv"),
	}

	if err := g.writeParents(out.ParentArtifact, products); err != nil {
		return nil, err
	}

	variationCount := 0
	for _, p := range products {
		variationCount += len(p.Variations)
	}
	if variationCount > 0 {
		out.VariationArtifact = filepath.Join(g.dir, jobID+"-variations.csv")
		if err := g.writeVariations(out.VariationArtifact, products); err != nil {
			return nil, err
		}
		out.VariationCount = variationCount
	}

	g.logger.Info("artifacts generated",
		"job_id", jobID, "products", len(products), "variations", variationCount)
	return out, nil
}

func (g *CSVGenerator) writeParents(path string, products []*models.NormalizedProduct) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create parent csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(parentHeader); err != nil {
		return fmt.Errorf("write parent header: %w", err)
	}

	for _, p := range products {
		record := []string{
			p.ID,
			p.SKU,
			p.Title,
			p.Slug,
			p.Price,
			string(p.Stock),
			string(p.ProductType),
			p.Category,
			p.Brand,
			p.Description,
			p.ShortDescription,
			strings.Join(p.Images, "|"),
			encodeAttributes(p.Attributes),
			p.SourceURL,
			strconv.FormatFloat(p.Confidence, 'f', 2, 64),
			p.NormalizedAt.Format(time.RFC3339),
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("write parent record: %w", err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush parent csv: %w", err)
	}
	return nil
}

func (g *CSVGenerator) writeVariations(path string, products []*models.NormalizedProduct) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create variation csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(variationHeader); err != nil {
		return fmt.Errorf("write variation header: %w", err)
	}

	for _, p := range products {
		for _, v := range p.Variations {
			record := []string{
				p.SKU,
				v.SKU,
				v.Price,
				string(v.Stock),
				v.Image,
				encodeAssignments(v.Assignments),
			}
			if err := w.Write(record); err != nil {
				return fmt.Errorf("write variation record: %w", err)
			}
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush variation csv: %w", err)
	}
	return nil
}

// encodeAttributes renders attributes as "key:v1,v2;key2:v3" with keys sorted
// for stable output.
func encodeAttributes(attributes map[string][]string) string {
	if len(attributes) == 0 {
		return ""
	}
	keys := make([]string, 0, len(attributes))
	for k := range attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+strings.Join(attributes[k], ","))
	}
	return strings.Join(parts, ";")
}

func encodeAssignments(assignments map[string]string) string {
	if len(assignments) == 0 {
		return ""
	}
	keys := make([]string, 0, len(assignments))
	for k := range assignments {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+assignments[k])
	}
	return strings.Join(parts, ";")
}
