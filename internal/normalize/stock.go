package normalize

import (
	"strings"
	"time"

	"github.com/maxfell/recipe-scraper/internal/models"
)

// now is swappable in tests; everything else in the package is deterministic.
var now = time.Now

// StockStatus canonicalizes free-form availability text. Tokens containing
// "out"/"unavailable" or a literal "0" mean out of stock; anything else,
// including ambiguous or empty text, defaults to in stock.
func StockStatus(text string) models.StockStatus {
	folded := strings.ToLower(CleanText(text))
	if folded == "" {
		return models.StockIn
	}
	for _, token := range strings.Fields(folded) {
		token = strings.Trim(token, ".,;:!()")
		if strings.Contains(token, "out") || strings.Contains(token, "unavailable") || token == "0" {
			return models.StockOut
		}
		// Hebrew storefronts mark sold-out items with אזל.
		if strings.Contains(token, "אזל") {
			return models.StockOut
		}
	}
	return models.StockIn
}

// NormalizePrice cleans a scraped price string without reinterpreting locale
// formats: decode, trim, collapse whitespace. Numeric parsing is left to
// downstream consumers that know the site's locale.
func NormalizePrice(text string) string {
	return CleanText(text)
}
