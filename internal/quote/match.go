package quote

import (
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/Alserial/VoiceRAG/internal/models"
)

// matchThreshold is the minimum similarity for a product match. Users
// mis-state product names constantly over voice, so the bar is low; substring
// containment boosts the score so "Produc A" still lands on "Product A".
const matchThreshold = 0.3

const substringScore = 0.7

// similarity is a normalized edit-distance ratio in [0,1].
func similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	max := len([]rune(a))
	if n := len([]rune(b)); n > max {
		max = n
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1 - float64(d)/float64(max)
}

// MatchProduct finds the best catalog product for what the user said.
// Returns the canonical product name, or false when nothing clears the
// threshold.
func MatchProduct(input string, products []models.Product) (string, bool) {
	input = strings.TrimSpace(input)
	if input == "" || len(products) == 0 {
		return "", false
	}

	inLower := strings.ToLower(input)
	best := ""
	bestScore := 0.0

	for _, p := range products {
		if p.Name == "" {
			continue
		}
		score := similarity(input, p.Name)
		nameLower := strings.ToLower(p.Name)
		if strings.Contains(nameLower, inLower) || strings.Contains(inLower, nameLower) {
			if score < substringScore {
				score = substringScore
			}
		}
		if score > bestScore {
			bestScore = score
			best = p.Name
		}
	}

	if bestScore < matchThreshold {
		return "", false
	}
	return best, true
}

// NormalizeItems fuzzy-matches every item's product against the catalog,
// replacing matched names with their canonical form. Unmatched names are
// kept as spoken so the caller can flag them.
func NormalizeItems(items []Item, products []models.Product) (out []Item, unmatched []string) {
	for _, it := range items {
		if name, ok := MatchProduct(it.ProductPackage, products); ok {
			it.ProductPackage = name
		} else if strings.TrimSpace(it.ProductPackage) != "" && len(products) > 0 {
			unmatched = append(unmatched, it.ProductPackage)
		}
		out = append(out, it)
	}
	return out, unmatched
}
