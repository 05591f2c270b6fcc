package search

import (
	"math"
	"sort"
	"strings"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
)

// Scored pairs an index entry with its final ranking score.
type Scored struct {
	Entry model.IndexEntry
	Score float64
}

// ApplyFilters keeps only the entries satisfying every extracted
// constraint. A price filter excludes entries without a price.
func ApplyFilters(entries []model.IndexEntry, f Filters) []model.IndexEntry {
	if f.Empty() {
		return entries
	}
	out := make([]model.IndexEntry, 0, len(entries))
	for _, e := range entries {
		if !matchesFilters(e, f) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func matchesFilters(e model.IndexEntry, f Filters) bool {
	if f.PriceMin != nil || f.PriceMax != nil {
		if e.Price == nil {
			return false
		}
		if f.PriceMin != nil && *e.Price < *f.PriceMin {
			return false
		}
		if f.PriceMax != nil && *e.Price > *f.PriceMax {
			return false
		}
	}
	if f.Color != "" && !containsFold(e.Colors, f.Color) {
		return false
	}
	if f.Size != "" && !containsFold(e.Sizes, f.Size) {
		return false
	}
	if f.Category != "" && !strings.EqualFold(e.Category, f.Category) {
		return false
	}
	if f.InStockOnly && e.InStock != model.StockIn {
		return false
	}
	return true
}

func containsFold(values []string, want string) bool {
	for _, v := range values {
		if strings.EqualFold(strings.TrimSpace(v), want) {
			return true
		}
	}
	return false
}

// Rank orders entries by similarity to the query vector, discounting
// out-of-stock entries by stockPenalty. Cosine is shifted into [0, 1]
// before the discount so the penalty always pushes down, even at
// negative similarity or when no query vector is available. Ties
// break on recency, then identity for a stable order.
func Rank(entries []model.IndexEntry, query []float32, k int, stockPenalty float64) []Scored {
	scored := make([]Scored, 0, len(entries))
	for _, e := range entries {
		score := (cosineSimilarity(query, e.Embedding) + 1) / 2
		if e.InStock == model.StockOut && stockPenalty > 0 {
			score *= stockPenalty
		}
		scored = append(scored, Scored{Entry: e, Score: score})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if scored[i].Entry.Mtime != scored[j].Entry.Mtime {
			return scored[i].Entry.Mtime > scored[j].Entry.Mtime
		}
		return scored[i].Entry.Identity < scored[j].Entry.Identity
	})
	if k > 0 && len(scored) > k {
		scored = scored[:k]
	}
	return scored
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
