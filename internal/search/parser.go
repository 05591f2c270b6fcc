package search

import (
	"regexp"
	"strconv"
	"strings"
)

// Filters are the hard constraints lifted out of a question. They
// are applied conjunctively before any similarity ranking.
type Filters struct {
	PriceMin    *float64 `json:"price_min,omitempty"`
	PriceMax    *float64 `json:"price_max,omitempty"`
	Color       string   `json:"color,omitempty"`
	Size        string   `json:"size,omitempty"`
	Category    string   `json:"category,omitempty"`
	InStockOnly bool     `json:"in_stock_only,omitempty"`
}

func (f Filters) Empty() bool {
	return f.PriceMin == nil && f.PriceMax == nil && f.Color == "" &&
		f.Size == "" && f.Category == "" && !f.InStockOnly
}

// Parsed is the structured reading of one user question.
type Parsed struct {
	Filters       Filters
	Intents       []string
	SemanticQuery string
}

const (
	IntentSearch    = "search"
	IntentCompare   = "compare"
	IntentRecommend = "recommend"
)

var knownColors = []string{
	"black", "white", "red", "blue", "green", "yellow", "pink",
	"purple", "brown", "gray", "grey", "navy", "beige", "orange",
	"tan", "cream", "gold", "silver", "maroon", "teal", "olive",
	"burgundy", "khaki", "ivory",
}

var (
	priceMaxPattern     = regexp.MustCompile(`(?i)\b(?:under|below|less than|at most|up to|cheaper than|max(?:imum)?(?: of)?)\s*\$?\s*(\d+(?:\.\d{1,2})?)`)
	priceMinPattern     = regexp.MustCompile(`(?i)\b(?:over|above|more than|at least|min(?:imum)?(?: of)?|starting at)\s*\$?\s*(\d+(?:\.\d{1,2})?)`)
	priceBetweenPattern = regexp.MustCompile(`(?i)\bbetween\s*\$?\s*(\d+(?:\.\d{1,2})?)\s*(?:and|-|to)\s*\$?\s*(\d+(?:\.\d{1,2})?)`)
	priceRangePattern   = regexp.MustCompile(`(?i)\$\s*(\d+(?:\.\d{1,2})?)\s*(?:-|to)\s*\$?\s*(\d+(?:\.\d{1,2})?)`)
	sizeWordPattern     = regexp.MustCompile(`(?i)\bsize\s+([a-z0-9.]+)\b`)
	sizeTokenPattern    = regexp.MustCompile(`(?i)\b(xs|xl|xxl|xxxl|small|medium|large|extra small|extra large)\b`)
	inStockPattern      = regexp.MustCompile(`(?i)\b(?:in stock|available(?: now)?|you have)\b`)
)

// ParseQuestion extracts filters and intents from a free-form
// question. categoryVocab comes from the business's own index, so
// category matching never guesses beyond what the catalog carries.
func ParseQuestion(question string, categoryVocab []string) Parsed {
	p := Parsed{SemanticQuery: question}
	lower := strings.ToLower(question)

	residual := question
	if m := priceBetweenPattern.FindStringSubmatch(residual); m != nil {
		lo, hi := parseBound(m[1]), parseBound(m[2])
		if lo != nil && hi != nil && *lo > *hi {
			lo, hi = hi, lo
		}
		p.Filters.PriceMin, p.Filters.PriceMax = lo, hi
		residual = priceBetweenPattern.ReplaceAllString(residual, " ")
	} else if m := priceRangePattern.FindStringSubmatch(residual); m != nil {
		lo, hi := parseBound(m[1]), parseBound(m[2])
		if lo != nil && hi != nil && *lo > *hi {
			lo, hi = hi, lo
		}
		p.Filters.PriceMin, p.Filters.PriceMax = lo, hi
		residual = priceRangePattern.ReplaceAllString(residual, " ")
	} else {
		if m := priceMaxPattern.FindStringSubmatch(residual); m != nil {
			p.Filters.PriceMax = parseBound(m[1])
			residual = priceMaxPattern.ReplaceAllString(residual, " ")
		}
		if m := priceMinPattern.FindStringSubmatch(residual); m != nil {
			p.Filters.PriceMin = parseBound(m[1])
			residual = priceMinPattern.ReplaceAllString(residual, " ")
		}
	}

	if inStockPattern.MatchString(residual) {
		p.Filters.InStockOnly = true
		residual = inStockPattern.ReplaceAllString(residual, " ")
	}

	for _, color := range knownColors {
		if containsWord(lower, color) {
			p.Filters.Color = color
			break
		}
	}

	if m := sizeWordPattern.FindStringSubmatch(residual); m != nil {
		p.Filters.Size = normalizeSize(m[1])
	} else if m := sizeTokenPattern.FindStringSubmatch(residual); m != nil {
		p.Filters.Size = normalizeSize(m[1])
	}

	p.Filters.Category = matchCategory(lower, categoryVocab)
	p.Intents = DetectIntents(lower)

	// Color and size words stay in the semantic query; they carry
	// meaning for the embedding. Price and stock phrasing does not.
	residual = strings.Join(strings.Fields(residual), " ")
	if residual != "" {
		p.SemanticQuery = residual
	}
	return p
}

// DetectIntents classifies the question. Search is always present as
// the fallback retrieval intent.
func DetectIntents(lower string) []string {
	var intents []string
	if strings.Contains(lower, "compare") || strings.Contains(lower, " vs ") ||
		strings.Contains(lower, "versus") || strings.Contains(lower, "difference between") {
		intents = append(intents, IntentCompare)
	}
	if strings.Contains(lower, "recommend") || strings.Contains(lower, "suggest") ||
		strings.Contains(lower, "which one") || strings.Contains(lower, "should i") ||
		strings.Contains(lower, "best ") {
		intents = append(intents, IntentRecommend)
	}
	intents = append(intents, IntentSearch)
	return intents
}

func matchCategory(lower string, vocab []string) string {
	best := ""
	for _, cat := range vocab {
		c := strings.ToLower(strings.TrimSpace(cat))
		if c == "" {
			continue
		}
		if containsWord(lower, c) || containsWord(lower, singular(c)) {
			if len(c) > len(best) {
				best = cat
			}
		}
	}
	return best
}

func singular(s string) string {
	if len(s) > 3 && strings.HasSuffix(s, "s") {
		return strings.TrimSuffix(s, "s")
	}
	return s
}

func containsWord(haystack, word string) bool {
	idx := 0
	for {
		i := strings.Index(haystack[idx:], word)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isWordChar(haystack[i-1])
		afterIdx := i + len(word)
		after := afterIdx >= len(haystack) || !isWordChar(haystack[afterIdx])
		if before && after {
			return true
		}
		idx = i + 1
	}
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}

func normalizeSize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	switch s {
	case "extra small":
		return "xs"
	case "small":
		return "s"
	case "medium":
		return "m"
	case "large":
		return "l"
	case "extra large":
		return "xl"
	}
	return s
}

func parseBound(s string) *float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &v
}
