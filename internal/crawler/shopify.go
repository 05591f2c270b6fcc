package crawler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
)

const shopifyPageSize = 250

type shopifyProduct struct {
	ID          int64            `json:"id"`
	Title       string           `json:"title"`
	Handle      string           `json:"handle"`
	BodyHTML    string           `json:"body_html"`
	ProductType string           `json:"product_type"`
	Vendor      string           `json:"vendor"`
	Variants    []shopifyVariant `json:"variants"`
	Images      []shopifyImage   `json:"images"`
	Options     []shopifyOption  `json:"options"`
}

type shopifyVariant struct {
	SKU       string      `json:"sku"`
	Price     json.Number `json:"price"`
	Available bool        `json:"available"`
	Option1   string      `json:"option1"`
	Option2   string      `json:"option2"`
	Option3   string      `json:"option3"`
}

type shopifyImage struct {
	Src string `json:"src"`
}

type shopifyOption struct {
	Name     string `json:"name"`
	Position int    `json:"position"`
}

type shopifyListing struct {
	Products []shopifyProduct `json:"products"`
}

// shopifyStrategy walks the public products.json listing instead of
// HTML pages. Each listing page links the next one until a short page
// ends the walk.
type shopifyStrategy struct{}

func NewShopifyStrategy() Strategy {
	return &shopifyStrategy{}
}

func (s *shopifyStrategy) Name() string {
	return "shopify"
}

func (s *shopifyStrategy) Seeds(root *url.URL) []string {
	return []string{listingURL(root, 1)}
}

func listingURL(root *url.URL, page int) string {
	return fmt.Sprintf("%s://%s/products.json?limit=%d&page=%d", root.Scheme, root.Host, shopifyPageSize, page)
}

func (s *shopifyStrategy) Extract(page *Page) (*ExtractResult, error) {
	var listing shopifyListing
	if err := json.Unmarshal(page.Body, &listing); err != nil {
		return nil, fmt.Errorf("decode products.json: %w", err)
	}
	out := &ExtractResult{}
	for _, sp := range listing.Products {
		c, ok := shopifyCandidate(page.URL, sp)
		if !ok {
			continue
		}
		out.Products = append(out.Products, c)
	}
	if len(listing.Products) == shopifyPageSize {
		out.Links = append(out.Links, listingURL(page.URL, currentListingPage(page.URL)+1))
	}
	return out, nil
}

func currentListingPage(u *url.URL) int {
	n, err := strconv.Atoi(u.Query().Get("page"))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

func shopifyCandidate(base *url.URL, sp shopifyProduct) (Candidate, bool) {
	name := strings.TrimSpace(sp.Title)
	if name == "" {
		return Candidate{}, false
	}
	c := Candidate{
		Name:        name,
		Description: stripHTML(sp.BodyHTML, 500),
		Category:    strings.TrimSpace(sp.ProductType),
		Brand:       strings.TrimSpace(sp.Vendor),
		Currency:    "USD",
		URL:         fmt.Sprintf("%s://%s/products/%s", base.Scheme, base.Host, sp.Handle),
	}
	if sku := firstVariantSKU(sp.Variants); sku != "" {
		c.SKU = sku
	} else if sp.ID != 0 {
		c.SKU = strconv.FormatInt(sp.ID, 10)
	}
	if price, ok := minVariantPrice(sp.Variants); ok {
		c.Price = &price
	}
	c.InStock = model.StockOut
	for _, v := range sp.Variants {
		if v.Available {
			c.InStock = model.StockIn
			break
		}
	}
	for _, img := range sp.Images {
		if img.Src != "" {
			c.Images = append(c.Images, img.Src)
		}
	}
	c.Colors, c.Sizes = classifyOptions(sp)
	return c, true
}

func firstVariantSKU(variants []shopifyVariant) string {
	for _, v := range variants {
		if sku := strings.TrimSpace(v.SKU); sku != "" {
			return sku
		}
	}
	return ""
}

func minVariantPrice(variants []shopifyVariant) (float64, bool) {
	found := false
	min := 0.0
	for _, v := range variants {
		p, err := v.Price.Float64()
		if err != nil {
			continue
		}
		if !found || p < min {
			min = p
			found = true
		}
	}
	return min, found
}

// classifyOptions sorts variant option values into colors and sizes.
// An option whose values carry digits, or whose declared name is
// "size", is a size axis; everything else is treated as color.
func classifyOptions(sp shopifyProduct) (colors []string, sizes []string) {
	byPosition := map[int]string{}
	for _, opt := range sp.Options {
		byPosition[opt.Position] = strings.ToLower(strings.TrimSpace(opt.Name))
	}
	colorSet := map[string]bool{}
	sizeSet := map[string]bool{}
	for _, v := range sp.Variants {
		for pos, val := range []string{1: v.Option1, 2: v.Option2, 3: v.Option3} {
			val = strings.TrimSpace(val)
			if val == "" || strings.EqualFold(val, "default title") {
				continue
			}
			if isSizeValue(val) || strings.Contains(byPosition[pos], "size") {
				if !sizeSet[val] {
					sizeSet[val] = true
					sizes = append(sizes, val)
				}
			} else {
				lower := strings.ToLower(val)
				if !colorSet[lower] {
					colorSet[lower] = true
					colors = append(colors, lower)
				}
			}
		}
	}
	return colors, sizes
}

func isSizeValue(val string) bool {
	for _, r := range val {
		if unicode.IsDigit(r) {
			return true
		}
	}
	switch strings.ToUpper(val) {
	case "XS", "S", "M", "L", "XL", "XXL", "XXXL", "OS":
		return true
	}
	return false
}

func stripHTML(s string, max int) string {
	if strings.TrimSpace(s) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader([]byte(s)))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if max > 0 && len(text) > max {
		text = text[:max]
	}
	return text
}
