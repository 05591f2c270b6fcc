package crawler

import (
	"bytes"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Card selectors tried in order; the first that matches anything on
// the page wins. Covers WooCommerce and the common theme conventions.
var productCardSelectors = []string{
	".product",
	".product-item",
	".product-card",
	".woocommerce-loop-product",
	"li.product",
	"[itemtype*='Product']",
	"[data-product-id]",
}

var nameSelectors = []string{
	".product-title",
	".product-name",
	".woocommerce-loop-product__title",
	"h1", "h2", "h3",
	"a[title]",
}

var priceSelectors = []string{
	".price .amount",
	".price",
	".product-price",
	"[itemprop='price']",
	"[data-price]",
}

var imageSelectors = []string{
	"img[data-src]",
	"img[src]",
}

var priceTextPattern = regexp.MustCompile(`([$€£])\s*([0-9][0-9.,]*)`)

// genericStrategy extracts product cards from arbitrary storefront
// HTML with selector heuristics, and follows same-domain links for
// the BFS frontier.
type genericStrategy struct{}

func NewGenericStrategy() Strategy {
	return &genericStrategy{}
}

func (s *genericStrategy) Name() string {
	return "generic"
}

func (s *genericStrategy) Seeds(root *url.URL) []string {
	return []string{root.String()}
}

func (s *genericStrategy) Extract(page *Page) (*ExtractResult, error) {
	if !page.IsHTML() {
		return &ExtractResult{}, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	out := &ExtractResult{
		Products: extractCards(doc, page.URL),
		Links:    collectLinks(doc, page.URL),
	}
	return out, nil
}

func collectLinks(doc *goquery.Document, base *url.URL) []string {
	seen := map[string]bool{}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		link, ok := normalizeLink(base, href)
		if !ok || seen[link] {
			return
		}
		seen[link] = true
		links = append(links, link)
	})
	return links
}

func extractCards(doc *goquery.Document, base *url.URL) []Candidate {
	var cards *goquery.Selection
	for _, selector := range productCardSelectors {
		found := doc.Find(selector)
		if found.Length() > 0 {
			cards = found
			break
		}
	}
	if cards == nil {
		if c, ok := extractDetailPage(doc, base); ok {
			return []Candidate{c}
		}
		return nil
	}
	var out []Candidate
	cards.Each(func(_ int, card *goquery.Selection) {
		c, ok := candidateFromCard(card, base)
		if ok {
			out = append(out, c)
		}
	})
	return out
}

func candidateFromCard(card *goquery.Selection, base *url.URL) (Candidate, bool) {
	name := firstText(card, nameSelectors)
	if name == "" {
		return Candidate{}, false
	}
	c := Candidate{Name: name}
	if priceText := firstText(card, priceSelectors); priceText != "" {
		if price, currency, ok := parsePriceText(priceText); ok {
			c.Price = &price
			c.Currency = currency
		}
	}
	if href, ok := card.Find("a[href]").First().Attr("href"); ok {
		if link, ok := normalizeLink(base, href); ok {
			c.URL = link
		}
	}
	if c.URL == "" {
		c.URL = base.String()
	}
	for _, selector := range imageSelectors {
		card.Find(selector).EachWithBreak(func(_ int, img *goquery.Selection) bool {
			src, _ := img.Attr("data-src")
			if src == "" {
				src, _ = img.Attr("src")
			}
			if link, ok := normalizeLink(base, src); ok {
				c.Images = append(c.Images, link)
				return false
			}
			return true
		})
		if len(c.Images) > 0 {
			break
		}
	}
	if sku, ok := card.Attr("data-product-id"); ok {
		c.SKU = strings.TrimSpace(sku)
	}
	return c, true
}

// extractDetailPage handles single-product pages that have no card
// markup, detected via open graph metadata.
func extractDetailPage(doc *goquery.Document, base *url.URL) (Candidate, bool) {
	ogType, _ := doc.Find("meta[property='og:type']").Attr("content")
	if !strings.Contains(strings.ToLower(ogType), "product") {
		return Candidate{}, false
	}
	name, _ := doc.Find("meta[property='og:title']").Attr("content")
	name = strings.TrimSpace(name)
	if name == "" {
		name = strings.TrimSpace(doc.Find("h1").First().Text())
	}
	if name == "" {
		return Candidate{}, false
	}
	c := Candidate{Name: name, URL: base.String()}
	if desc, ok := doc.Find("meta[property='og:description']").Attr("content"); ok {
		c.Description = strings.TrimSpace(desc)
	}
	if img, ok := doc.Find("meta[property='og:image']").Attr("content"); ok {
		if link, okLink := normalizeLink(base, img); okLink {
			c.Images = append(c.Images, link)
		} else if strings.HasPrefix(img, "http") {
			c.Images = append(c.Images, img)
		}
	}
	if amount, ok := doc.Find("meta[property='product:price:amount']").Attr("content"); ok {
		if price, err := strconv.ParseFloat(strings.TrimSpace(amount), 64); err == nil {
			c.Price = &price
		}
	}
	if c.Price == nil {
		if price, currency, ok := parsePriceText(doc.Text()); ok {
			c.Price = &price
			c.Currency = currency
		}
	}
	return c, true
}

func firstText(sel *goquery.Selection, selectors []string) string {
	for _, s := range selectors {
		found := sel.Find(s).First()
		if found.Length() == 0 {
			continue
		}
		text := strings.TrimSpace(found.Text())
		if text == "" {
			text, _ = found.Attr("title")
			text = strings.TrimSpace(text)
		}
		if text != "" {
			return strings.Join(strings.Fields(text), " ")
		}
	}
	return ""
}

func parsePriceText(text string) (float64, string, bool) {
	m := priceTextPattern.FindStringSubmatch(text)
	if m == nil {
		return 0, "", false
	}
	raw := strings.ReplaceAll(m[2], ",", "")
	price, err := strconv.ParseFloat(strings.TrimRight(raw, "."), 64)
	if err != nil || price <= 0 {
		return 0, "", false
	}
	currency := "USD"
	switch m[1] {
	case "€":
		currency = "EUR"
	case "£":
		currency = "GBP"
	}
	return price, currency, true
}
