package crawler

import (
	"net/url"
	"strings"
)

// Page is one fetched response handed to an extraction strategy.
type Page struct {
	URL         *url.URL
	StatusCode  int
	ContentType string
	Body        []byte
}

func (p *Page) IsHTML() bool {
	return strings.Contains(p.ContentType, "text/html")
}

func (p *Page) IsJSON() bool {
	return strings.Contains(p.ContentType, "json")
}

// Candidate is a product record extracted from a page before it has
// been matched against the catalog. A missing price is permitted; a
// missing name discards the candidate upstream.
type Candidate struct {
	SKU         string
	Name        string
	Description string
	Price       *float64
	Currency    string
	Category    string
	Brand       string
	Colors      []string
	Sizes       []string
	Images      []string
	URL         string
	InStock     int
}

type ExtractResult struct {
	Products []Candidate
	Links    []string
}

// Strategy converts fetched pages into candidates and further links.
// One strategy is selected per crawl at detection time; behavior
// never switches per page.
type Strategy interface {
	Name() string
	Seeds(root *url.URL) []string
	Extract(page *Page) (*ExtractResult, error)
}

// normalizeLink absolutizes href against base, strips the fragment
// and rejects non-http schemes and cross-domain targets.
func normalizeLink(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") || strings.HasPrefix(href, "javascript:") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := base.ResolveReference(ref)
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return "", false
	}
	if !strings.EqualFold(abs.Host, base.Host) {
		return "", false
	}
	abs.Fragment = ""
	return abs.String(), true
}
