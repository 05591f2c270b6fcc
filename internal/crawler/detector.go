package crawler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
)

// Detect probes the site once to choose the extraction strategy for
// a whole crawl. A parseable /products.json marks a Shopify store;
// anything else falls back to generic HTML extraction.
func Detect(ctx context.Context, f *Fetcher, root *url.URL) (Strategy, string) {
	probe := fmt.Sprintf("%s://%s/products.json?limit=1", root.Scheme, root.Host)
	page, err := f.Fetch(ctx, probe)
	if err == nil && looksLikeShopifyListing(page.Body) {
		return NewShopifyStrategy(), model.PlatformShopify
	}
	return NewGenericStrategy(), model.PlatformGeneric
}

func looksLikeShopifyListing(body []byte) bool {
	var probe struct {
		Products *json.RawMessage `json:"products"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Products != nil
}
