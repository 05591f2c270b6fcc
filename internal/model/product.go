package model

const (
	ProductStateActive   = 1
	ProductStateStale    = 2
	ProductStateDeferred = 3
)

const (
	StockUnknown = 0
	StockIn      = 1
	StockOut     = 2
)

// Product is the crawl-owned catalog record. Identity is stable
// across crawls ("sku:<sku>" or "url:<sha1>") and unique within a
// business. Products vanish from search by turning stale, never by
// deletion.
type Product struct {
	BusinessID   string   `json:"business_id"`
	Identity     string   `json:"identity"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Price        *float64 `json:"price"`
	Currency     string   `json:"currency"`
	Category     string   `json:"category"`
	Brand        string   `json:"brand"`
	Colors       []string `json:"colors"`
	Sizes        []string `json:"sizes"`
	Images       []string `json:"images"`
	URL          string   `json:"url"`
	InStock      int      `json:"in_stock"`
	State        int      `json:"state"`
	MissedCrawls int      `json:"missed_crawls"`
	ContentHash  string   `json:"content_hash"`
	LastSeenAt   int64    `json:"last_seen_at"`
	Ctime        int64    `json:"ctime"`
	Mtime        int64    `json:"mtime"`
}
