package model

const (
	BusinessStateActive   = 1
	BusinessStateDisabled = 2
)

const (
	PlatformUnknown = ""
	PlatformShopify = "shopify"
	PlatformGeneric = "generic"
)

type Business struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	WebsiteURL    string `json:"website_url"`
	Platform      string `json:"platform"`
	Tier          string `json:"tier"`
	State         int    `json:"state"`
	LastCrawledAt int64  `json:"last_crawled_at"`
	Ctime         int64  `json:"ctime"`
	Mtime         int64  `json:"mtime"`
}
