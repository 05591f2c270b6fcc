package model

// IndexEntry is the derived, indexer-owned projection of a Product:
// the embedding vector plus normalized attributes for hard filtering.
// ContentHash guards freshness against the owning Product.
type IndexEntry struct {
	BusinessID  string    `json:"business_id"`
	Identity    string    `json:"identity"`
	Embedding   []float32 `json:"embedding"`
	ContentHash string    `json:"content_hash"`
	Price       *float64  `json:"price"`
	Category    string    `json:"category"`
	Colors      []string  `json:"colors"`
	Sizes       []string  `json:"sizes"`
	InStock     int       `json:"in_stock"`
	Mtime       int64     `json:"mtime"`
}
