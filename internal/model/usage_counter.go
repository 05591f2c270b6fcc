package model

type UsageCounter struct {
	BusinessID      string `json:"business_id"`
	Period          string `json:"period"`
	Conversations   int    `json:"conversations"`
	ProductsIndexed int    `json:"products_indexed"`
	Mtime           int64  `json:"mtime"`
}
