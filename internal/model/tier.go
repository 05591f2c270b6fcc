package model

// Tier is a named quota profile. Tiers are configuration, not rows:
// a business stores the tier name and limits are resolved at runtime.
type Tier struct {
	Name             string `json:"name"`
	MaxProducts      int    `json:"max_products"`
	MaxConversations int    `json:"max_conversations"`
	ProductsPerQuery int    `json:"products_per_query"`
}

type UsageReport struct {
	TierName          string `json:"tier_name"`
	ProductLimit      int    `json:"product_limit"`
	ProductsIndexed   int    `json:"products_indexed"`
	ConversationLimit int    `json:"conversation_limit"`
	ConversationsUsed int    `json:"conversations_used_this_period"`
	ProductsExceeded  bool   `json:"products_exceeded"`
	ConversationsOver bool   `json:"conversations_exceeded"`
}
