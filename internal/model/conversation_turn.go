package model

// ConversationTurn is an append-only log record of one answered
// question, consumed by analytics outside this core.
type ConversationTurn struct {
	ID         string   `json:"id"`
	BusinessID string   `json:"business_id"`
	Question   string   `json:"question"`
	Answer     string   `json:"answer"`
	ProductIDs []string `json:"product_ids"`
	Ctime      int64    `json:"ctime"`
}
