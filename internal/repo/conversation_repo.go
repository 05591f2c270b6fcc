package repo

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

// Append writes one turn to the log. The log is append-only; there is
// no update or delete path.
func (r *ConversationRepo) Append(ctx context.Context, turn *model.ConversationTurn) error {
	const query = `
		INSERT INTO conversation_turns (id, business_id, question, answer, product_ids, ctime)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := r.db.ExecContext(ctx, query,
		turn.ID, turn.BusinessID, turn.Question, turn.Answer, pq.Array(turn.ProductIDs), turn.Ctime)
	return err
}

func (r *ConversationRepo) ListRecent(ctx context.Context, businessID string, limit int) ([]model.ConversationTurn, error) {
	const query = `
		SELECT id, business_id, question, answer, product_ids, ctime
		FROM conversation_turns
		WHERE business_id = $1
		ORDER BY ctime DESC
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, businessID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.ConversationTurn, 0)
	for rows.Next() {
		var turn model.ConversationTurn
		if err := rows.Scan(&turn.ID, &turn.BusinessID, &turn.Question, &turn.Answer, pq.Array(&turn.ProductIDs), &turn.Ctime); err != nil {
			return nil, err
		}
		items = append(items, turn)
	}
	return items, rows.Err()
}
