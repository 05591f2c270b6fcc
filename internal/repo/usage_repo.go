package repo

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
)

const (
	usageColumnConversations   = "conversations"
	usageColumnProductsIndexed = "products_indexed"
)

type UsageRepo struct {
	db *sql.DB
}

func NewUsageRepo(db *sql.DB) *UsageRepo {
	return &UsageRepo{db: db}
}

// IncrementIfBelow atomically adds amount to the counter column for
// (business, period) as long as the result stays within limit. The
// limit predicate lives in the SQL itself, so concurrent increments
// never overshoot. A limit < 0 means unmetered. Returns false when
// the quota would be exceeded.
func (r *UsageRepo) IncrementIfBelow(ctx context.Context, businessID, period, column string, amount, limit int, now int64) (bool, error) {
	if column != usageColumnConversations && column != usageColumnProductsIndexed {
		return false, fmt.Errorf("unknown usage column: %s", column)
	}
	// The conflict predicate only guards updates; a fresh period row
	// must be checked before insert.
	if limit >= 0 && amount > limit {
		return false, nil
	}
	query := fmt.Sprintf(`
		INSERT INTO usage_counters (business_id, period, %[1]s, mtime)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (business_id, period) DO UPDATE SET
			%[1]s = usage_counters.%[1]s + $3,
			mtime = $4
		WHERE $5 < 0 OR usage_counters.%[1]s + $3 <= $5
	`, column)
	result, err := r.db.ExecContext(ctx, query, businessID, period, amount, now, limit)
	if err != nil {
		return false, err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if affected == 0 {
		return false, nil
	}
	return true, nil
}

func (r *UsageRepo) Get(ctx context.Context, businessID, period string) (*model.UsageCounter, error) {
	const query = `
		SELECT business_id, period, conversations, products_indexed, mtime
		FROM usage_counters
		WHERE business_id = $1 AND period = $2
	`
	row := r.db.QueryRowContext(ctx, query, businessID, period)
	var counter model.UsageCounter
	if err := row.Scan(&counter.BusinessID, &counter.Period, &counter.Conversations, &counter.ProductsIndexed, &counter.Mtime); err != nil {
		if err == sql.ErrNoRows {
			// New period rows start from zero; absence is not an error.
			return &model.UsageCounter{BusinessID: businessID, Period: period}, nil
		}
		return nil, err
	}
	return &counter, nil
}
