package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/dbutil"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
)

var businessFields = []string{"id", "name", "website_url", "platform", "tier", "state", "last_crawled_at", "ctime", "mtime"}

type BusinessRepo struct {
	db *sql.DB
}

func NewBusinessRepo(db *sql.DB) *BusinessRepo {
	return &BusinessRepo{db: db}
}

func (r *BusinessRepo) Create(ctx context.Context, biz *model.Business) error {
	data := map[string]interface{}{
		"id":              biz.ID,
		"name":            biz.Name,
		"website_url":     biz.WebsiteURL,
		"platform":        biz.Platform,
		"tier":            biz.Tier,
		"state":           biz.State,
		"last_crawled_at": biz.LastCrawledAt,
		"ctime":           biz.Ctime,
		"mtime":           biz.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("businesses", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	if _, err := r.db.ExecContext(ctx, sqlStr, args...); err != nil {
		if dbutil.IsConflict(err) {
			return appErr.ErrConflict
		}
		return err
	}
	return nil
}

func (r *BusinessRepo) GetByID(ctx context.Context, id string) (*model.Business, error) {
	where := map[string]interface{}{
		"id": id,
	}
	sqlStr, args, err := builder.BuildSelect("businesses", where, businessFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var biz model.Business
	if err := row.Scan(&biz.ID, &biz.Name, &biz.WebsiteURL, &biz.Platform, &biz.Tier, &biz.State, &biz.LastCrawledAt, &biz.Ctime, &biz.Mtime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &biz, nil
}

func (r *BusinessRepo) ListActive(ctx context.Context) ([]model.Business, error) {
	where := map[string]interface{}{
		"state":    model.BusinessStateActive,
		"_orderby": "ctime asc",
	}
	sqlStr, args, err := builder.BuildSelect("businesses", where, businessFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Business, 0)
	for rows.Next() {
		var biz model.Business
		if err := rows.Scan(&biz.ID, &biz.Name, &biz.WebsiteURL, &biz.Platform, &biz.Tier, &biz.State, &biz.LastCrawledAt, &biz.Ctime, &biz.Mtime); err != nil {
			return nil, err
		}
		items = append(items, biz)
	}
	return items, rows.Err()
}

// UpdateCrawlMeta records the detected platform and crawl completion
// time after a successful crawl.
func (r *BusinessRepo) UpdateCrawlMeta(ctx context.Context, id, platform string, crawledAt, mtime int64) error {
	where := map[string]interface{}{
		"id": id,
	}
	update := map[string]interface{}{
		"platform":        platform,
		"last_crawled_at": crawledAt,
		"mtime":           mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("businesses", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}

func (r *BusinessRepo) UpdateTier(ctx context.Context, id, tier string, mtime int64) error {
	where := map[string]interface{}{
		"id": id,
	}
	update := map[string]interface{}{
		"tier":  tier,
		"mtime": mtime,
	}
	sqlStr, args, err := builder.BuildUpdate("businesses", where, update)
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	result, err := r.db.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
