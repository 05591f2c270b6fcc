package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/dbutil"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
)

var crawlJobFields = []string{
	"id", "business_id", "status", "pages_visited",
	"products_created", "products_updated", "products_unchanged", "products_retired", "products_deferred",
	"error_count", "started_at", "finished_at", "ctime",
}

type CrawlJobRepo struct {
	db *sql.DB
}

func NewCrawlJobRepo(db *sql.DB) *CrawlJobRepo {
	return &CrawlJobRepo{db: db}
}

func (r *CrawlJobRepo) Create(ctx context.Context, job *model.CrawlJob) error {
	data := map[string]interface{}{
		"id":                 job.ID,
		"business_id":        job.BusinessID,
		"status":             job.Status,
		"pages_visited":      job.PagesVisited,
		"products_created":   job.ProductsCreated,
		"products_updated":   job.ProductsUpdated,
		"products_unchanged": job.ProductsUnchanged,
		"products_retired":   job.ProductsRetired,
		"products_deferred":  job.ProductsDeferred,
		"error_count":        job.ErrorCount,
		"started_at":         job.StartedAt,
		"finished_at":        job.FinishedAt,
		"ctime":              job.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("crawl_jobs", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// Update rewrites a job's mutable counters and status. Terminal rows
// are immutable history and are never touched again.
func (r *CrawlJobRepo) Update(ctx context.Context, job *model.CrawlJob) error {
	const query = `
		UPDATE crawl_jobs SET
			status = $2, pages_visited = $3, products_created = $4, products_updated = $5,
			products_unchanged = $6, products_retired = $7, products_deferred = $8,
			error_count = $9, started_at = $10, finished_at = $11
		WHERE id = $1 AND status IN ($12, $13)
	`
	result, err := r.db.ExecContext(ctx, query,
		job.ID, job.Status, job.PagesVisited, job.ProductsCreated, job.ProductsUpdated,
		job.ProductsUnchanged, job.ProductsRetired, job.ProductsDeferred,
		job.ErrorCount, job.StartedAt, job.FinishedAt,
		model.CrawlJobPending, model.CrawlJobRunning)
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

func (r *CrawlJobRepo) GetByID(ctx context.Context, id string) (*model.CrawlJob, error) {
	where := map[string]interface{}{
		"id": id,
	}
	sqlStr, args, err := builder.BuildSelect("crawl_jobs", where, crawlJobFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	row := r.db.QueryRowContext(ctx, sqlStr, args...)
	var job model.CrawlJob
	if err := row.Scan(&job.ID, &job.BusinessID, &job.Status, &job.PagesVisited,
		&job.ProductsCreated, &job.ProductsUpdated, &job.ProductsUnchanged, &job.ProductsRetired, &job.ProductsDeferred,
		&job.ErrorCount, &job.StartedAt, &job.FinishedAt, &job.Ctime); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return &job, nil
}

func (r *CrawlJobRepo) ListByBusiness(ctx context.Context, businessID string, limit uint) ([]model.CrawlJob, error) {
	where := map[string]interface{}{
		"business_id": businessID,
		"_orderby":    "ctime desc",
	}
	if limit > 0 {
		where["_limit"] = []uint{0, limit}
	}
	sqlStr, args, err := builder.BuildSelect("crawl_jobs", where, crawlJobFields)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	rows, err := r.db.QueryContext(ctx, sqlStr, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.CrawlJob, 0)
	for rows.Next() {
		var job model.CrawlJob
		if err := rows.Scan(&job.ID, &job.BusinessID, &job.Status, &job.PagesVisited,
			&job.ProductsCreated, &job.ProductsUpdated, &job.ProductsUnchanged, &job.ProductsRetired, &job.ProductsDeferred,
			&job.ErrorCount, &job.StartedAt, &job.FinishedAt, &job.Ctime); err != nil {
			return nil, err
		}
		items = append(items, job)
	}
	return items, rows.Err()
}
