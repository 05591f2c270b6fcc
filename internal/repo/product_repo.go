package repo

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
)

const productColumns = `business_id, identity, name, description, price, currency, category, brand,
	colors, sizes, images, url, in_stock, state, missed_crawls, content_hash, last_seen_at, ctime, mtime`

type ProductRepo struct {
	db *sql.DB
}

func NewProductRepo(db *sql.DB) *ProductRepo {
	return &ProductRepo{db: db}
}

func scanProduct(scanner interface{ Scan(...interface{}) error }) (*model.Product, error) {
	var p model.Product
	var price sql.NullFloat64
	err := scanner.Scan(&p.BusinessID, &p.Identity, &p.Name, &p.Description, &price, &p.Currency,
		&p.Category, &p.Brand, pq.Array(&p.Colors), pq.Array(&p.Sizes), pq.Array(&p.Images),
		&p.URL, &p.InStock, &p.State, &p.MissedCrawls, &p.ContentHash, &p.LastSeenAt, &p.Ctime, &p.Mtime)
	if err != nil {
		return nil, err
	}
	if price.Valid {
		v := price.Float64
		p.Price = &v
	}
	return &p, nil
}

func productArgs(p *model.Product) []interface{} {
	var price interface{}
	if p.Price != nil {
		price = *p.Price
	}
	return []interface{}{
		p.BusinessID, p.Identity, p.Name, p.Description, price, p.Currency,
		p.Category, p.Brand, pq.Array(p.Colors), pq.Array(p.Sizes), pq.Array(p.Images),
		p.URL, p.InStock, p.State, p.MissedCrawls, p.ContentHash, p.LastSeenAt, p.Ctime, p.Mtime,
	}
}

func (r *ProductRepo) GetByIdentity(ctx context.Context, businessID, identity string) (*model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE business_id = $1 AND identity = $2`
	row := r.db.QueryRowContext(ctx, query, businessID, identity)
	p, err := scanProduct(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (r *ProductRepo) ListByBusiness(ctx context.Context, businessID string, states []int) ([]model.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products WHERE business_id = ? AND state IN (?) ORDER BY identity`
	query, args, err := sqlx.In(query, businessID, states)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	return items, rows.Err()
}

func (r *ProductRepo) ListByIdentities(ctx context.Context, businessID string, identities []string) ([]model.Product, error) {
	if len(identities) == 0 {
		return []model.Product{}, nil
	}
	query := `SELECT ` + productColumns + ` FROM products WHERE business_id = ? AND identity IN (?)`
	query, args, err := sqlx.In(query, businessID, identities)
	if err != nil {
		return nil, err
	}
	query = sqlx.Rebind(sqlx.DOLLAR, query)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *p)
	}
	return items, rows.Err()
}

func (r *ProductRepo) CountByState(ctx context.Context, businessID string, state int) (int, error) {
	row := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM products WHERE business_id = $1 AND state = $2`, businessID, state)
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

// UpdateImages rewrites a product's image references after mirroring.
// The content hash stays untouched: it fingerprints the source
// listing, so the next crawl still sees an unchanged product.
func (r *ProductRepo) UpdateImages(ctx context.Context, businessID, identity string, images []string, mtime int64) error {
	const query = `UPDATE products SET images = $3, mtime = $4 WHERE business_id = $1 AND identity = $2`
	result, err := r.db.ExecContext(ctx, query, businessID, identity, pq.Array(images), mtime)
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

// ApplyDiff commits one crawl's catalog changes in a single
// transaction scoped to the business: inserts created rows, rewrites
// updated rows, bumps the miss counter on rows not seen this crawl
// and retires rows that crossed the miss threshold. Returns the
// identities retired.
func (r *ProductRepo) ApplyDiff(ctx context.Context, businessID string, created, updated []model.Product, seen []string, retireAfterMisses int, now int64) ([]string, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	const insertQuery = `
		INSERT INTO products (` + productColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
	`
	for i := range created {
		if _, err := tx.ExecContext(ctx, insertQuery, productArgs(&created[i])...); err != nil {
			return nil, err
		}
	}

	const updateQuery = `
		UPDATE products SET
			name = $3, description = $4, price = $5, currency = $6, category = $7, brand = $8,
			colors = $9, sizes = $10, images = $11, url = $12, in_stock = $13, state = $14,
			missed_crawls = 0, content_hash = $15, last_seen_at = $16, mtime = $17
		WHERE business_id = $1 AND identity = $2
	`
	for i := range updated {
		p := &updated[i]
		var price interface{}
		if p.Price != nil {
			price = *p.Price
		}
		if _, err := tx.ExecContext(ctx, updateQuery,
			p.BusinessID, p.Identity, p.Name, p.Description, price, p.Currency, p.Category, p.Brand,
			pq.Array(p.Colors), pq.Array(p.Sizes), pq.Array(p.Images), p.URL, p.InStock, p.State,
			p.ContentHash, p.LastSeenAt, p.Mtime); err != nil {
			return nil, err
		}
	}

	// Transient extraction misses are absorbed: a product must go
	// unseen across consecutive crawls before it turns stale.
	const missQuery = `
		UPDATE products SET missed_crawls = missed_crawls + 1, mtime = $3
		WHERE business_id = $1 AND state = $4 AND identity <> ALL($2)
	`
	if _, err := tx.ExecContext(ctx, missQuery, businessID, pq.Array(seen), now, model.ProductStateActive); err != nil {
		return nil, err
	}

	const retireQuery = `
		UPDATE products SET state = $3, mtime = $4
		WHERE business_id = $1 AND state = $5 AND missed_crawls >= $2
		RETURNING identity
	`
	rows, err := tx.QueryContext(ctx, retireQuery, businessID, retireAfterMisses, model.ProductStateStale, now, model.ProductStateActive)
	if err != nil {
		return nil, err
	}
	retired := make([]string, 0)
	for rows.Next() {
		var identity string
		if err := rows.Scan(&identity); err != nil {
			rows.Close()
			return nil, err
		}
		retired = append(retired, identity)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return retired, nil
}
