package repo

import (
	"context"
	"database/sql"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
)

type IndexRepo struct {
	db *sql.DB
}

func NewIndexRepo(db *sql.DB) *IndexRepo {
	return &IndexRepo{db: db}
}

func (r *IndexRepo) Upsert(ctx context.Context, entry *model.IndexEntry) error {
	const query = `
		INSERT INTO index_entries (business_id, identity, embedding, content_hash, price, category, colors, sizes, in_stock, mtime)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (business_id, identity) DO UPDATE SET
			embedding = EXCLUDED.embedding,
			content_hash = EXCLUDED.content_hash,
			price = EXCLUDED.price,
			category = EXCLUDED.category,
			colors = EXCLUDED.colors,
			sizes = EXCLUDED.sizes,
			in_stock = EXCLUDED.in_stock,
			mtime = EXCLUDED.mtime
	`
	var price interface{}
	if entry.Price != nil {
		price = *entry.Price
	}
	_, err := r.db.ExecContext(ctx, query,
		entry.BusinessID, entry.Identity, pgvector.NewVector(entry.Embedding), entry.ContentHash,
		price, entry.Category, pq.Array(entry.Colors), pq.Array(entry.Sizes), entry.InStock, entry.Mtime)
	return err
}

func (r *IndexRepo) GetByIdentity(ctx context.Context, businessID, identity string) (*model.IndexEntry, error) {
	const query = `
		SELECT business_id, identity, embedding, content_hash, price, category, colors, sizes, in_stock, mtime
		FROM index_entries
		WHERE business_id = $1 AND identity = $2
	`
	row := r.db.QueryRowContext(ctx, query, businessID, identity)
	entry, err := scanIndexEntry(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErr.ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

func (r *IndexRepo) ListByBusiness(ctx context.Context, businessID string) ([]model.IndexEntry, error) {
	const query = `
		SELECT business_id, identity, embedding, content_hash, price, category, colors, sizes, in_stock, mtime
		FROM index_entries
		WHERE business_id = $1
	`
	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.IndexEntry, 0)
	for rows.Next() {
		entry, err := scanIndexEntry(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *entry)
	}
	return items, rows.Err()
}

func (r *IndexRepo) DistinctCategories(ctx context.Context, businessID string) ([]string, error) {
	const query = `
		SELECT DISTINCT category FROM index_entries
		WHERE business_id = $1 AND category <> ''
	`
	rows, err := r.db.QueryContext(ctx, query, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]string, 0)
	for rows.Next() {
		var category string
		if err := rows.Scan(&category); err != nil {
			return nil, err
		}
		items = append(items, category)
	}
	return items, rows.Err()
}

// ListStaleProducts returns active products whose index entry is
// missing or trails the product content hash. Feeds the periodic
// reindex job so embed failures heal without a recrawl.
func (r *IndexRepo) ListStaleProducts(ctx context.Context, limit int) ([]model.Product, error) {
	const query = `
		SELECT p.business_id, p.identity, p.name, p.description, p.content_hash, p.price, p.currency, p.category, p.brand, p.colors, p.sizes, p.in_stock
		FROM products p
		LEFT JOIN index_entries e ON p.business_id = e.business_id AND p.identity = e.identity
		WHERE (e.identity IS NULL OR p.content_hash <> e.content_hash) AND p.state = $1
		LIMIT $2
	`
	rows, err := r.db.QueryContext(ctx, query, model.ProductStateActive, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := make([]model.Product, 0)
	for rows.Next() {
		var p model.Product
		var price sql.NullFloat64
		if err := rows.Scan(&p.BusinessID, &p.Identity, &p.Name, &p.Description, &p.ContentHash,
			&price, &p.Currency, &p.Category, &p.Brand, pq.Array(&p.Colors), pq.Array(&p.Sizes), &p.InStock); err != nil {
			return nil, err
		}
		if price.Valid {
			v := price.Float64
			p.Price = &v
		}
		items = append(items, p)
	}
	return items, rows.Err()
}

func scanIndexEntry(scanner interface{ Scan(...interface{}) error }) (*model.IndexEntry, error) {
	var entry model.IndexEntry
	var embedding pgvector.Vector
	var price sql.NullFloat64
	err := scanner.Scan(&entry.BusinessID, &entry.Identity, &embedding, &entry.ContentHash,
		&price, &entry.Category, pq.Array(&entry.Colors), pq.Array(&entry.Sizes), &entry.InStock, &entry.Mtime)
	if err != nil {
		return nil, err
	}
	entry.Embedding = embedding.Slice()
	if price.Valid {
		v := price.Float64
		entry.Price = &v
	}
	return &entry, nil
}
