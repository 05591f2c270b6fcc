package repo_test

import (
	"context"
	"database/sql"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/config"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/repo"
)

// openTestDB connects to the database named by TEST_DB_* env vars.
// Tests are skipped when TEST_DB_HOST is unset so the suite stays
// runnable without postgres.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set")
	}
	port := 5432
	if raw := os.Getenv("TEST_DB_PORT"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			port = v
		}
	}
	db, err := repo.Open(config.DatabaseConfig{
		Host:     host,
		Port:     port,
		User:     envOr("TEST_DB_USER", "postgres"),
		Password: os.Getenv("TEST_DB_PASSWORD"),
		DBName:   envOr("TEST_DB_NAME", "shopagent_test"),
	})
	require.NoError(t, err)
	require.NoError(t, repo.ApplyMigrations(db))
	for _, table := range []string{"businesses", "products", "crawl_jobs", "index_entries", "usage_counters", "conversation_turns"} {
		_, err := db.Exec("TRUNCATE TABLE " + table)
		require.NoError(t, err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func TestBusinessRepoCRUD(t *testing.T) {
	db := openTestDB(t)
	businesses := repo.NewBusinessRepo(db)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	biz := &model.Business{
		ID:         "biz-1",
		Name:       "Trail Outfitters",
		WebsiteURL: "https://shop.example.com",
		Tier:       "free",
		State:      model.BusinessStateActive,
		Ctime:      now,
		Mtime:      now,
	}
	require.NoError(t, businesses.Create(ctx, biz))
	require.ErrorIs(t, businesses.Create(ctx, biz), appErr.ErrConflict)

	fetched, err := businesses.GetByID(ctx, "biz-1")
	require.NoError(t, err)
	require.Equal(t, "Trail Outfitters", fetched.Name)

	_, err = businesses.GetByID(ctx, "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)

	require.NoError(t, businesses.UpdateCrawlMeta(ctx, "biz-1", model.PlatformShopify, now+1, now+1))
	require.NoError(t, businesses.UpdateTier(ctx, "biz-1", "pro", now+2))
	fetched, err = businesses.GetByID(ctx, "biz-1")
	require.NoError(t, err)
	require.Equal(t, model.PlatformShopify, fetched.Platform)
	require.Equal(t, "pro", fetched.Tier)

	active, err := businesses.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)

	require.ErrorIs(t, businesses.UpdateTier(ctx, "missing", "pro", now), appErr.ErrNotFound)
}

func TestProductRepoApplyDiffRetirement(t *testing.T) {
	db := openTestDB(t)
	products := repo.NewProductRepo(db)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	price := 149.99
	p := model.Product{
		BusinessID:  "biz-1",
		Identity:    "sku:TB-1",
		Name:        "Trail Boot",
		Price:       &price,
		Currency:    "USD",
		Colors:      []string{"black"},
		Sizes:       []string{"9", "10"},
		Images:      []string{"https://shop.example.com/a.jpg"},
		InStock:     model.StockIn,
		State:       model.ProductStateActive,
		ContentHash: "h1",
		LastSeenAt:  now,
		Ctime:       now,
		Mtime:       now,
	}
	retired, err := products.ApplyDiff(ctx, "biz-1", []model.Product{p}, nil, []string{p.Identity}, 2, now)
	require.NoError(t, err)
	require.Empty(t, retired)

	// Two consecutive crawls without the product cross the miss
	// threshold and retire it.
	retired, err = products.ApplyDiff(ctx, "biz-1", nil, nil, []string{}, 2, now+1)
	require.NoError(t, err)
	require.Empty(t, retired)
	retired, err = products.ApplyDiff(ctx, "biz-1", nil, nil, []string{}, 2, now+2)
	require.NoError(t, err)
	require.Equal(t, []string{"sku:TB-1"}, retired)

	fetched, err := products.GetByIdentity(ctx, "biz-1", "sku:TB-1")
	require.NoError(t, err)
	require.Equal(t, model.ProductStateStale, fetched.State)
	require.NotNil(t, fetched.Price)
	require.Equal(t, 149.99, *fetched.Price)
	require.Equal(t, []string{"9", "10"}, fetched.Sizes)

	count, err := products.CountByState(ctx, "biz-1", model.ProductStateActive)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestUsageRepoIncrementIfBelow(t *testing.T) {
	db := openTestDB(t)
	usage := repo.NewUsageRepo(db)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	for i := 0; i < 2; i++ {
		ok, err := usage.IncrementIfBelow(ctx, "biz-1", "2026-09", "conversations", 1, 2, now)
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := usage.IncrementIfBelow(ctx, "biz-1", "2026-09", "conversations", 1, 2, now)
	require.NoError(t, err)
	require.False(t, ok)

	// Unmetered bookkeeping never refuses.
	ok, err = usage.IncrementIfBelow(ctx, "biz-1", "2026-09", "products_indexed", 500, -1, now)
	require.NoError(t, err)
	require.True(t, ok)

	counter, err := usage.Get(ctx, "biz-1", "2026-09")
	require.NoError(t, err)
	require.Equal(t, 2, counter.Conversations)
	require.Equal(t, 500, counter.ProductsIndexed)

	// Absent rows read as zero usage.
	counter, err = usage.Get(ctx, "biz-1", "2026-10")
	require.NoError(t, err)
	require.Zero(t, counter.Conversations)
}

func TestIndexRepoListStaleProducts(t *testing.T) {
	db := openTestDB(t)
	products := repo.NewProductRepo(db)
	index := repo.NewIndexRepo(db)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	price := 89.99
	p := model.Product{
		BusinessID:  "biz-1",
		Identity:    "sku:TB-1",
		Name:        "Trail Boot",
		Price:       &price,
		Currency:    "USD",
		Category:    "Boots",
		Brand:       "Summit",
		Colors:      []string{"black"},
		Sizes:       []string{"9"},
		Images:      []string{"https://shop.example.com/tb1.jpg"},
		InStock:     model.StockIn,
		State:       model.ProductStateActive,
		ContentHash: "h1",
		LastSeenAt:  now,
		Ctime:       now,
		Mtime:       now,
	}
	_, err := products.ApplyDiff(ctx, "biz-1", []model.Product{p}, nil, []string{p.Identity}, 2, now)
	require.NoError(t, err)

	// No index entry yet, so the product is stale. The rows carry the
	// full set of fields the embedding text is built from.
	stale, err := index.ListStaleProducts(ctx, 10)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	require.Equal(t, "Summit", stale[0].Brand)
	require.Equal(t, "USD", stale[0].Currency)
	require.Equal(t, "Boots", stale[0].Category)
	require.NotNil(t, stale[0].Price)

	require.NoError(t, index.Upsert(ctx, &model.IndexEntry{
		BusinessID:  "biz-1",
		Identity:    "sku:TB-1",
		Embedding:   make([]float32, 768),
		ContentHash: "h1",
		Category:    "Boots",
		Colors:      []string{"black"},
		Sizes:       []string{"9"},
		InStock:     model.StockIn,
		Mtime:       now,
	}))
	stale, err = index.ListStaleProducts(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, stale)
}

func TestCrawlJobRepoTerminalImmutable(t *testing.T) {
	db := openTestDB(t)
	jobs := repo.NewCrawlJobRepo(db)
	ctx := context.Background()
	now := time.Now().UnixMilli()

	job := &model.CrawlJob{
		ID:         "job-1",
		BusinessID: "biz-1",
		Status:     model.CrawlJobPending,
		Ctime:      now,
	}
	require.NoError(t, jobs.Create(ctx, job))

	job.Status = model.CrawlJobRunning
	job.StartedAt = now
	require.NoError(t, jobs.Update(ctx, job))

	job.Status = model.CrawlJobSucceeded
	job.PagesVisited = 3
	job.FinishedAt = now + 5
	require.NoError(t, jobs.Update(ctx, job))

	job.PagesVisited = 99
	require.ErrorIs(t, jobs.Update(ctx, job), appErr.ErrNotFound)

	fetched, err := jobs.GetByID(ctx, "job-1")
	require.NoError(t, err)
	require.Equal(t, 3, fetched.PagesVisited)
	require.True(t, fetched.Terminal())

	listed, err := jobs.ListByBusiness(ctx, "biz-1", 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
}
