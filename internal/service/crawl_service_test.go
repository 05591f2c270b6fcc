package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/crawler"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
)

type crawlFixture struct {
	businesses *fakeBusinesses
	products   *fakeProducts
	index      *fakeIndex
	jobs       *fakeJobs
	embed      *countingEmbedder
	site       *fakeSite
	svc        *CrawlService
}

func newCrawlFixture(t *testing.T, site *fakeSite, businesses ...*model.Business) *crawlFixture {
	t.Helper()
	if len(businesses) == 0 {
		businesses = []*model.Business{testBusiness()}
	}
	f := &crawlFixture{
		businesses: newFakeBusinesses(businesses...),
		products:   newFakeProducts(),
		jobs:       newFakeJobs(),
		embed:      &countingEmbedder{},
		site:       site,
	}
	f.index = newFakeIndex(f.products)
	tiers := testTiers()
	usage := NewUsageService(newFakeUsage(), tiers)
	f.svc = NewCrawlService(f.businesses, f.jobs,
		NewCatalogService(f.products, 3),
		newTestIndexer(f.index, f.embed),
		usage, tiers, site, nil,
		CrawlerConfig{
			MaxPages:            20,
			PageConcurrency:     2,
			BusinessConcurrency: 2,
			RetryAttempts:       1,
			RetryBackoff:        time.Millisecond,
		})
	return f
}

func twoPageSite() *fakeSite {
	price := 10.0
	return &fakeSite{
		platform: model.PlatformGeneric,
		pages: map[string]bool{
			"https://shop.example.com/":      true,
			"https://shop.example.com/page2": true,
		},
		strategy: &cannedStrategy{
			seeds: []string{"https://shop.example.com/"},
			results: map[string]*crawler.ExtractResult{
				"https://shop.example.com/": {
					Products: []crawler.Candidate{
						{SKU: "A", Name: "Mug A", Price: &price, Currency: "USD", URL: "https://shop.example.com/p/a", InStock: model.StockIn},
					},
					Links: []string{"https://shop.example.com/page2"},
				},
				"https://shop.example.com/page2": {
					Products: []crawler.Candidate{
						{SKU: "B", Name: "Mug B", Price: &price, Currency: "USD", URL: "https://shop.example.com/p/b", InStock: model.StockIn},
					},
				},
			},
		},
	}
}

func TestTriggerCrawlHappyPath(t *testing.T) {
	f := newCrawlFixture(t, twoPageSite())

	job, err := f.svc.TriggerCrawl(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, model.CrawlJobPending, job.Status)
	f.svc.Wait()

	final, err := f.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CrawlJobSucceeded, final.Status)
	assert.Equal(t, 2, final.PagesVisited)
	assert.Equal(t, 2, final.ProductsCreated)
	assert.Zero(t, final.ErrorCount)
	assert.NotZero(t, final.StartedAt)
	assert.NotZero(t, final.FinishedAt)

	// Products landed in catalog and index.
	assert.NotNil(t, f.products.get("biz-1", "sku:A"))
	assert.NotNil(t, f.index.get("biz-1", "sku:B"))

	biz, err := f.businesses.GetByID(context.Background(), "biz-1")
	require.NoError(t, err)
	assert.Equal(t, model.PlatformGeneric, biz.Platform)
	assert.NotZero(t, biz.LastCrawledAt)
}

func TestTriggerCrawlRejectsConcurrentSameBusiness(t *testing.T) {
	site := twoPageSite()
	site.block = make(chan struct{})
	f := newCrawlFixture(t, site)

	_, err := f.svc.TriggerCrawl(context.Background(), "biz-1")
	require.NoError(t, err)

	_, err = f.svc.TriggerCrawl(context.Background(), "biz-1")
	assert.ErrorIs(t, err, appErr.ErrCrawlActive)

	close(site.block)
	f.svc.Wait()

	// With the first crawl done a new trigger goes through.
	_, err = f.svc.TriggerCrawl(context.Background(), "biz-1")
	require.NoError(t, err)
	f.svc.Wait()
}

func TestTriggerCrawlUnknownBusiness(t *testing.T) {
	f := newCrawlFixture(t, twoPageSite())
	_, err := f.svc.TriggerCrawl(context.Background(), "nope")
	assert.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestCrawlFailsWhenSiteUnreachable(t *testing.T) {
	site := &fakeSite{
		platform: model.PlatformGeneric,
		pages:    map[string]bool{},
		strategy: &cannedStrategy{seeds: []string{"https://shop.example.com/"}},
	}
	f := newCrawlFixture(t, site)

	job, err := f.svc.TriggerCrawl(context.Background(), "biz-1")
	require.NoError(t, err)
	f.svc.Wait()

	final, err := f.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CrawlJobFailed, final.Status)
	// A dead site never retires the existing catalog.
	count, err := f.products.CountByState(context.Background(), "biz-1", model.ProductStateActive)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestCrawlPartialFailure(t *testing.T) {
	site := twoPageSite()
	delete(site.pages, "https://shop.example.com/page2")
	f := newCrawlFixture(t, site)

	job, err := f.svc.TriggerCrawl(context.Background(), "biz-1")
	require.NoError(t, err)
	f.svc.Wait()

	final, err := f.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CrawlJobPartiallyFailed, final.Status)
	assert.Equal(t, 1, final.PagesVisited)
	assert.Equal(t, 1, final.ProductsCreated)
	assert.Equal(t, 1, final.ErrorCount)
}

func TestCrawlBlockedRootFails(t *testing.T) {
	site := twoPageSite()
	site.failWith = map[string]*crawler.FetchError{
		"https://shop.example.com/": {
			Kind: crawler.FetchBlocked,
			URL:  "https://shop.example.com/",
		},
	}
	f := newCrawlFixture(t, site)

	job, err := f.svc.TriggerCrawl(context.Background(), "biz-1")
	require.NoError(t, err)
	f.svc.Wait()

	final, err := f.svc.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CrawlJobFailed, final.Status)
}

func TestCrawlMirrorsImagesIntoStore(t *testing.T) {
	site := twoPageSite()
	root := site.strategy.(*cannedStrategy).results["https://shop.example.com/"]
	root.Products[0].Images = []string{"https://shop.example.com/img/a.jpg"}
	site.pages["https://shop.example.com/img/a.jpg"] = true
	f := newCrawlFixture(t, site)
	store := newFakeFileStore()
	f.svc.images = store

	_, err := f.svc.TriggerCrawl(context.Background(), "biz-1")
	require.NoError(t, err)
	f.svc.Wait()

	// The product row points at the stored copy, not the source URL.
	assert.Equal(t, 1, store.savedCount())
	p := f.products.get("biz-1", "sku:A")
	require.NotNil(t, p)
	require.Len(t, p.Images, 1)
	assert.True(t, strings.HasPrefix(p.Images[0], "https://cdn.test/biz-1/"), p.Images[0])
	assert.True(t, strings.HasSuffix(p.Images[0], ".jpg"), p.Images[0])

	// The rewrite never reads as a catalog change on the next crawl.
	job2, err := f.svc.TriggerCrawl(context.Background(), "biz-1")
	require.NoError(t, err)
	f.svc.Wait()
	final, err := f.svc.GetJob(context.Background(), job2.ID)
	require.NoError(t, err)
	assert.Zero(t, final.ProductsCreated)
	assert.Zero(t, final.ProductsUpdated)
	assert.Equal(t, 2, final.ProductsUnchanged)
}

func TestCrawlAll(t *testing.T) {
	biz2 := testBusiness()
	biz2.ID = "biz-2"
	f := newCrawlFixture(t, twoPageSite(), testBusiness(), biz2)

	require.NoError(t, f.svc.CrawlAll(context.Background()))

	for _, id := range []string{"biz-1", "biz-2"} {
		jobs, err := f.svc.ListJobs(context.Background(), id, 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1, id)
		assert.Equal(t, model.CrawlJobSucceeded, jobs[0].Status, id)
		assert.NotNil(t, f.products.get(id, "sku:A"), id)
	}
}

func TestCrawlAllCancelledMidCrawl(t *testing.T) {
	site := twoPageSite()
	site.block = make(chan struct{})
	f := newCrawlFixture(t, site)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.CrawlAll(ctx) }()

	require.Eventually(t, func() bool { return site.fetchCount() > 0 },
		time.Second, time.Millisecond)
	cancel()
	close(site.block)
	require.NoError(t, <-done)

	// The interrupted job lands as cancelled, not failed, and the
	// catalog stays untouched.
	jobs, err := f.svc.ListJobs(context.Background(), "biz-1", 10)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, model.CrawlJobCancelled, jobs[0].Status)
	assert.NotZero(t, jobs[0].FinishedAt)
	assert.Nil(t, f.products.get("biz-1", "sku:A"))
}

func TestListJobsUnknownBusiness(t *testing.T) {
	f := newCrawlFixture(t, twoPageSite())
	_, err := f.svc.ListJobs(context.Background(), "nope", 10)
	assert.ErrorIs(t, err, appErr.ErrNotFound)
}
