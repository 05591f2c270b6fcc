package service

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/crawler"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/filestore"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
)

type businessStore interface {
	GetByID(ctx context.Context, id string) (*model.Business, error)
	ListActive(ctx context.Context) ([]model.Business, error)
	UpdateCrawlMeta(ctx context.Context, id, platform string, crawledAt, mtime int64) error
}

type jobStore interface {
	Create(ctx context.Context, job *model.CrawlJob) error
	Update(ctx context.Context, job *model.CrawlJob) error
	GetByID(ctx context.Context, id string) (*model.CrawlJob, error)
	ListByBusiness(ctx context.Context, businessID string, limit uint) ([]model.CrawlJob, error)
}

// siteClient is how the orchestrator touches the network: one polite
// fetch path plus platform detection.
type siteClient interface {
	Fetch(ctx context.Context, rawURL string) (*crawler.Page, error)
	Detect(ctx context.Context, root *url.URL) (crawler.Strategy, string)
}

type SiteClient struct {
	fetcher *crawler.Fetcher
}

func NewSiteClient(f *crawler.Fetcher) *SiteClient {
	return &SiteClient{fetcher: f}
}

func (c *SiteClient) Fetch(ctx context.Context, rawURL string) (*crawler.Page, error) {
	return c.fetcher.Fetch(ctx, rawURL)
}

func (c *SiteClient) Detect(ctx context.Context, root *url.URL) (crawler.Strategy, string) {
	return crawler.Detect(ctx, c.fetcher, root)
}

type CrawlerConfig struct {
	MaxPages            int
	PageConcurrency     int
	BusinessConcurrency int
	RetryAttempts       int
	RetryBackoff        time.Duration
}

// CrawlService runs crawls end to end: fetch, extract, reconcile,
// index. Concurrency is bounded twice, per crawl by the page worker
// limit and across crawls by a weighted semaphore, with at most one
// crawl per business at any time.
type CrawlService struct {
	businesses businessStore
	jobs       jobStore
	catalog    *CatalogService
	indexer    *IndexService
	usage      *UsageService
	tiers      *TierService
	site       siteClient
	images     filestore.Store
	cfg        CrawlerConfig

	sem    *semaphore.Weighted
	mu     sync.Mutex
	active map[string]bool
	wg     sync.WaitGroup
}

func NewCrawlService(businesses businessStore, jobs jobStore, catalog *CatalogService,
	indexer *IndexService, usage *UsageService, tiers *TierService,
	site siteClient, images filestore.Store, cfg CrawlerConfig) *CrawlService {
	if cfg.BusinessConcurrency <= 0 {
		cfg.BusinessConcurrency = 1
	}
	if cfg.PageConcurrency <= 0 {
		cfg.PageConcurrency = 1
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 1
	}
	return &CrawlService{
		businesses: businesses,
		jobs:       jobs,
		catalog:    catalog,
		indexer:    indexer,
		usage:      usage,
		tiers:      tiers,
		site:       site,
		images:     images,
		cfg:        cfg,
		sem:        semaphore.NewWeighted(int64(cfg.BusinessConcurrency)),
		active:     make(map[string]bool),
	}
}

// TriggerCrawl starts an asynchronous crawl and returns the pending
// job. A second trigger while a crawl for the same business is
// pending or running fails with ErrCrawlActive.
func (s *CrawlService) TriggerCrawl(ctx context.Context, businessID string) (*model.CrawlJob, error) {
	biz, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if !s.tryAcquire(biz.ID) {
		return nil, appErr.ErrCrawlActive
	}
	job := &model.CrawlJob{
		ID:         uuid.NewString(),
		BusinessID: biz.ID,
		Status:     model.CrawlJobPending,
		Ctime:      time.Now().UnixMilli(),
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		s.release(biz.ID)
		return nil, err
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.release(biz.ID)
		// The crawl outlives the triggering request.
		bgctx := context.Background()
		if err := s.sem.Acquire(bgctx, 1); err != nil {
			return
		}
		defer s.sem.Release(1)
		s.runCrawl(bgctx, biz, job)
	}()
	return job, nil
}

// CrawlAll crawls every active business, used by the nightly
// schedule. Businesses already mid-crawl are skipped, not queued.
func (s *CrawlService) CrawlAll(ctx context.Context) error {
	businesses, err := s.businesses.ListActive(ctx)
	if err != nil {
		return err
	}
	logger := logutil.GetLogger(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for i := range businesses {
		biz := businesses[i]
		if !s.tryAcquire(biz.ID) {
			logger.Info("crawl skipped: already running", zap.String("business_id", biz.ID))
			continue
		}
		g.Go(func() error {
			defer s.release(biz.ID)
			if err := s.sem.Acquire(gctx, 1); err != nil {
				return err
			}
			defer s.sem.Release(1)
			job := &model.CrawlJob{
				ID:         uuid.NewString(),
				BusinessID: biz.ID,
				Status:     model.CrawlJobPending,
				Ctime:      time.Now().UnixMilli(),
			}
			if err := s.jobs.Create(gctx, job); err != nil {
				return err
			}
			s.runCrawl(gctx, &biz, job)
			return nil
		})
	}
	return g.Wait()
}

// Wait blocks until in-flight crawls finish, used on shutdown.
func (s *CrawlService) Wait() {
	s.wg.Wait()
}

func (s *CrawlService) GetJob(ctx context.Context, id string) (*model.CrawlJob, error) {
	return s.jobs.GetByID(ctx, id)
}

func (s *CrawlService) ListJobs(ctx context.Context, businessID string, limit uint) ([]model.CrawlJob, error) {
	if _, err := s.businesses.GetByID(ctx, businessID); err != nil {
		return nil, err
	}
	return s.jobs.ListByBusiness(ctx, businessID, limit)
}

func (s *CrawlService) tryAcquire(businessID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active[businessID] {
		return false
	}
	s.active[businessID] = true
	return true
}

func (s *CrawlService) release(businessID string) {
	s.mu.Lock()
	delete(s.active, businessID)
	s.mu.Unlock()
}

func (s *CrawlService) runCrawl(ctx context.Context, biz *model.Business, job *model.CrawlJob) {
	logger := logutil.GetLogger(ctx).With(
		zap.String("business_id", biz.ID),
		zap.String("job_id", job.ID),
	)
	job.Status = model.CrawlJobRunning
	job.StartedAt = time.Now().UnixMilli()
	if err := s.jobs.Update(ctx, job); err != nil {
		logger.Error("mark job running failed", zap.Error(err))
		return
	}

	root, err := crawler.SeedRoot(biz.WebsiteURL)
	if err != nil {
		logger.Error("bad website url", zap.Error(err))
		s.finishJob(ctx, job, model.CrawlJobFailed)
		return
	}
	strategy, platform := s.site.Detect(ctx, root)
	logger.Info("crawl started", zap.String("strategy", strategy.Name()))

	candidates, rootDead := s.walk(ctx, job, strategy, root)
	if ctx.Err() != nil {
		logger.Warn("crawl cancelled", zap.Int("pages", job.PagesVisited))
		s.finishJob(ctx, job, model.CrawlJobCancelled)
		return
	}
	if rootDead {
		logger.Error("crawl failed: site unreachable", zap.Int("errors", job.ErrorCount))
		s.finishJob(ctx, job, model.CrawlJobFailed)
		return
	}

	now := time.Now().UnixMilli()
	tier := s.tiers.Resolve(biz.Tier)
	diff, err := s.catalog.Upsert(ctx, biz, candidates, tier.MaxProducts, now)
	if err != nil {
		logger.Error("catalog upsert failed", zap.Error(err))
		s.finishJob(ctx, job, model.CrawlJobFailed)
		return
	}
	job.ProductsCreated = len(diff.Created)
	job.ProductsUpdated = len(diff.Updated)
	job.ProductsUnchanged = len(diff.Unchanged)
	job.ProductsRetired = len(diff.Retired)
	job.ProductsDeferred = diff.Deferred

	if err := s.usage.CheckAndIncrement(ctx, biz, UsageKindIndexedProduct, len(diff.Created)); err != nil {
		logger.Warn("usage bookkeeping failed", zap.Error(err))
	}

	_, embedFailed := s.indexer.ReindexDiff(ctx, diff)
	job.ErrorCount += embedFailed

	if s.images != nil {
		s.mirrorImages(ctx, biz.ID, diff.Created)
	}

	if err := s.businesses.UpdateCrawlMeta(ctx, biz.ID, platform, now, now); err != nil {
		logger.Warn("update business crawl meta failed", zap.Error(err))
	}

	status := model.CrawlJobSucceeded
	if job.ErrorCount > 0 {
		status = model.CrawlJobPartiallyFailed
	}
	s.finishJob(ctx, job, status)
	logger.Info("crawl finished",
		zap.String("status", status),
		zap.Int("pages", job.PagesVisited),
		zap.Int("created", job.ProductsCreated),
		zap.Int("updated", job.ProductsUpdated),
		zap.Int("unchanged", job.ProductsUnchanged),
		zap.Int("retired", job.ProductsRetired),
		zap.Int("deferred", job.ProductsDeferred),
		zap.Int("errors", job.ErrorCount),
	)
}

// walk runs the BFS over the site in waves. Returns the extracted
// candidates and whether the site yielded nothing at all, which
// fails the crawl instead of retiring the whole catalog.
func (s *CrawlService) walk(ctx context.Context, job *model.CrawlJob, strategy crawler.Strategy, root *url.URL) ([]crawler.Candidate, bool) {
	logger := logutil.GetLogger(ctx)
	visited := make(map[string]bool)
	frontier := strategy.Seeds(root)

	var mu sync.Mutex
	var candidates []crawler.Candidate
	scheduled := 0
	fetched := 0

	for len(frontier) > 0 && scheduled < s.cfg.MaxPages && ctx.Err() == nil {
		var next []string
		g := errgroup.Group{}
		g.SetLimit(s.cfg.PageConcurrency)
		for _, link := range frontier {
			if visited[link] || scheduled >= s.cfg.MaxPages {
				continue
			}
			visited[link] = true
			scheduled++
			link := link
			g.Go(func() error {
				page, err := s.fetchWithRetry(ctx, link)
				if err != nil {
					mu.Lock()
					job.ErrorCount++
					mu.Unlock()
					logger.Warn("page fetch failed", zap.String("url", link), zap.Error(err))
					return nil
				}
				res, err := strategy.Extract(page)
				if err != nil {
					mu.Lock()
					job.ErrorCount++
					mu.Unlock()
					logger.Warn("page extract failed", zap.String("url", link), zap.Error(err))
					return nil
				}
				mu.Lock()
				fetched++
				job.PagesVisited++
				candidates = append(candidates, res.Products...)
				next = append(next, res.Links...)
				mu.Unlock()
				return nil
			})
		}
		g.Wait()
		frontier = next
	}
	return candidates, fetched == 0
}

func (s *CrawlService) fetchWithRetry(ctx context.Context, link string) (*crawler.Page, error) {
	var lastErr error
	for attempt := 0; attempt < s.cfg.RetryAttempts; attempt++ {
		if attempt > 0 && s.cfg.RetryBackoff > 0 {
			timer := time.NewTimer(s.cfg.RetryBackoff * time.Duration(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
		page, err := s.site.Fetch(ctx, link)
		if err == nil {
			return page, nil
		}
		lastErr = err
		var fe *crawler.FetchError
		if errors.As(err, &fe) && !fe.Retryable() {
			break
		}
	}
	return nil, lastErr
}

// mirrorImages copies the first image of each new product into the
// file store and points the product row at the stored copy. Mirroring
// is best effort and never fails a crawl; the content hash keeps
// covering the source image so the rewrite never reads as a change.
func (s *CrawlService) mirrorImages(ctx context.Context, businessID string, created []model.Product) {
	logger := logutil.GetLogger(ctx)
	for i := range created {
		p := &created[i]
		if len(p.Images) == 0 {
			continue
		}
		src := p.Images[0]
		page, err := s.site.Fetch(ctx, src)
		if err != nil {
			logger.Warn("mirror image fetch failed", zap.String("url", src), zap.Error(err))
			continue
		}
		sum := sha1.Sum([]byte(src))
		ext := path.Ext(strings.SplitN(path.Base(src), "?", 2)[0])
		if ext == "" {
			ext = ".img"
		}
		key := businessID + "/" + hex.EncodeToString(sum[:]) + ext
		stored, err := s.images.Save(ctx, key, bytes.NewReader(page.Body))
		if err != nil {
			logger.Warn("mirror image save failed", zap.String("key", key), zap.Error(err))
			continue
		}
		images := append([]string(nil), p.Images...)
		images[0] = stored
		if err := s.catalog.SetImages(ctx, businessID, p.Identity, images, time.Now().UnixMilli()); err != nil {
			logger.Warn("mirror image rewrite failed", zap.String("identity", p.Identity), zap.Error(err))
		}
	}
}

func (s *CrawlService) finishJob(ctx context.Context, job *model.CrawlJob, status string) {
	// The terminal status must land even when the crawl's context is
	// already cancelled.
	ctx = context.WithoutCancel(ctx)
	job.Status = status
	job.FinishedAt = time.Now().UnixMilli()
	if err := s.jobs.Update(ctx, job); err != nil {
		logutil.GetLogger(ctx).Error("finish job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}
