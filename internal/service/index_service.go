package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/ai"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
)

type indexStore interface {
	Upsert(ctx context.Context, entry *model.IndexEntry) error
	ListByBusiness(ctx context.Context, businessID string) ([]model.IndexEntry, error)
	DistinctCategories(ctx context.Context, businessID string) ([]string, error)
	ListStaleProducts(ctx context.Context, limit int) ([]model.Product, error)
}

// EmbedClient is the slice of the AI manager the indexer needs.
type EmbedClient interface {
	Embed(ctx context.Context, text string, taskType string) ([]float32, error)
	EmbeddingModelName() string
}

type IndexerConfig struct {
	Retries   int
	Backoff   time.Duration
	CacheSize int
	CacheTTL  time.Duration
}

// IndexService keeps index entries in step with the catalog. Every
// write is guarded by the product content hash: an unchanged product
// never costs an embedding call, and a failed embed leaves the old
// entry serving until the stale sweep retries it.
type IndexService struct {
	index indexStore
	embed EmbedClient
	cfg   IndexerConfig
	cache *lru.LRU[string, []float32]
}

func NewIndexService(index indexStore, embed EmbedClient, cfg IndexerConfig) *IndexService {
	if cfg.Retries <= 0 {
		cfg.Retries = 1
	}
	size := cfg.CacheSize
	if size <= 0 {
		size = 1024
	}
	return &IndexService{
		index: index,
		embed: embed,
		cfg:   cfg,
		cache: lru.NewLRU[string, []float32](size, nil, cfg.CacheTTL),
	}
}

// IndexProduct embeds one product and upserts its index entry.
func (s *IndexService) IndexProduct(ctx context.Context, p *model.Product) (*model.IndexEntry, error) {
	vec, err := s.embedWithRetry(ctx, embedText(p), ai.TaskTypeDocument, "doc:"+p.ContentHash)
	if err != nil {
		return nil, fmt.Errorf("embed %s: %w", p.Identity, err)
	}
	entry := &model.IndexEntry{
		BusinessID:  p.BusinessID,
		Identity:    p.Identity,
		Embedding:   vec,
		ContentHash: p.ContentHash,
		Price:       p.Price,
		Category:    p.Category,
		Colors:      p.Colors,
		Sizes:       p.Sizes,
		InStock:     p.InStock,
		Mtime:       time.Now().UnixMilli(),
	}
	if err := s.index.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("upsert index entry %s: %w", p.Identity, err)
	}
	return entry, nil
}

// ReindexDiff indexes what a crawl created or updated. Unchanged and
// deferred products are skipped by construction. Failures are logged
// and counted, not fatal: the stale sweep heals them.
func (s *IndexService) ReindexDiff(ctx context.Context, diff *Diff) (indexed int, failed int) {
	logger := logutil.GetLogger(ctx)
	for _, batch := range [][]model.Product{diff.Created, diff.Updated} {
		for i := range batch {
			p := &batch[i]
			if p.State != model.ProductStateActive {
				continue
			}
			if _, err := s.IndexProduct(ctx, p); err != nil {
				failed++
				logger.Warn("index product failed", zap.String("identity", p.Identity), zap.Error(err))
				continue
			}
			indexed++
		}
	}
	return indexed, failed
}

// ProcessStale reindexes up to limit products whose entries are
// missing or trail the catalog.
func (s *IndexService) ProcessStale(ctx context.Context, limit int) (int, error) {
	products, err := s.index.ListStaleProducts(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list stale products: %w", err)
	}
	logger := logutil.GetLogger(ctx)
	indexed := 0
	for i := range products {
		if _, err := s.IndexProduct(ctx, &products[i]); err != nil {
			logger.Warn("stale reindex failed", zap.String("identity", products[i].Identity), zap.Error(err))
			continue
		}
		indexed++
	}
	return indexed, nil
}

func (s *IndexService) Entries(ctx context.Context, businessID string) ([]model.IndexEntry, error) {
	return s.index.ListByBusiness(ctx, businessID)
}

func (s *IndexService) Categories(ctx context.Context, businessID string) ([]string, error) {
	return s.index.DistinctCategories(ctx, businessID)
}

// EmbedQuery embeds a search query with the query task type.
func (s *IndexService) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	sum := sha256.Sum256([]byte(text))
	return s.embedWithRetry(ctx, text, ai.TaskTypeQuery, "query:"+hex.EncodeToString(sum[:]))
}

func (s *IndexService) embedWithRetry(ctx context.Context, text, taskType, cacheKey string) ([]float32, error) {
	key := s.embed.EmbeddingModelName() + ":" + cacheKey
	if vec, ok := s.cache.Get(key); ok {
		return vec, nil
	}
	var lastErr error
	for attempt := 0; attempt < s.cfg.Retries; attempt++ {
		if attempt > 0 && s.cfg.Backoff > 0 {
			timer := time.NewTimer(s.cfg.Backoff * time.Duration(attempt))
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}
		vec, err := s.embed.Embed(ctx, text, taskType)
		if err == nil {
			s.cache.Add(key, vec)
			return vec, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// embedText flattens a product into the text that gets embedded.
// Attribute labels keep short fields from drowning in the name.
func embedText(p *model.Product) string {
	parts := []string{p.Name}
	if p.Category != "" {
		parts = append(parts, "Category: "+p.Category)
	}
	if p.Brand != "" {
		parts = append(parts, "Brand: "+p.Brand)
	}
	if len(p.Colors) > 0 {
		parts = append(parts, "Colors: "+strings.Join(p.Colors, ", "))
	}
	if len(p.Sizes) > 0 {
		parts = append(parts, "Sizes: "+strings.Join(p.Sizes, ", "))
	}
	if p.Price != nil {
		parts = append(parts, "Price: "+strconv.FormatFloat(*p.Price, 'f', 2, 64)+" "+p.Currency)
	}
	if p.Description != "" {
		parts = append(parts, p.Description)
	}
	return strings.Join(parts, ". ")
}
