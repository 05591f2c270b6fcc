package service

import (
	"context"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/crawler"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
)

type productStore interface {
	ListByBusiness(ctx context.Context, businessID string, states []int) ([]model.Product, error)
	ListByIdentities(ctx context.Context, businessID string, identities []string) ([]model.Product, error)
	CountByState(ctx context.Context, businessID string, state int) (int, error)
	ApplyDiff(ctx context.Context, businessID string, created, updated []model.Product, seen []string, retireAfterMisses int, now int64) ([]string, error)
	UpdateImages(ctx context.Context, businessID, identity string, images []string, mtime int64) error
}

// Diff is the outcome of reconciling one crawl's candidates against
// the stored catalog.
type Diff struct {
	Created   []model.Product
	Updated   []model.Product
	Unchanged []model.Product
	Retired   []string
	Deferred  int
}

// CatalogService owns product identity and change detection. The
// indexer reacts to the Diff it produces; nothing else writes
// product rows.
type CatalogService struct {
	products          productStore
	retireAfterMisses int
}

func NewCatalogService(products productStore, retireAfterMisses int) *CatalogService {
	return &CatalogService{
		products:          products,
		retireAfterMisses: retireAfterMisses,
	}
}

// Identity derives the stable product key: the SKU when the source
// exposes one, otherwise a hash of the canonical product URL.
func Identity(c *crawler.Candidate) string {
	if sku := strings.TrimSpace(c.SKU); sku != "" {
		return "sku:" + sku
	}
	sum := sha1.Sum([]byte(strings.TrimRight(c.URL, "/")))
	return "url:" + hex.EncodeToString(sum[:])
}

// ContentHash fingerprints the fields that matter to search. Crawls
// that change nothing produce the same hash and touch nothing
// downstream.
func ContentHash(p *model.Product) string {
	var sb strings.Builder
	price := ""
	if p.Price != nil {
		price = strconv.FormatFloat(*p.Price, 'f', 2, 64)
	}
	fields := []string{
		p.Name, p.Description, price, p.Currency, p.Category, p.Brand,
		strings.Join(p.Colors, ","), strings.Join(p.Sizes, ","),
		strings.Join(p.Images, ","), p.URL, strconv.Itoa(p.InStock),
	}
	for _, f := range fields {
		sb.WriteString(f)
		sb.WriteByte('\x1f')
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

// Upsert reconciles crawl candidates with the stored catalog under
// the tier's product capacity. New products beyond capacity are
// stored deferred so a later tier upgrade can index them without a
// recrawl. Products unseen this crawl accrue a miss and retire only
// after the configured streak.
func (s *CatalogService) Upsert(ctx context.Context, biz *model.Business, candidates []crawler.Candidate, maxProducts int, now int64) (*Diff, error) {
	existing, err := s.products.ListByBusiness(ctx, biz.ID,
		[]int{model.ProductStateActive, model.ProductStateStale, model.ProductStateDeferred})
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	byIdentity := make(map[string]*model.Product, len(existing))
	activeCount := 0
	for i := range existing {
		byIdentity[existing[i].Identity] = &existing[i]
		if existing[i].State == model.ProductStateActive {
			activeCount++
		}
	}

	diff := &Diff{}
	seen := make([]string, 0, len(candidates))
	seenSet := make(map[string]bool, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		if strings.TrimSpace(c.Name) == "" {
			continue
		}
		identity := Identity(c)
		// First extraction wins on duplicate identities within a crawl.
		if seenSet[identity] {
			continue
		}
		seenSet[identity] = true
		seen = append(seen, identity)

		next := candidateProduct(biz.ID, identity, c, now)
		prev, exists := byIdentity[identity]
		if exists {
			s.reconcileExisting(diff, prev, next, &activeCount, maxProducts, now)
			continue
		}
		if maxProducts >= 0 && activeCount >= maxProducts {
			next.State = model.ProductStateDeferred
			diff.Deferred++
		} else {
			activeCount++
		}
		next.Ctime = now
		diff.Created = append(diff.Created, *next)
	}

	retired, err := s.products.ApplyDiff(ctx, biz.ID, diff.Created, diff.Updated, seen, s.retireAfterMisses, now)
	if err != nil {
		return nil, fmt.Errorf("apply catalog diff: %w", err)
	}
	diff.Retired = retired
	return diff, nil
}

func (s *CatalogService) reconcileExisting(diff *Diff, prev *model.Product, next *model.Product, activeCount *int, maxProducts int, now int64) {
	wasActive := prev.State == model.ProductStateActive
	if prev.ContentHash == next.ContentHash && wasActive {
		diff.Unchanged = append(diff.Unchanged, *prev)
		return
	}
	// Stale and deferred products seen again come back, capacity
	// permitting.
	if !wasActive {
		if maxProducts >= 0 && *activeCount >= maxProducts {
			next.State = model.ProductStateDeferred
			diff.Deferred++
		} else {
			*activeCount++
		}
	}
	next.Ctime = prev.Ctime
	diff.Updated = append(diff.Updated, *next)
}

func candidateProduct(businessID, identity string, c *crawler.Candidate, now int64) *model.Product {
	p := &model.Product{
		BusinessID:  businessID,
		Identity:    identity,
		Name:        strings.TrimSpace(c.Name),
		Description: strings.TrimSpace(c.Description),
		Price:       c.Price,
		Currency:    c.Currency,
		Category:    strings.TrimSpace(c.Category),
		Brand:       strings.TrimSpace(c.Brand),
		Colors:      c.Colors,
		Sizes:       c.Sizes,
		Images:      c.Images,
		URL:         c.URL,
		InStock:     c.InStock,
		State:       model.ProductStateActive,
		LastSeenAt:  now,
		Mtime:       now,
	}
	if p.Price != nil && (*p.Price < 0 || *p.Price > 1e7) {
		// Out-of-range prices are extraction noise; keep the product,
		// drop the price.
		p.Price = nil
	}
	p.ContentHash = ContentHash(p)
	return p
}

// SetImages persists rewritten image references for one product. The
// content hash is left alone on purpose; it covers the source images,
// so mirrored references never register as a catalog change.
func (s *CatalogService) SetImages(ctx context.Context, businessID, identity string, images []string, now int64) error {
	return s.products.UpdateImages(ctx, businessID, identity, images, now)
}

// ActiveCount reports the indexable catalog size for quota checks.
func (s *CatalogService) ActiveCount(ctx context.Context, businessID string) (int, error) {
	return s.products.CountByState(ctx, businessID, model.ProductStateActive)
}
