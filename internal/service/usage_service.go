package service

import (
	"context"
	"fmt"
	"time"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
)

const (
	UsageKindConversation   = "conversations"
	UsageKindIndexedProduct = "products_indexed"
)

type usageStore interface {
	IncrementIfBelow(ctx context.Context, businessID, period, column string, amount, limit int, now int64) (bool, error)
	Get(ctx context.Context, businessID, period string) (*model.UsageCounter, error)
}

// UsageService meters per-business usage by calendar month. The
// check and the increment are one atomic statement, so concurrent
// requests at the quota boundary never both pass.
type UsageService struct {
	usage usageStore
	tiers *TierService
}

func NewUsageService(usage usageStore, tiers *TierService) *UsageService {
	return &UsageService{usage: usage, tiers: tiers}
}

// Period is the UTC month bucket; counters reset by rolling to a new
// row, old rows stay for reporting.
func Period(now time.Time) string {
	return now.UTC().Format("2006-01")
}

func (s *UsageService) CheckAndIncrement(ctx context.Context, biz *model.Business, kind string, amount int) error {
	if amount <= 0 {
		return nil
	}
	tier := s.tiers.Resolve(biz.Tier)
	limit := -1
	switch kind {
	case UsageKindConversation:
		limit = tier.MaxConversations
	case UsageKindIndexedProduct:
		// Product capacity is enforced at crawl time; this counter is
		// bookkeeping only.
		limit = -1
	default:
		return fmt.Errorf("unknown usage kind: %s", kind)
	}
	now := time.Now()
	ok, err := s.usage.IncrementIfBelow(ctx, biz.ID, Period(now), kind, amount, limit, now.UnixMilli())
	if err != nil {
		return err
	}
	if !ok {
		return appErr.ErrQuotaExceeded
	}
	return nil
}

// Report summarizes the current period against the tier limits.
func (s *UsageService) Report(ctx context.Context, biz *model.Business, productsIndexed int) (*model.UsageReport, error) {
	tier := s.tiers.Resolve(biz.Tier)
	counter, err := s.usage.Get(ctx, biz.ID, Period(time.Now()))
	if err != nil {
		return nil, err
	}
	return &model.UsageReport{
		TierName:          tier.Name,
		ProductLimit:      tier.MaxProducts,
		ProductsIndexed:   productsIndexed,
		ConversationLimit: tier.MaxConversations,
		ConversationsUsed: counter.Conversations,
		ProductsExceeded:  tier.MaxProducts >= 0 && productsIndexed >= tier.MaxProducts,
		ConversationsOver: tier.MaxConversations >= 0 && counter.Conversations >= tier.MaxConversations,
	}, nil
}
