package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/crawler"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
)

type businessAdminStore interface {
	Create(ctx context.Context, biz *model.Business) error
	GetByID(ctx context.Context, id string) (*model.Business, error)
	UpdateTier(ctx context.Context, id, tier string, mtime int64) error
}

// BusinessService handles onboarding and quota reporting.
type BusinessService struct {
	businesses businessAdminStore
	catalog    *CatalogService
	usage      *UsageService
	tiers      *TierService
}

func NewBusinessService(businesses businessAdminStore, catalog *CatalogService,
	usage *UsageService, tiers *TierService) *BusinessService {
	return &BusinessService{
		businesses: businesses,
		catalog:    catalog,
		usage:      usage,
		tiers:      tiers,
	}
}

// Register creates a business record, normally from the
// business-created webhook. An empty id gets generated; an unknown
// tier falls back to the default.
func (s *BusinessService) Register(ctx context.Context, id, name, websiteURL, tier string) (*model.Business, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", appErr.ErrInvalid)
	}
	if _, err := crawler.SeedRoot(websiteURL); err != nil {
		return nil, fmt.Errorf("%w: bad website url: %v", appErr.ErrInvalid, err)
	}
	if id == "" {
		id = uuid.NewString()
	}
	if !s.tiers.Known(tier) {
		tier = s.tiers.DefaultName()
	}
	now := time.Now().UnixMilli()
	biz := &model.Business{
		ID:         id,
		Name:       name,
		WebsiteURL: strings.TrimSpace(websiteURL),
		Platform:   model.PlatformUnknown,
		Tier:       strings.ToLower(strings.TrimSpace(tier)),
		State:      model.BusinessStateActive,
		Ctime:      now,
		Mtime:      now,
	}
	if err := s.businesses.Create(ctx, biz); err != nil {
		return nil, err
	}
	return biz, nil
}

func (s *BusinessService) Get(ctx context.Context, id string) (*model.Business, error) {
	return s.businesses.GetByID(ctx, id)
}

// Limits reports current usage against the business tier.
func (s *BusinessService) Limits(ctx context.Context, businessID string) (*model.UsageReport, error) {
	biz, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	indexed, err := s.catalog.ActiveCount(ctx, biz.ID)
	if err != nil {
		return nil, err
	}
	return s.usage.Report(ctx, biz, indexed)
}

func (s *BusinessService) UpdateTier(ctx context.Context, businessID, tier string) error {
	if !s.tiers.Known(tier) {
		return fmt.Errorf("%w: unknown tier: %s", appErr.ErrInvalid, tier)
	}
	return s.businesses.UpdateTier(ctx, businessID, strings.ToLower(strings.TrimSpace(tier)), time.Now().UnixMilli())
}
