package service

import (
	"strings"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/config"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
)

// TierService resolves tier names to quota profiles. Tiers come from
// configuration; a business row only stores the name, so limit
// changes apply without touching business rows.
type TierService struct {
	tiers map[string]model.Tier
	order []string
}

func NewTierService(cfgs []config.TierConfig) *TierService {
	s := &TierService{
		tiers: make(map[string]model.Tier, len(cfgs)),
	}
	for _, c := range cfgs {
		name := strings.ToLower(strings.TrimSpace(c.Name))
		if name == "" {
			continue
		}
		if _, ok := s.tiers[name]; ok {
			continue
		}
		s.tiers[name] = model.Tier{
			Name:             name,
			MaxProducts:      c.MaxProducts,
			MaxConversations: c.MaxConversations,
			ProductsPerQuery: c.ProductsPerQuery,
		}
		s.order = append(s.order, name)
	}
	return s
}

// Resolve maps a tier name to its profile. Unknown or empty names
// fall back to the first configured tier so a business never ends up
// without limits.
func (s *TierService) Resolve(name string) model.Tier {
	key := strings.ToLower(strings.TrimSpace(name))
	if tier, ok := s.tiers[key]; ok {
		return tier
	}
	return s.tiers[s.order[0]]
}

func (s *TierService) Known(name string) bool {
	_, ok := s.tiers[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

func (s *TierService) List() []model.Tier {
	out := make([]model.Tier, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.tiers[name])
	}
	return out
}

func (s *TierService) DefaultName() string {
	return s.order[0]
}
