package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/search"
)

const (
	OutcomeOK           = "ok"
	OutcomeNoMatches    = "no_matches"
	OutcomeCatalogEmpty = "catalog_empty"
)

type conversationStore interface {
	Append(ctx context.Context, turn *model.ConversationTurn) error
	ListRecent(ctx context.Context, businessID string, limit int) ([]model.ConversationTurn, error)
}

// AnswerClient is the slice of the AI manager the agent needs.
type AnswerClient interface {
	Answer(ctx context.Context, question string, history []string, productBlocks []string, intents []string) (string, error)
	MaxQuestionChars() int
}

type SearchOptions struct {
	StockPenalty float64
	DefaultK     int
	MaxK         int
}

type AskResult struct {
	Answer         string          `json:"answer"`
	Outcome        string          `json:"outcome"`
	Products       []model.Product `json:"products"`
	FiltersApplied search.Filters  `json:"filters_applied"`
	Intents        []string        `json:"intents"`
}

// AgentService answers product questions: parse the question into
// filters and a semantic query, retrieve over the index, rank, and
// compose a reply. Retrieval stays deterministic; only the final
// phrasing involves the generator, with a plain listing as fallback.
type AgentService struct {
	businesses    businessStore
	products      productStore
	conversations conversationStore
	indexer       *IndexService
	usage         *UsageService
	tiers         *TierService
	answerer      AnswerClient
	opts          SearchOptions
}

func NewAgentService(businesses businessStore, products productStore, conversations conversationStore,
	indexer *IndexService, usage *UsageService, tiers *TierService,
	answerer AnswerClient, opts SearchOptions) *AgentService {
	return &AgentService{
		businesses:    businesses,
		products:      products,
		conversations: conversations,
		indexer:       indexer,
		usage:         usage,
		tiers:         tiers,
		answerer:      answerer,
		opts:          opts,
	}
}

func (s *AgentService) Ask(ctx context.Context, businessID, question string, k int) (*AskResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", appErr.ErrInvalid)
	}
	if max := s.answerer.MaxQuestionChars(); max > 0 && len(question) > max {
		return nil, fmt.Errorf("%w: question exceeds %d chars", appErr.ErrInvalid, max)
	}
	biz, err := s.businesses.GetByID(ctx, businessID)
	if err != nil {
		return nil, err
	}
	if err := s.usage.CheckAndIncrement(ctx, biz, UsageKindConversation, 1); err != nil {
		return nil, err
	}

	logger := logutil.GetLogger(ctx).With(zap.String("business_id", biz.ID))
	entries, err := s.freshEntries(ctx, biz.ID)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		result := &AskResult{
			Answer:   "The product catalog is empty right now. Please check back after the next catalog refresh.",
			Outcome:  OutcomeCatalogEmpty,
			Products: []model.Product{},
			Intents:  []string{search.IntentSearch},
		}
		s.logTurn(ctx, biz.ID, question, result)
		return result, nil
	}

	vocab, err := s.indexer.Categories(ctx, biz.ID)
	if err != nil {
		logger.Warn("load category vocab failed", zap.Error(err))
	}
	parsed := search.ParseQuestion(question, vocab)

	queryVec, err := s.indexer.EmbedQuery(ctx, parsed.SemanticQuery)
	if err != nil {
		// Filters and recency still order results without a vector.
		logger.Warn("query embed failed, filter-only ranking", zap.Error(err))
		queryVec = nil
	}

	filtered := search.ApplyFilters(entries, parsed.Filters)
	ranked := search.Rank(filtered, queryVec, s.limit(biz, k), s.opts.StockPenalty)
	products, err := s.rankedProducts(ctx, biz.ID, ranked)
	if err != nil {
		return nil, err
	}

	outcome := OutcomeOK
	if len(products) == 0 {
		outcome = OutcomeNoMatches
	}
	result := &AskResult{
		Outcome:        outcome,
		Products:       products,
		FiltersApplied: parsed.Filters,
		Intents:        parsed.Intents,
	}
	result.Answer = s.composeAnswer(ctx, biz.ID, question, result)
	s.logTurn(ctx, biz.ID, question, result)
	return result, nil
}

func (s *AgentService) History(ctx context.Context, businessID string, limit int) ([]model.ConversationTurn, error) {
	if _, err := s.businesses.GetByID(ctx, businessID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.conversations.ListRecent(ctx, businessID, limit)
}

// freshEntries returns index entries that are in step with their
// product. A stale entry is re-embedded on the spot; if that fails
// the product sits this query out rather than matching on old data.
func (s *AgentService) freshEntries(ctx context.Context, businessID string) ([]model.IndexEntry, error) {
	products, err := s.products.ListByBusiness(ctx, businessID, []int{model.ProductStateActive})
	if err != nil {
		return nil, err
	}
	if len(products) == 0 {
		return nil, nil
	}
	byIdentity := make(map[string]*model.Product, len(products))
	for i := range products {
		byIdentity[products[i].Identity] = &products[i]
	}

	entries, err := s.indexer.Entries(ctx, businessID)
	if err != nil {
		return nil, err
	}
	logger := logutil.GetLogger(ctx)
	fresh := make([]model.IndexEntry, 0, len(entries))
	indexed := make(map[string]bool, len(entries))
	for i := range entries {
		e := entries[i]
		p, ok := byIdentity[e.Identity]
		if !ok {
			// Stale or retired product, not searchable.
			continue
		}
		indexed[e.Identity] = true
		if p.ContentHash == e.ContentHash {
			fresh = append(fresh, e)
			continue
		}
		updated, err := s.indexer.IndexProduct(ctx, p)
		if err != nil {
			logger.Warn("stale entry re-embed failed, excluded from results",
				zap.String("identity", e.Identity), zap.Error(err))
			continue
		}
		fresh = append(fresh, *updated)
	}
	// Active products the indexer has not caught up with yet.
	for i := range products {
		p := &products[i]
		if indexed[p.Identity] {
			continue
		}
		entry, err := s.indexer.IndexProduct(ctx, p)
		if err != nil {
			logger.Warn("missing entry embed failed, excluded from results",
				zap.String("identity", p.Identity), zap.Error(err))
			continue
		}
		fresh = append(fresh, *entry)
	}
	return fresh, nil
}

func (s *AgentService) limit(biz *model.Business, k int) int {
	if k <= 0 {
		k = s.opts.DefaultK
	}
	if s.opts.MaxK > 0 && k > s.opts.MaxK {
		k = s.opts.MaxK
	}
	tier := s.tiers.Resolve(biz.Tier)
	if tier.ProductsPerQuery > 0 && k > tier.ProductsPerQuery {
		k = tier.ProductsPerQuery
	}
	return k
}

// rankedProducts loads full product rows in ranked order.
func (s *AgentService) rankedProducts(ctx context.Context, businessID string, ranked []search.Scored) ([]model.Product, error) {
	if len(ranked) == 0 {
		return []model.Product{}, nil
	}
	identities := make([]string, 0, len(ranked))
	for _, r := range ranked {
		identities = append(identities, r.Entry.Identity)
	}
	rows, err := s.products.ListByIdentities(ctx, businessID, identities)
	if err != nil {
		return nil, err
	}
	byIdentity := make(map[string]*model.Product, len(rows))
	for i := range rows {
		byIdentity[rows[i].Identity] = &rows[i]
	}
	out := make([]model.Product, 0, len(ranked))
	for _, r := range ranked {
		if p, ok := byIdentity[r.Entry.Identity]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *AgentService) composeAnswer(ctx context.Context, businessID, question string, result *AskResult) string {
	blocks := make([]string, 0, len(result.Products))
	for i := range result.Products {
		blocks = append(blocks, productBlock(&result.Products[i]))
	}
	answer, err := s.answerer.Answer(ctx, question, s.recentHistory(ctx, businessID), blocks, result.Intents)
	if err == nil {
		return answer
	}
	logutil.GetLogger(ctx).Warn("answer generation failed, using listing fallback", zap.Error(err))
	return fallbackAnswer(result)
}

// recentHistory renders the last few turns oldest-first for the
// answer prompt. History only flavors phrasing, never retrieval, so a
// load failure just means a history-free prompt.
func (s *AgentService) recentHistory(ctx context.Context, businessID string) []string {
	turns, err := s.conversations.ListRecent(ctx, businessID, 3)
	if err != nil {
		logutil.GetLogger(ctx).Warn("load conversation history failed", zap.Error(err))
		return nil
	}
	out := make([]string, 0, len(turns)*2)
	for i := len(turns) - 1; i >= 0; i-- {
		out = append(out, "User: "+turns[i].Question, "Assistant: "+turns[i].Answer)
	}
	return out
}

func productBlock(p *model.Product) string {
	var sb strings.Builder
	sb.WriteString("- " + p.Name)
	if p.Price != nil {
		fmt.Fprintf(&sb, " (%.2f %s)", *p.Price, p.Currency)
	}
	switch p.InStock {
	case model.StockIn:
		sb.WriteString(" [in stock]")
	case model.StockOut:
		sb.WriteString(" [out of stock]")
	}
	if len(p.Colors) > 0 {
		sb.WriteString(" colors: " + strings.Join(p.Colors, "/"))
	}
	if len(p.Sizes) > 0 {
		sb.WriteString(" sizes: " + strings.Join(p.Sizes, "/"))
	}
	if p.Description != "" {
		desc := p.Description
		if len(desc) > 200 {
			desc = desc[:200]
		}
		sb.WriteString(" " + desc)
	}
	return sb.String()
}

// fallbackAnswer is the deterministic reply used when no generator
// is configured or it fails.
func fallbackAnswer(result *AskResult) string {
	if len(result.Products) == 0 {
		return "No products matched your question. Try loosening the price range or removing a color or size."
	}
	var sb strings.Builder
	sb.WriteString("Here is what matched:\n")
	for i := range result.Products {
		sb.WriteString(productBlock(&result.Products[i]))
		sb.WriteByte('\n')
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (s *AgentService) logTurn(ctx context.Context, businessID, question string, result *AskResult) {
	identities := make([]string, 0, len(result.Products))
	for i := range result.Products {
		identities = append(identities, result.Products[i].Identity)
	}
	turn := &model.ConversationTurn{
		ID:         uuid.NewString(),
		BusinessID: businessID,
		Question:   question,
		Answer:     result.Answer,
		ProductIDs: identities,
		Ctime:      time.Now().UnixMilli(),
	}
	if err := s.conversations.Append(ctx, turn); err != nil {
		logutil.GetLogger(ctx).Warn("conversation log failed", zap.Error(err))
	}
}
