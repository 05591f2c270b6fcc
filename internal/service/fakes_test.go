package service

import (
	"bytes"
	"context"
	"fmt"
	"hash/fnv"
	"io"
	"net/url"
	"sort"
	"sync"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/crawler"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/model"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
)

func pkey(businessID, identity string) string {
	return businessID + "|" + identity
}

type fakeProducts struct {
	mu   sync.Mutex
	rows map[string]*model.Product
}

func newFakeProducts() *fakeProducts {
	return &fakeProducts{rows: make(map[string]*model.Product)}
}

func (f *fakeProducts) ListByBusiness(ctx context.Context, businessID string, states []int) ([]model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stateSet := make(map[int]bool, len(states))
	for _, s := range states {
		stateSet[s] = true
	}
	var out []model.Product
	for _, p := range f.rows {
		if p.BusinessID == businessID && stateSet[p.State] {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (f *fakeProducts) ListByIdentities(ctx context.Context, businessID string, identities []string) ([]model.Product, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Product
	for _, id := range identities {
		if p, ok := f.rows[pkey(businessID, id)]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeProducts) CountByState(ctx context.Context, businessID string, state int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, p := range f.rows {
		if p.BusinessID == businessID && p.State == state {
			count++
		}
	}
	return count, nil
}

func (f *fakeProducts) ApplyDiff(ctx context.Context, businessID string, created, updated []model.Product, seen []string, retireAfterMisses int, now int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range created {
		p := created[i]
		f.rows[pkey(businessID, p.Identity)] = &p
	}
	for i := range updated {
		p := updated[i]
		p.MissedCrawls = 0
		f.rows[pkey(businessID, p.Identity)] = &p
	}
	seenSet := make(map[string]bool, len(seen))
	for _, id := range seen {
		seenSet[id] = true
	}
	for _, p := range f.rows {
		if p.BusinessID == businessID && p.State == model.ProductStateActive && !seenSet[p.Identity] {
			p.MissedCrawls++
			p.Mtime = now
		}
	}
	var retired []string
	for _, p := range f.rows {
		if p.BusinessID == businessID && p.State == model.ProductStateActive && p.MissedCrawls >= retireAfterMisses {
			p.State = model.ProductStateStale
			p.Mtime = now
			retired = append(retired, p.Identity)
		}
	}
	sort.Strings(retired)
	return retired, nil
}

func (f *fakeProducts) UpdateImages(ctx context.Context, businessID, identity string, images []string, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.rows[pkey(businessID, identity)]
	if !ok {
		return appErr.ErrNotFound
	}
	p.Images = images
	p.Mtime = mtime
	return nil
}

func (f *fakeProducts) get(businessID, identity string) *model.Product {
	f.mu.Lock()
	defer f.mu.Unlock()
	if p, ok := f.rows[pkey(businessID, identity)]; ok {
		cp := *p
		return &cp
	}
	return nil
}

type fakeIndex struct {
	mu       sync.Mutex
	entries  map[string]*model.IndexEntry
	products *fakeProducts
	upserts  int
}

func newFakeIndex(products *fakeProducts) *fakeIndex {
	return &fakeIndex{entries: make(map[string]*model.IndexEntry), products: products}
}

func (f *fakeIndex) Upsert(ctx context.Context, entry *model.IndexEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *entry
	f.entries[pkey(entry.BusinessID, entry.Identity)] = &cp
	f.upserts++
	return nil
}

func (f *fakeIndex) ListByBusiness(ctx context.Context, businessID string) ([]model.IndexEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.IndexEntry
	for _, e := range f.entries {
		if e.BusinessID == businessID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out, nil
}

func (f *fakeIndex) DistinctCategories(ctx context.Context, businessID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, e := range f.entries {
		if e.BusinessID == businessID && e.Category != "" && !seen[e.Category] {
			seen[e.Category] = true
			out = append(out, e.Category)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (f *fakeIndex) ListStaleProducts(ctx context.Context, limit int) ([]model.Product, error) {
	f.products.mu.Lock()
	products := make([]*model.Product, 0, len(f.products.rows))
	for _, p := range f.products.rows {
		products = append(products, p)
	}
	f.products.mu.Unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Product
	for _, p := range products {
		if p.State != model.ProductStateActive {
			continue
		}
		e, ok := f.entries[pkey(p.BusinessID, p.Identity)]
		if ok && e.ContentHash == p.ContentHash {
			continue
		}
		out = append(out, *p)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (f *fakeIndex) get(businessID, identity string) *model.IndexEntry {
	f.mu.Lock()
	defer f.mu.Unlock()
	if e, ok := f.entries[pkey(businessID, identity)]; ok {
		cp := *e
		return &cp
	}
	return nil
}

type fakeUsage struct {
	mu       sync.Mutex
	counters map[string]*model.UsageCounter
}

func newFakeUsage() *fakeUsage {
	return &fakeUsage{counters: make(map[string]*model.UsageCounter)}
}

func (f *fakeUsage) IncrementIfBelow(ctx context.Context, businessID, period, column string, amount, limit int, now int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := businessID + "|" + period
	counter, ok := f.counters[key]
	if !ok {
		counter = &model.UsageCounter{BusinessID: businessID, Period: period}
		f.counters[key] = counter
	}
	current := 0
	switch column {
	case UsageKindConversation:
		current = counter.Conversations
	case UsageKindIndexedProduct:
		current = counter.ProductsIndexed
	default:
		return false, fmt.Errorf("unknown column: %s", column)
	}
	if limit >= 0 && current+amount > limit {
		return false, nil
	}
	switch column {
	case UsageKindConversation:
		counter.Conversations += amount
	case UsageKindIndexedProduct:
		counter.ProductsIndexed += amount
	}
	counter.Mtime = now
	return true, nil
}

func (f *fakeUsage) Get(ctx context.Context, businessID, period string) (*model.UsageCounter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.counters[businessID+"|"+period]; ok {
		cp := *c
		return &cp, nil
	}
	return &model.UsageCounter{BusinessID: businessID, Period: period}, nil
}

type fakeBusinesses struct {
	mu   sync.Mutex
	rows map[string]*model.Business
}

func newFakeBusinesses(items ...*model.Business) *fakeBusinesses {
	f := &fakeBusinesses{rows: make(map[string]*model.Business)}
	for _, b := range items {
		f.rows[b.ID] = b
	}
	return f
}

func (f *fakeBusinesses) Create(ctx context.Context, biz *model.Business) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rows[biz.ID]; ok {
		return appErr.ErrConflict
	}
	cp := *biz
	f.rows[biz.ID] = &cp
	return nil
}

func (f *fakeBusinesses) GetByID(ctx context.Context, id string) (*model.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if b, ok := f.rows[id]; ok {
		cp := *b
		return &cp, nil
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeBusinesses) ListActive(ctx context.Context) ([]model.Business, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Business
	for _, b := range f.rows {
		if b.State == model.BusinessStateActive {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeBusinesses) UpdateCrawlMeta(ctx context.Context, id, platform string, crawledAt, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return appErr.ErrNotFound
	}
	b.Platform = platform
	b.LastCrawledAt = crawledAt
	b.Mtime = mtime
	return nil
}

func (f *fakeBusinesses) UpdateTier(ctx context.Context, id, tier string, mtime int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.rows[id]
	if !ok {
		return appErr.ErrNotFound
	}
	b.Tier = tier
	b.Mtime = mtime
	return nil
}

type fakeJobs struct {
	mu   sync.Mutex
	rows map[string]*model.CrawlJob
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{rows: make(map[string]*model.CrawlJob)}
}

func (f *fakeJobs) Create(ctx context.Context, job *model.CrawlJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *job
	f.rows[job.ID] = &cp
	return nil
}

func (f *fakeJobs) Update(ctx context.Context, job *model.CrawlJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	prev, ok := f.rows[job.ID]
	if !ok || prev.Terminal() {
		return appErr.ErrNotFound
	}
	cp := *job
	f.rows[job.ID] = &cp
	return nil
}

func (f *fakeJobs) GetByID(ctx context.Context, id string) (*model.CrawlJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if j, ok := f.rows[id]; ok {
		cp := *j
		return &cp, nil
	}
	return nil, appErr.ErrNotFound
}

func (f *fakeJobs) ListByBusiness(ctx context.Context, businessID string, limit uint) ([]model.CrawlJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.CrawlJob
	for _, j := range f.rows {
		if j.BusinessID == businessID {
			out = append(out, *j)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ctime > out[j].Ctime })
	if limit > 0 && uint(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeConversations struct {
	mu    sync.Mutex
	turns []model.ConversationTurn
}

func (f *fakeConversations) Append(ctx context.Context, turn *model.ConversationTurn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.turns = append(f.turns, *turn)
	return nil
}

func (f *fakeConversations) ListRecent(ctx context.Context, businessID string, limit int) ([]model.ConversationTurn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.ConversationTurn
	for i := len(f.turns) - 1; i >= 0 && len(out) < limit; i-- {
		if f.turns[i].BusinessID == businessID {
			out = append(out, f.turns[i])
		}
	}
	return out, nil
}

func (f *fakeConversations) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.turns)
}

// countingEmbedder produces a deterministic vector per text and
// tracks call volume so tests can assert what got embedded.
type countingEmbedder struct {
	mu    sync.Mutex
	calls int
	fail  bool
}

func (f *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	f.mu.Lock()
	f.calls++
	fail := f.fail
	f.mu.Unlock()
	if fail {
		return nil, fmt.Errorf("embedder down")
	}
	h := fnv.New32a()
	h.Write([]byte(text))
	sum := h.Sum32()
	return []float32{
		float32(sum%97) + 1,
		float32(sum%31) + 1,
		float32(sum%7) + 1,
	}, nil
}

func (f *countingEmbedder) EmbeddingModelName() string {
	return "fake-embed"
}

func (f *countingEmbedder) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *countingEmbedder) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

type fakeAnswerer struct {
	mu          sync.Mutex
	fail        bool
	lastLen     int
	lastHistory []string
}

func (f *fakeAnswerer) Answer(ctx context.Context, question string, history []string, productBlocks []string, intents []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail {
		return "", fmt.Errorf("generator down")
	}
	f.lastLen = len(productBlocks)
	f.lastHistory = append([]string(nil), history...)
	return fmt.Sprintf("composed answer over %d products", len(productBlocks)), nil
}

func (f *fakeAnswerer) history() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.lastHistory...)
}

func (f *fakeAnswerer) MaxQuestionChars() int {
	return 2000
}

// fakeFileStore records saved keys and hands back stable public URLs.
type fakeFileStore struct {
	mu    sync.Mutex
	saved map[string][]byte
}

func newFakeFileStore() *fakeFileStore {
	return &fakeFileStore{saved: make(map[string][]byte)}
}

func (f *fakeFileStore) Save(ctx context.Context, key string, r io.Reader) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	f.mu.Lock()
	f.saved[key] = data
	f.mu.Unlock()
	return "https://cdn.test/" + key, nil
}

func (f *fakeFileStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	f.mu.Lock()
	data, ok := f.saved[key]
	f.mu.Unlock()
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (f *fakeFileStore) savedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.saved)
}

// fakeSite serves canned extraction results per URL without touching
// the network.
type fakeSite struct {
	mu       sync.Mutex
	strategy crawler.Strategy
	platform string
	pages    map[string]bool
	failWith map[string]*crawler.FetchError
	block    chan struct{}
	fetches  int
}

func (f *fakeSite) Fetch(ctx context.Context, rawURL string) (*crawler.Page, error) {
	f.mu.Lock()
	f.fetches++
	block := f.block
	fe := f.failWith[rawURL]
	known := f.pages[rawURL]
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	if fe != nil {
		return nil, fe
	}
	if !known {
		return nil, &crawler.FetchError{Kind: crawler.FetchHTTPError, URL: rawURL, Err: fmt.Errorf("status 404")}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &crawler.FetchError{Kind: crawler.FetchHTTPError, URL: rawURL, Err: err}
	}
	return &crawler.Page{URL: u, StatusCode: 200, ContentType: "text/html"}, nil
}

func (f *fakeSite) Detect(ctx context.Context, root *url.URL) (crawler.Strategy, string) {
	return f.strategy, f.platform
}

func (f *fakeSite) fetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fetches
}

// cannedStrategy maps fetched URLs to fixed extraction results.
type cannedStrategy struct {
	seeds   []string
	results map[string]*crawler.ExtractResult
}

func (s *cannedStrategy) Name() string {
	return "canned"
}

func (s *cannedStrategy) Seeds(root *url.URL) []string {
	return s.seeds
}

func (s *cannedStrategy) Extract(page *crawler.Page) (*crawler.ExtractResult, error) {
	if res, ok := s.results[page.URL.String()]; ok {
		return res, nil
	}
	return nil, fmt.Errorf("no extraction for %s", page.URL)
}
