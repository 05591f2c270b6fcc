package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
)

const maxBodyBytes = 4 << 20

type FetchErrorKind string

const (
	FetchTimeout          FetchErrorKind = "timeout"
	FetchHTTPError        FetchErrorKind = "http_error"
	FetchTooManyRedirects FetchErrorKind = "too_many_redirects"
	FetchBlocked          FetchErrorKind = "blocked"
)

// FetchError carries the failure classification for a single URL so
// the orchestrator can decide between retry and skip.
type FetchError struct {
	Kind FetchErrorKind
	URL  string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Retryable reports whether re-fetching the same URL can succeed.
// Robots denials are permanent for the crawl.
func (e *FetchError) Retryable() bool {
	return e.Kind != FetchBlocked
}

var errRedirectLimit = errors.New("redirect limit reached")

type FetcherConfig struct {
	UserAgent            string
	Timeout              time.Duration
	MaxRedirects         int
	PerDomainConcurrency int
	PerDomainDelay       time.Duration
}

type domainState struct {
	slots chan struct{}
	mu    sync.Mutex
	next  time.Time
}

// Fetcher is a polite HTTP client shared by all concurrent crawls.
// It enforces per-domain concurrency and inter-request spacing, and
// consults robots.txt once per host.
type Fetcher struct {
	cfg    FetcherConfig
	client *http.Client

	mu      sync.Mutex
	domains map[string]*domainState
	robots  map[string]*robotstxt.RobotsData
}

func NewFetcher(cfg FetcherConfig) *Fetcher {
	f := &Fetcher{
		cfg:     cfg,
		domains: make(map[string]*domainState),
		robots:  make(map[string]*robotstxt.RobotsData),
	}
	f.client = &http.Client{
		Timeout: cfg.Timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= cfg.MaxRedirects {
				return errRedirectLimit
			}
			return nil
		},
	}
	return f
}

// Fetch retrieves one URL under the politeness rules. Errors are
// always *FetchError.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return nil, &FetchError{Kind: FetchHTTPError, URL: rawURL, Err: fmt.Errorf("invalid url: %v", err)}
	}
	allowed, err := f.robotsAllowed(ctx, u)
	if err != nil {
		return nil, &FetchError{Kind: FetchHTTPError, URL: rawURL, Err: err}
	}
	if !allowed {
		return nil, &FetchError{Kind: FetchBlocked, URL: rawURL, Err: errors.New("disallowed by robots.txt")}
	}
	ds := f.domain(u.Host)
	select {
	case ds.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, &FetchError{Kind: FetchTimeout, URL: rawURL, Err: ctx.Err()}
	}
	defer func() { <-ds.slots }()
	if err := f.waitTurn(ctx, ds); err != nil {
		return nil, &FetchError{Kind: FetchTimeout, URL: rawURL, Err: err}
	}
	return f.doFetch(ctx, u)
}

func (f *Fetcher) doFetch(ctx context.Context, u *url.URL) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchHTTPError, URL: u.String(), Err: err}
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(u.String(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodyBytes))
		return nil, &FetchError{
			Kind: FetchHTTPError,
			URL:  u.String(),
			Err:  fmt.Errorf("status %d", resp.StatusCode),
		}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, classifyTransportError(u.String(), err)
	}
	finalURL := u
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	return &Page{
		URL:         finalURL,
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
	}, nil
}

func classifyTransportError(rawURL string, err error) *FetchError {
	if errors.Is(err, errRedirectLimit) {
		return &FetchError{Kind: FetchTooManyRedirects, URL: rawURL, Err: err}
	}
	var ue *url.Error
	if errors.As(err, &ue) && ue.Timeout() {
		return &FetchError{Kind: FetchTimeout, URL: rawURL, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: FetchTimeout, URL: rawURL, Err: err}
	}
	return &FetchError{Kind: FetchHTTPError, URL: rawURL, Err: err}
}

func (f *Fetcher) domain(host string) *domainState {
	f.mu.Lock()
	defer f.mu.Unlock()
	ds, ok := f.domains[host]
	if !ok {
		n := f.cfg.PerDomainConcurrency
		if n <= 0 {
			n = 1
		}
		ds = &domainState{slots: make(chan struct{}, n)}
		f.domains[host] = ds
	}
	return ds
}

func (f *Fetcher) waitTurn(ctx context.Context, ds *domainState) error {
	if f.cfg.PerDomainDelay <= 0 {
		return nil
	}
	ds.mu.Lock()
	now := time.Now()
	wait := ds.next.Sub(now)
	if wait < 0 {
		wait = 0
	}
	ds.next = now.Add(wait + f.cfg.PerDomainDelay)
	ds.mu.Unlock()
	if wait == 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// robotsAllowed lazily fetches robots.txt for the host. Fetch
// failures and missing files count as allow-all.
func (f *Fetcher) robotsAllowed(ctx context.Context, u *url.URL) (bool, error) {
	f.mu.Lock()
	data, seen := f.robots[u.Host]
	f.mu.Unlock()
	if !seen {
		data = f.loadRobots(ctx, u)
		f.mu.Lock()
		f.robots[u.Host] = data
		f.mu.Unlock()
	}
	if data == nil {
		return true, nil
	}
	group := data.FindGroup(f.cfg.UserAgent)
	path := u.EscapedPath()
	if path == "" {
		path = "/"
	}
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}
	return group.Test(path), nil
}

func (f *Fetcher) loadRobots(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}

// SeedRoot normalizes a configured website URL into a crawl root.
func SeedRoot(websiteURL string) (*url.URL, error) {
	raw := strings.TrimSpace(websiteURL)
	if raw == "" {
		return nil, errors.New("empty website url")
	}
	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Host == "" {
		return nil, fmt.Errorf("website url has no host: %s", websiteURL)
	}
	u.Fragment = ""
	return u, nil
}
