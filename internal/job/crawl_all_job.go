package job

import (
	"context"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/service"
)

// CrawlAllJob is the scheduled full refresh over every active
// business. Per-business and cross-business limits live in the crawl
// service; the job only kicks it off.
type CrawlAllJob struct {
	crawls *service.CrawlService
}

func NewCrawlAllJob(crawls *service.CrawlService) *CrawlAllJob {
	return &CrawlAllJob{crawls: crawls}
}

func (j *CrawlAllJob) Name() string {
	return "crawl_all"
}

func (j *CrawlAllJob) Run(ctx context.Context) error {
	if j.crawls == nil {
		return nil
	}
	return j.crawls.CrawlAll(ctx)
}
