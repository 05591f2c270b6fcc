package model

const (
	CrawlJobPending         = "pending"
	CrawlJobRunning         = "running"
	CrawlJobSucceeded       = "succeeded"
	CrawlJobPartiallyFailed = "partially_failed"
	CrawlJobFailed          = "failed"
	CrawlJobCancelled       = "cancelled"
)

type CrawlJob struct {
	ID                string `json:"job_id"`
	BusinessID        string `json:"business_id"`
	Status            string `json:"status"`
	PagesVisited      int    `json:"pages_visited"`
	ProductsCreated   int    `json:"products_created"`
	ProductsUpdated   int    `json:"products_updated"`
	ProductsUnchanged int    `json:"products_unchanged"`
	ProductsRetired   int    `json:"products_retired"`
	ProductsDeferred  int    `json:"products_deferred"`
	ErrorCount        int    `json:"errors"`
	StartedAt         int64  `json:"started_at"`
	FinishedAt        int64  `json:"finished_at"`
	Ctime             int64  `json:"ctime"`
}

func (j *CrawlJob) Terminal() bool {
	switch j.Status {
	case CrawlJobSucceeded, CrawlJobPartiallyFailed, CrawlJobFailed, CrawlJobCancelled:
		return true
	}
	return false
}
