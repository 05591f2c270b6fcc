package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errcode"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/response"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/service"
)

type CrawlHandler struct {
	crawls *service.CrawlService
}

func NewCrawlHandler(crawls *service.CrawlService) *CrawlHandler {
	return &CrawlHandler{crawls: crawls}
}

type crawlTriggerRequest struct {
	BusinessID string `json:"business_id"`
}

func (h *CrawlHandler) Trigger(c *gin.Context) {
	var req crawlTriggerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.BusinessID == "" {
		response.Error(c, errcode.ErrInvalid, "business_id required")
		return
	}
	job, err := h.crawls.TriggerCrawl(c.Request.Context(), req.BusinessID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"job": job})
}

func (h *CrawlHandler) GetJob(c *gin.Context) {
	job, err := h.crawls.GetJob(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"job": job})
}

func (h *CrawlHandler) ListJobs(c *gin.Context) {
	businessID := c.Query("business_id")
	if businessID == "" {
		response.Error(c, errcode.ErrInvalid, "business_id required")
		return
	}
	jobs, err := h.crawls.ListJobs(c.Request.Context(), businessID, 20)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"jobs": jobs})
}

// CrawlAll runs the full refresh synchronously, same path as the
// nightly schedule. Exposed so operators can force a refresh.
func (h *CrawlHandler) CrawlAll(c *gin.Context) {
	if err := h.crawls.CrawlAll(c.Request.Context()); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}
