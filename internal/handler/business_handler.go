package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errcode"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/response"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/service"
)

type BusinessHandler struct {
	businesses *service.BusinessService
	crawls     *service.CrawlService
}

func NewBusinessHandler(businesses *service.BusinessService, crawls *service.CrawlService) *BusinessHandler {
	return &BusinessHandler{businesses: businesses, crawls: crawls}
}

type businessCreatedRequest struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	WebsiteURL string `json:"website_url"`
	Tier       string `json:"tier"`
}

// Created handles the business-created webhook: register the business
// and kick off its first crawl. The crawl runs in the background; a
// busy crawler just means the first refresh lands a little later.
func (h *BusinessHandler) Created(c *gin.Context) {
	var req businessCreatedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	biz, err := h.businesses.Register(c.Request.Context(), req.ID, req.Name, req.WebsiteURL, req.Tier)
	if err != nil {
		handleError(c, err)
		return
	}
	status := "crawl_scheduled"
	job, err := h.crawls.TriggerCrawl(c.Request.Context(), biz.ID)
	if err != nil {
		status = "registered"
		logutil.GetLogger(c.Request.Context()).Warn("initial crawl not started",
			zap.String("business_id", biz.ID), zap.Error(err))
	}
	response.Success(c, gin.H{"business_id": biz.ID, "status": status, "job": job})
}

func (h *BusinessHandler) Get(c *gin.Context) {
	biz, err := h.businesses.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"business": biz})
}

func (h *BusinessHandler) Limits(c *gin.Context) {
	report, err := h.businesses.Limits(c.Request.Context(), c.Param("business_id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"limits": report})
}

type businessTierRequest struct {
	Tier string `json:"tier"`
}

func (h *BusinessHandler) UpdateTier(c *gin.Context) {
	var req businessTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if err := h.businesses.UpdateTier(c.Request.Context(), c.Param("id"), req.Tier); err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{})
}
