package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/response"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/service"
)

type TierHandler struct {
	tiers *service.TierService
}

func NewTierHandler(tiers *service.TierService) *TierHandler {
	return &TierHandler{tiers: tiers}
}

func (h *TierHandler) List(c *gin.Context) {
	response.Success(c, gin.H{"tiers": h.tiers.List()})
}
