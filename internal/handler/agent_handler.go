package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errcode"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/response"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/service"
)

type AgentHandler struct {
	agent *service.AgentService
}

func NewAgentHandler(agent *service.AgentService) *AgentHandler {
	return &AgentHandler{agent: agent}
}

type agentAskRequest struct {
	BusinessID string `json:"business_id"`
	Question   string `json:"question"`
	K          int    `json:"k"`
}

func (h *AgentHandler) Ask(c *gin.Context) {
	var req agentAskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if req.BusinessID == "" {
		response.Error(c, errcode.ErrInvalid, "business_id required")
		return
	}
	result, err := h.agent.Ask(c.Request.Context(), req.BusinessID, req.Question, req.K)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, result)
}

func (h *AgentHandler) History(c *gin.Context) {
	businessID := c.Query("business_id")
	if businessID == "" {
		response.Error(c, errcode.ErrInvalid, "business_id required")
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	turns, err := h.agent.History(c.Request.Context(), businessID, limit)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, gin.H{"turns": turns})
}
