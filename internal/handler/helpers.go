package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errcode"
	appErr "github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/errors"
	"github.com/diamond8oliver/AI-Agents-Local-Businesses-Fall-2025/internal/pkg/response"
)

func handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, errcode.ErrNotFound, err.Error())
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, errcode.ErrConflict, err.Error())
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, errcode.ErrTooMany, err.Error())
	case errors.Is(err, appErr.ErrQuotaExceeded):
		response.Error(c, errcode.ErrQuotaExceeded, err.Error())
	case errors.Is(err, appErr.ErrCrawlActive):
		response.Error(c, errcode.ErrCrawlActive, err.Error())
	default:
		response.Error(c, errcode.ErrInternal, "internal error")
	}
}
