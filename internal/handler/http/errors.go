package http

import (
	"errors"
	"net/http"

	"collaborative-grid/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// HandleServiceError 把服务层错误映射为 HTTP 状态码
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrChannelNotFound), errors.Is(err, service.ErrUserNotInChannel):
		ErrorResponse(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrUsernameTaken):
		ErrorResponse(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidUsername), errors.Is(err, service.ErrOutOfBounds):
		ErrorResponse(c, http.StatusBadRequest, err.Error())
	default:
		logrus.WithError(err).Error("Unhandled internal server error")
		ErrorResponse(c, http.StatusInternalServerError, "An unexpected error occurred")
	}
}
