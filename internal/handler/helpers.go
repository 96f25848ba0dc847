package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/quizpack/internal/middleware"
	"github.com/xxxsen/quizpack/internal/pkg/errcode"
	appErr "github.com/xxxsen/quizpack/internal/pkg/errors"
	"github.com/xxxsen/quizpack/internal/pkg/response"
)

func getUserID(c *gin.Context) string {
	return c.GetString(middleware.ContextUserIDKey)
}

func handleError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	logutil.GetLogger(c.Request.Context()).Warn("request failed",
		zap.String("request_id", c.GetString(middleware.ContextRequestIDKey)),
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("user_id", getUserID(c)),
		zap.Error(err))

	var ie *appErr.ImportError
	switch {
	case errors.As(err, &ie):
		response.Fail(c, importStatus(ie.Kind), response.APIError{
			Code:    errcode.ForKind(ie.Kind),
			Kind:    string(ie.Kind),
			Message: ie.Msg,
			Hint:    ie.Kind.Hint(),
		})
	case errors.Is(err, appErr.ErrUnauthorized):
		response.Error(c, http.StatusUnauthorized, errcode.ErrUnauthorized, "unauthorized")
	case errors.Is(err, appErr.ErrForbidden):
		response.Error(c, http.StatusForbidden, errcode.ErrForbidden, "forbidden")
	case errors.Is(err, appErr.ErrNotFound):
		response.Error(c, http.StatusNotFound, errcode.ErrNotFound, "not found")
	case errors.Is(err, appErr.ErrInvalid):
		response.Error(c, http.StatusBadRequest, errcode.ErrInvalid, err.Error())
	case errors.Is(err, appErr.ErrConflict):
		response.Error(c, http.StatusConflict, errcode.ErrConflict, err.Error())
	case errors.Is(err, appErr.ErrTooMany):
		response.Error(c, http.StatusTooManyRequests, errcode.ErrTooMany, "too many requests")
	default:
		response.Error(c, http.StatusInternalServerError, errcode.ErrInternal, "internal error")
	}
}

func importStatus(kind appErr.Kind) int {
	switch kind {
	case appErr.KindUnsupportedFormat:
		return http.StatusUnsupportedMediaType
	case appErr.KindTooLarge:
		return http.StatusRequestEntityTooLarge
	case appErr.KindInternal:
		return http.StatusInternalServerError
	}
	return http.StatusUnprocessableEntity
}

// position reads an optional insert position; absent means append.
func position(p *int) int {
	if p == nil {
		return -1
	}
	return *p
}

func formatUploadLimit(bytes int64) string {
	const mb = 1024 * 1024
	if bytes <= 0 {
		return "0MB"
	}
	value := bytes / mb
	if value <= 0 {
		value = 1
	}
	return strconv.FormatInt(value, 10) + "MB"
}
