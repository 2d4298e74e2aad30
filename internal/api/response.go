package api

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/AlexanderCholiy/resume-safari/internal/api/middleware"
	"github.com/AlexanderCholiy/resume-safari/internal/apperr"
	"github.com/AlexanderCholiy/resume-safari/internal/validation"
)

func Error(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"error": msg})
}

func AbortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "kind": "unauthorized"})
}

func Unauthorized(c *gin.Context)          { Error(c, http.StatusUnauthorized, "unauthorized") }
func Forbidden(c *gin.Context, msg string) { Error(c, http.StatusForbidden, msg) }
func Internal(c *gin.Context, msg string)  { Error(c, http.StatusInternalServerError, msg) }

// statusOf 把错误分类映射为 HTTP 状态码。
func statusOf(kind apperr.Kind) int {
	switch kind {
	case apperr.KindValidation, apperr.KindDuplicate, apperr.KindCapacity:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// RespondError 写出领域错误：{"error", "kind", "fields"}。
// 未分类的错误统一按 500 处理并记录日志。
func RespondError(c *gin.Context, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Internal(err, "internal error")
	}
	status := statusOf(ae.Kind)
	if status >= http.StatusInternalServerError {
		requestLogger(c).ErrorContext(c.Request.Context(), "request failed", slog.Any("error", err))
		c.JSON(status, gin.H{"error": "internal error", "kind": apperr.KindInternal})
		return
	}
	body := gin.H{"error": ae.Message, "kind": ae.Kind}
	if len(ae.Fields) > 0 {
		body["fields"] = ae.Fields
	}
	c.JSON(status, body)
}

// bindJSON 解码请求体并执行 validate 校验，失败时直接写出 400。
func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		RespondError(c, apperr.Wrap(err, apperr.KindValidation, "malformed request body"))
		return false
	}
	if err := validation.Struct(dst); err != nil {
		RespondError(c, err)
		return false
	}
	return true
}

// queryInt 读取可选的正整数查询参数，缺省返回 0。
func queryInt(c *gin.Context, name string) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, apperr.Validation(name, "must be a non-negative integer")
	}
	return v, nil
}

// queryID 读取可选的 id 查询参数。
func queryID(c *gin.Context, name string) (*uint, error) {
	v, err := queryInt(c, name)
	if err != nil || v == 0 {
		return nil, err
	}
	id := uint(v)
	return &id, nil
}

func currentUser(c *gin.Context) (uint, bool) {
	id, ok := middleware.UserID(c)
	if !ok {
		AbortUnauthorized(c)
	}
	return id, ok
}

func requestLogger(c *gin.Context) *slog.Logger {
	return middleware.LoggerFromContext(c)
}
