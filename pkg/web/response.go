package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/trace"

	"github.com/lk2023060901/underworld/pkg/web/errors"
)

// Response 统一响应结构
type Response struct {
	Code    int    `json:"code"`             // 业务错误码，0 表示成功
	Reason  string `json:"reason,omitempty"` // 机器可读的失败原因
	Message string `json:"message"`
	Data    any    `json:"data"`
	TraceID string `json:"trace_id,omitempty"`
}

func traceID(c *gin.Context) string {
	sc := trace.SpanContextFromContext(c.Request.Context())
	if sc.HasTraceID() {
		return sc.TraceID().String()
	}
	return ""
}

// Success 成功响应
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, Response{
		Code:    errors.CodeOK,
		Message: "ok",
		Data:    data,
		TraceID: traceID(c),
	})
}

// Fail 失败响应，HTTP 状态由业务码推导，data 可携带如剩余冷却秒数等细节
func Fail(c *gin.Context, code int, reason, message string, data any) {
	c.AbortWithStatusJSON(errors.CodeToStatus(code), Response{
		Code:    code,
		Reason:  reason,
		Message: message,
		Data:    data,
		TraceID: traceID(c),
	})
}
