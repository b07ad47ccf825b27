package middleware

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httputil"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/lk2023060901/underworld/pkg/logger"
)

// PanicReporter panic 上报函数
type PanicReporter func(ctx context.Context, recovered any)

// Recovery 异常恢复中间件
func Recovery(l logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}

			httpRequest, _ := httputil.DumpRequest(c.Request, false)
			if isBrokenPipe(rec) {
				l.Error("http broken pipe", "error", rec, "request", string(httpRequest))
				if err, ok := rec.(error); ok {
					_ = c.Error(err)
				}
				c.Abort()
				return
			}

			l.Error("http recovery from panic", "error", rec, "request", string(httpRequest))
			c.AbortWithStatus(http.StatusInternalServerError)
		}()
		c.Next()
	}
}

// ReportPanic 上报后继续向外抛出，交给 Recovery 处理
func ReportPanic(report PanicReporter) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				report(c.Request.Context(), rec)
				panic(rec)
			}
		}()
		c.Next()
	}
}

func isBrokenPipe(rec any) bool {
	err, ok := rec.(error)
	if !ok {
		return false
	}
	var ne *net.OpError
	if !errors.As(err, &ne) {
		return false
	}
	var se *os.SyscallError
	if !errors.As(ne.Err, &se) {
		return false
	}
	msg := strings.ToLower(se.Error())
	return strings.Contains(msg, "broken pipe") || strings.Contains(msg, "connection reset by peer")
}
