package web

import (
	"github.com/gin-gonic/gin"

	"github.com/lk2023060901/underworld/pkg/web/errors"
)

// BindAndValidate 绑定请求参数并校验，失败时已写入响应
func BindAndValidate(c *gin.Context, obj any) bool {
	if err := c.ShouldBind(obj); err != nil {
		Fail(c, errors.CodeInvalidParams, "invalid_argument", err.Error(), nil)
		return false
	}
	return true
}

// BindURI 绑定路径参数并校验
func BindURI(c *gin.Context, obj any) bool {
	if err := c.ShouldBindUri(obj); err != nil {
		Fail(c, errors.CodeInvalidParams, "invalid_argument", err.Error(), nil)
		return false
	}
	return true
}
