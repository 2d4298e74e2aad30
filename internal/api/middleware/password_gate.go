package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const passwordChangeRequiredMessage = "password change required"

// RequirePasswordChangeCompletedMiddleware 阻止未完成改密的账号访问业务接口。
// 仅依赖 access token 内的 must_change_password 声明，避免每次请求都查库。
func RequirePasswordChangeCompletedMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetBool(mustChangePasswordKey) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": passwordChangeRequiredMessage, "kind": "forbidden"})
			return
		}
		c.Next()
	}
}

// RequireStaffMiddleware 只允许管理员通过。
func RequireStaffMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !IsStaff(c) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "staff only", "kind": "forbidden"})
			return
		}
		c.Next()
	}
}
