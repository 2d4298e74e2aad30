package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/AlexanderCholiy/resume-safari/internal/auth"
)

const (
	userIDKey             = "userID"
	isStaffKey            = "isStaff"
	mustChangePasswordKey = "mustChangePassword"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized", "kind": "unauthorized"})
}

// bearerClaims 解析 Authorization 头中的访问令牌。没有头时 present 为 false。
func bearerClaims(c *gin.Context, authService *auth.AuthService) (claims *auth.TokenClaims, present bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return nil, false
	}
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, true
	}
	claims, err := authService.ValidateToken(parts[1])
	if err != nil || claims.TokenType != auth.TokenTypeAccess {
		return nil, true
	}
	return claims, true
}

func setClaims(c *gin.Context, claims *auth.TokenClaims) {
	c.Set(userIDKey, claims.UserID)
	c.Set(isStaffKey, claims.IsStaff)
	c.Set(mustChangePasswordKey, claims.MustChangePassword)
}

// AuthMiddleware 校验访问令牌并将用户身份注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, _ := bearerClaims(c, authService)
		if claims == nil {
			abortUnauthorized(c)
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// OptionalAuthMiddleware 允许匿名访问；携带了令牌时必须有效。
func OptionalAuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, present := bearerClaims(c, authService)
		if !present {
			c.Next()
			return
		}
		if claims == nil {
			abortUnauthorized(c)
			return
		}
		setClaims(c, claims)
		c.Next()
	}
}

// UserID 返回已认证用户的 id。
func UserID(c *gin.Context) (uint, bool) {
	id, ok := c.Get(userIDKey)
	if !ok {
		return 0, false
	}
	v, ok := id.(uint)
	return v, ok
}

// IsStaff 判断已认证用户是否为管理员。
func IsStaff(c *gin.Context) bool {
	return c.GetBool(isStaffKey)
}
