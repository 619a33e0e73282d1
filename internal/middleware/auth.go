// Package middleware 提供了处理 HTTP 请求的中间件。
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/jiyuchen1/AiHistory/pkg/log"
	"github.com/jiyuchen1/AiHistory/pkg/token"
)

// ClaimsKey 是认证通过后 claims 在 gin.Context 中的键。
const ClaimsKey = "claims"

// AuthMiddleware 创建一个 Gin 中间件，要求请求携带授权范围包含 scope 的 JWT。
// token 可以放在 Authorization 请求头中，也可以通过 token 查询参数传递（浏览器的 WebSocket 无法设置请求头）。
func AuthMiddleware(jwtManager *token.JWTManager, scope string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Query("token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			const bearerPrefix = "Bearer "
			if !strings.HasPrefix(authHeader, bearerPrefix) {
				abort(c, http.StatusUnauthorized, "无效的授权头格式")
				return
			}
			tokenString = strings.TrimPrefix(authHeader, bearerPrefix)
		}
		if tokenString == "" {
			abort(c, http.StatusUnauthorized, "请求未包含授权信息")
			return
		}

		claims, err := jwtManager.VerifyToken(tokenString)
		if err != nil {
			log.Warnw("令牌校验失败", "path", c.Request.URL.Path, "error", err)
			abort(c, http.StatusUnauthorized, "无效或已过期的 token")
			return
		}
		if claims.Scope != scope {
			abort(c, http.StatusForbidden, "token 没有访问该资源的权限")
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

func abort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"code": status, "level": "error", "message": message, "data": nil})
}
