package security

import (
	"strings"

	"github.com/gin-gonic/gin"

	"TStream/tools/errs"
	seclib "TStream/tools/security"
)

// —— context key ——
// 下游 handler 统一用 CurrentUserID 读取
const CtxUserIDKey = "userId"

// bearerToken 取 Authorization: Bearer xxx。
// 返回 (token, malformed)：头存在但不是 Bearer 格式时 malformed=true。
func bearerToken(c *gin.Context) (string, bool) {
	authz := strings.TrimSpace(c.GetHeader("Authorization"))
	if authz == "" {
		return "", false
	}
	if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return "", true
	}
	return strings.TrimSpace(authz[len("bearer "):]), false
}

// RequireAuth 必须带有效令牌，否则 401
func RequireAuth(opts seclib.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, malformed := bearerToken(c)
		if malformed || token == "" {
			abort(c, errs.ErrUnauthorized.WithDetail("missing bearer token"))
			return
		}
		uid, err := seclib.Verify(opts, token)
		if err != nil {
			abort(c, errs.ErrUnauthorized.WithDetail("invalid token"))
			return
		}
		c.Set(CtxUserIDKey, uid)
		c.Next()
	}
}

// OptionalAuth 缺失/无效令牌一律放行（匿名视角）；只有头格式错误才拒
func OptionalAuth(opts seclib.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, malformed := bearerToken(c)
		if malformed {
			abort(c, errs.ErrValidation.WithDetail("malformed authorization header"))
			return
		}
		if token != "" {
			if uid, err := seclib.Verify(opts, token); err == nil {
				c.Set(CtxUserIDKey, uid)
			}
		}
		c.Next()
	}
}

// CurrentUserID 读取已认证身份；匿名时 ok=false
func CurrentUserID(c *gin.Context) (int64, bool) {
	v, exists := c.Get(CtxUserIDKey)
	if !exists {
		return 0, false
	}
	uid, ok := v.(int64)
	return uid, ok && uid > 0
}

func abort(c *gin.Context, err *errs.CodeError) {
	c.AbortWithStatusJSON(err.HTTPStatus(), err)
}
