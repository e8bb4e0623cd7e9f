package api

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
)

const authRealm = "ImageHub"

// BasicAuthMiddleware 对站点启用 Basic Auth；public 中的路径（如 /health、/metrics）免认证
func BasicAuthMiddleware(user, pass string, public ...string) gin.HandlerFunc {
	open := make(map[string]struct{}, len(public))
	for _, p := range public {
		open[p] = struct{}{}
	}
	wantUser, wantPass := []byte(user), []byte(pass)

	return func(c *gin.Context) {
		if _, ok := open[c.Request.URL.Path]; ok {
			c.Next()
			return
		}
		if !credentialsMatch(c.Request, wantUser, wantPass) {
			c.Header("WWW-Authenticate", `Basic realm="`+authRealm+`"`)
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
		c.Next()
	}
}

// credentialsMatch 用户名和密码都做常量时间比较
func credentialsMatch(r *http.Request, user, pass []byte) bool {
	u, p, ok := r.BasicAuth()
	if !ok {
		return false
	}
	userOK := subtle.ConstantTimeCompare([]byte(u), user)
	passOK := subtle.ConstantTimeCompare([]byte(p), pass)
	return userOK&passOK == 1
}
