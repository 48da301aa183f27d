package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwtlib "TStream/tools/security"
)

func authRouter(t *testing.T, opts jwtlib.Options) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	echo := func(c *gin.Context) {
		uid, ok := CurrentUserID(c)
		c.JSON(http.StatusOK, gin.H{"uid": uid, "authed": ok})
	}
	r.GET("/required", RequireAuth(opts), echo)
	r.GET("/optional", OptionalAuth(opts), echo)
	return r
}

func get(r *gin.Engine, path, authz string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	r.ServeHTTP(w, req)
	return w
}

func TestRequireAuth(t *testing.T) {
	opts := jwtlib.DefaultOptions([]byte("s3cr3t"))
	r := authRouter(t, opts)

	token, _, err := jwtlib.Generate(opts, 42)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(r, "/required", "Bearer "+token).Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/required", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/required", "Bearer bogus").Code)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/required", "Basic abc").Code)
}

func TestOptionalAuth(t *testing.T) {
	opts := jwtlib.DefaultOptions([]byte("s3cr3t"))
	r := authRouter(t, opts)

	token, _, err := jwtlib.Generate(opts, 42)
	require.NoError(t, err)

	// 有效令牌带上身份
	w := get(r, "/optional", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"uid":42`)

	// 缺失/无效都放行为匿名
	w = get(r, "/optional", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authed":false`)
	w = get(r, "/optional", "Bearer expired-or-garbage")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"authed":false`)

	// 头格式坏了才拒
	assert.Equal(t, http.StatusBadRequest, get(r, "/optional", "Token abc").Code)
}

func TestWrongSecretRejected(t *testing.T) {
	good := jwtlib.DefaultOptions([]byte("right"))
	bad := jwtlib.DefaultOptions([]byte("wrong"))
	r := authRouter(t, good)

	token, _, err := jwtlib.Generate(bad, 42)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, get(r, "/required", "Bearer "+token).Code)
}
