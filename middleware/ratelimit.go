package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"TStream/logger"
	"TStream/service/storage"
	"TStream/tools/errs"
)

// Limiter 固定窗口限流。有 redis 走 INCR+EXPIRE（多实例共享计数），
// 没有 redis 退化为进程内窗口表；redis 出错一律放行（fail-open）。
type Limiter struct {
	rdb    *redis.Client
	window time.Duration

	mu      sync.Mutex
	local   map[string]int64
	localAt time.Time
}

func NewLimiter(rdb *redis.Client, window time.Duration) *Limiter {
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		rdb:    rdb,
		window: window,
		local:  make(map[string]int64),
	}
}

// allow 返回当前窗口内该 caller 的计数（含本次）
func (l *Limiter) allow(c *gin.Context, scope, caller string) int64 {
	if l.rdb != nil {
		n, err := storage.IncrWindow(c.Request.Context(), l.rdb, scope, caller, l.window)
		if err == nil {
			return n
		}
		logger.Warnf("[rate] redis unavailable, fail open: %v", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if now.Sub(l.localAt) >= l.window {
		l.local = make(map[string]int64)
		l.localAt = now.Truncate(l.window)
	}
	key := scope + ":" + caller
	l.local[key]++
	return l.local[key]
}

// Guard 某一类接口的限流中间件；caller 按客户端 IP 归并
func (l *Limiter) Guard(scope string, max int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if max <= 0 {
			c.Next()
			return
		}
		n := l.allow(c, scope, c.ClientIP())
		if n > max {
			c.Header("Retry-After", strconv.FormatInt(int64(l.window/time.Second), 10))
			c.AbortWithStatusJSON(errs.ErrRateLimited.HTTPStatus(),
				errs.ErrRateLimited.WithDetail("too many requests, slow down"))
			return
		}
		c.Next()
	}
}
