package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis 只承担两件事：固定窗口计数（限流）与在线状态。
// 社交图谱本体永远不进 Redis。

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func DialRedis(c RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr, Password: c.Password, DB: c.DB})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, errors.Wrap(err, "redis ping")
	}
	return rdb, nil
}

// ===== 固定窗口计数 =====

// windowKey: ts:rate:<scope>:<caller>:<窗口起点秒>
func windowKey(scope, caller string, window time.Duration, now time.Time) string {
	start := now.Unix() - now.Unix()%int64(window.Seconds())
	return fmt.Sprintf("ts:rate:%s:%s:%d", scope, caller, start)
}

// IncrWindow 窗口内计数 +1 并返回当前值；首次命中时给 key 挂上窗口 TTL
func IncrWindow(ctx context.Context, rdb *redis.Client, scope, caller string, window time.Duration) (int64, error) {
	key := windowKey(scope, caller, window, time.Now())
	pipe := rdb.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, errors.Wrap(err, "rate window incr")
	}
	return incr.Val(), nil
}

// ===== 在线状态 =====

// presence key: ts:presence:<user>，值为网关节点ID，TTL 控制在线有效期
func presenceKey(userID int64) string { return fmt.Sprintf("ts:presence:%d", userID) }

// PresenceOnline 标记用户在线并续 TTL
func PresenceOnline(ctx context.Context, rdb *redis.Client, userID int64, gatewayID string, ttl time.Duration) error {
	if rdb == nil {
		return nil
	}
	return rdb.Set(ctx, presenceKey(userID), gatewayID, ttl).Err()
}

// PresenceOffline 主动下线（删 key）
func PresenceOffline(ctx context.Context, rdb *redis.Client, userID int64) error {
	if rdb == nil {
		return nil
	}
	return rdb.Del(ctx, presenceKey(userID)).Err()
}

// PresenceLookup 查询用户是否在线
func PresenceLookup(ctx context.Context, rdb *redis.Client, userID int64) (gatewayID string, online bool, err error) {
	if rdb == nil {
		return "", false, nil
	}
	val, err := rdb.Get(ctx, presenceKey(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return val, true, nil
}
