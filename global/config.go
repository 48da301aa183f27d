package global

import (
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"TStream/tools"
	"TStream/tools/ids"
)

// AppConfig 引擎全部配置。来源是扁平 ENV，经 mapstructure 解码，
// 缺省值内置，单测可直接构造。
type AppConfig struct {
	HTTPAddr    string `mapstructure:"HTTP_ADDR"`
	DatabaseURL string `mapstructure:"DATABASE_URL"` // 为空 => 内存存储（本地/单测）

	RedisAddr     string `mapstructure:"REDIS_ADDR"` // 为空 => 限流退化为进程内窗口
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	RedisDB       int    `mapstructure:"REDIS_DB"`

	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"` // 逗号分隔；为空 => 进程内直连路由
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`

	JWTSecret string `mapstructure:"JWT_SECRET"`
	JWTTTLMin int    `mapstructure:"JWT_TTL_MIN"`

	RateWindowMin  int `mapstructure:"RATE_WINDOW_MIN"`
	RateMaxGeneral int `mapstructure:"RATE_MAX_GENERAL"`
	RateMaxAuth    int `mapstructure:"RATE_MAX_AUTH"`

	NodeID       int64 `mapstructure:"NODE_ID"`
	PublishQueue int   `mapstructure:"PUBLISH_QUEUE"` // 事件发布队列容量
	SendQueue    int   `mapstructure:"SEND_QUEUE"`    // 每连接下行队列容量
}

var configKeys = []string{
	"HTTP_ADDR", "DATABASE_URL",
	"REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB",
	"KAFKA_BROKERS", "KAFKA_GROUP_ID",
	"JWT_SECRET", "JWT_TTL_MIN",
	"RATE_WINDOW_MIN", "RATE_MAX_GENERAL", "RATE_MAX_AUTH",
	"NODE_ID", "PUBLISH_QUEUE", "SEND_QUEUE",
}

func Default() AppConfig {
	return AppConfig{
		HTTPAddr:       ":8080",
		KafkaGroupID:   "feed-router",
		JWTSecret:      "mN9b1f8zPq+W2xjX/45sKcVd0TfyoG+3Hp5Z8q9Rj1o=",
		JWTTTLMin:      120,
		RateWindowMin:  15,
		RateMaxGeneral: 100,
		RateMaxAuth:    5,
		NodeID:         1,
		PublishQueue:   1024,
		SendQueue:      64,
	}
}

// Load 读 ENV 覆盖默认值。WeaklyTypedInput: ENV 全是字符串，交给 mapstructure 转
func Load() (AppConfig, error) {
	cfg := Default()
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, err
	}
	if err := dec.Decode(tools.EnvMap(configKeys...)); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c AppConfig) JWTSecretBytes() []byte { return []byte(c.JWTSecret) }

func (c AppConfig) JWTTTL() time.Duration {
	if c.JWTTTLMin <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.JWTTTLMin) * time.Minute
}

func (c AppConfig) RateWindow() time.Duration {
	if c.RateWindowMin <= 0 {
		return 15 * time.Minute
	}
	return time.Duration(c.RateWindowMin) * time.Minute
}

func (c AppConfig) Brokers() []string {
	if strings.TrimSpace(c.KafkaBrokers) == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ConfigIds 节点ID注入雪花生成器
func ConfigIds(c AppConfig) {
	ids.SetNodeID(c.NodeID)
}
