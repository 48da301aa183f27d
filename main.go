package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"TStream/global"
	"TStream/logger"
	"TStream/middleware"
	authmw "TStream/middleware/security"
	"TStream/module/event"
	graphhandler "TStream/module/graph"
	graphsvc "TStream/module/graph/service"
	tweethandler "TStream/module/tweet"
	tweetsvc "TStream/module/tweet/service"
	userhandler "TStream/module/user"
	usersvc "TStream/module/user/service"
	"TStream/service/feed"
	"TStream/service/kafka"
	"TStream/service/storage"
	jwtlib "TStream/tools/security"
)

func main() {
	cfg, err := global.Load()
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}
	global.ConfigIds(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- 存储：有 DATABASE_URL 走 pg，否则纯内存 ----
	var store storage.Store
	if cfg.DatabaseURL != "" {
		pg, err := storage.NewPGStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatalf("connect postgres: %v", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			logger.Fatalf("ensure schema: %v", err)
		}
		store = pg
		logger.Infof("[boot] storage=postgres")
	} else {
		store = storage.NewMemoryStore()
		logger.Infof("[boot] storage=memory (no DATABASE_URL)")
	}
	defer store.Close()

	// ---- redis：限流窗口 + 在线状态；连不上就裸跑 ----
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb, err = storage.DialRedis(storage.RedisConfig{
			Addr: cfg.RedisAddr, Password: cfg.RedisPassword, DB: cfg.RedisDB,
		})
		if err != nil {
			logger.Warnf("[boot] redis unavailable, rate limit falls back to local: %v", err)
			rdb = nil
		}
	}

	// ---- 实时侧：注册表 + 路由器 ----
	registry := feed.NewRegistry(cfg.SendQueue)
	router := feed.NewRouter(registry, store)

	// ---- 事件总线：有 broker 走 sarama，否则进程内回环 ----
	var sink kafka.Sink
	brokers := cfg.Brokers()
	if len(brokers) > 0 {
		kcfg := kafka.DefaultConfig(brokers, cfg.KafkaGroupID)
		if err := kafka.EnsureTopics(kcfg, event.Topics()); err != nil {
			logger.Fatalf("ensure topics: %v", err)
		}
		client, err := kafka.NewClient(kcfg)
		if err != nil {
			logger.Fatalf("kafka client: %v", err)
		}
		saramaSink, err := kafka.NewSaramaSink(client)
		if err != nil {
			logger.Fatalf("kafka producer: %v", err)
		}
		defer saramaSink.Close()
		sink = saramaSink

		reg := kafka.NewHandlerRegistry()
		reg.RegisterAll(event.Topics(), router.HandleMessage)
		if err := kafka.StartConsumerGroup(ctx, kcfg, event.Topics(), reg); err != nil {
			logger.Fatalf("start consumer group: %v", err)
		}
		logger.Infof("[boot] event log=kafka brokers=%v group=%s", brokers, cfg.KafkaGroupID)
	} else {
		reg := kafka.NewHandlerRegistry()
		reg.RegisterAll(event.Topics(), router.HandleMessage)
		sink = &kafka.LoopbackSink{Registry: reg}
		logger.Infof("[boot] event log=loopback (no KAFKA_BROKERS)")
	}

	pub := kafka.NewPublisher(sink, cfg.PublishQueue)
	defer pub.Close()

	// ---- 业务服务 ----
	jwtOpts := jwtlib.DefaultOptions(cfg.JWTSecretBytes())
	jwtOpts.TTL = cfg.JWTTTL()

	users := usersvc.NewUserService(store, pub, jwtOpts)
	tweets := tweetsvc.NewTweetService(store, pub)
	graph := graphsvc.NewGraphService(store, pub)
	gateway := feed.NewGateway(registry, jwtOpts, rdb)

	uh := userhandler.NewHandler(users)
	th := tweethandler.NewHandler(tweets)
	gh := graphhandler.NewHandler(graph)

	// ---- HTTP 路由 ----
	limiter := middleware.NewLimiter(rdb, cfg.RateWindow())
	requireAuth := authmw.RequireAuth(jwtOpts)
	optionalAuth := authmw.OptionalAuth(jwtOpts)
	guardAuth := limiter.Guard("auth", int64(cfg.RateMaxAuth))
	guardGeneral := limiter.Guard("general", int64(cfg.RateMaxGeneral))

	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery(), middleware.CORS())

	r.GET("/healthz", func(c *gin.Context) {
		if err := store.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/stats", uh.Stats)
	r.GET("/ws", gateway.HandleWS)

	r.POST("/auth/register", guardAuth, uh.Register)
	r.POST("/auth/login", guardAuth, uh.Login)

	r.GET("/users/:id", uh.GetUser)
	r.GET("/users/:id/followers", uh.ListFollowers)
	r.GET("/users/:id/following", uh.ListFollowing)
	r.GET("/users/:id/tweets", optionalAuth, th.UserTweets)
	r.POST("/users/:id/follow", guardGeneral, requireAuth, gh.ToggleFollow)

	r.GET("/feed", requireAuth, th.PersonalFeed)

	r.GET("/tweets", optionalAuth, th.PublicFeed)
	r.POST("/tweets", guardGeneral, requireAuth, th.Create)
	r.GET("/tweets/:id", optionalAuth, th.Get)
	r.DELETE("/tweets/:id", guardGeneral, requireAuth, th.Delete)
	r.POST("/tweets/:id/like", guardGeneral, requireAuth, gh.ToggleLike)
	r.POST("/tweets/:id/retweet", guardGeneral, requireAuth, gh.ToggleRetweet)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		logger.Infof("[boot] listening on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("http serve: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("[boot] shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutCtx)
}
