package main

import (
	"fmt"
	"log"
	"time"

	"context"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"otserver/internal/auth"
	"otserver/internal/cache"
	"otserver/internal/collab"
	"otserver/internal/config"
	"otserver/internal/httpapi/handlers"
	"otserver/internal/store"
	"otserver/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config loaded: port=%d", cfg.Running.Port)

	auth.SetSecret(cfg.Auth.Secret)

	gdb, err := store.InitMySQL(cfg.Mysql.DSN)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		log.Fatalf("Failed to get sql.DB: %v", err)
	}
	defer sqlDB.Close()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
	})
	if err = rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("Failed to connect to redis: %v", err)
	}
	defer rdb.Close()

	// === 初始化 Kafka Producer ===
	kafkaCfg := sarama.NewConfig()
	// SyncProducer 必须开启 Return.Successes
	kafkaCfg.Producer.Return.Successes = true
	kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
	if err != nil {
		log.Fatalf("Failed to connect kafka: %v", err)
	}
	defer producer.Close()

	// Kafka 本地队列 + worker 重试发送
	kafkaSem := collab.NewSemaphoreControl(cfg.Collab.MaxInflight)
	dispatcher := collab.NewKafkaDispatcher(producer, cfg.Kafka.Topic, kafkaSem, collab.KafkaDispatcherOptions{
		QueueSize:   10_000,
		Workers:     4,
		MaxRetry:    3,
		BaseBackoff: 50 * time.Millisecond,
		MaxBackoff:  1 * time.Second,
	})
	defer dispatcher.Close()

	snapshotCache := cache.NewRedisSnapshot(rdb, time.Duration(cfg.Redis.SnapshotTTL)*time.Second)
	snapshotHistory := store.NewSnapshotHistory(sqlDB)
	registry := store.NewDocumentRegistry(sqlDB)

	engine := collab.NewEngine(store.NewGormStore(gdb), collab.EngineOptions{
		Cache:      snapshotCache,
		Snapshots:  snapshotHistory,
		Dispatcher: dispatcher,
		DiffWindow: cfg.Collab.DiffWindow,
	})

	hub := ws.NewHub()
	wsSem := collab.NewSemaphoreControl(cfg.Collab.MaxInflight)
	manager := ws.NewManager(hub, engine, registry, wsSem)

	authHandler := auth.NewHandler(sqlDB,
		time.Duration(cfg.Auth.AccessTTL)*time.Minute,
		time.Duration(cfg.Auth.RefreshTTL)*time.Hour)
	collabHandler := handlers.NewCollabHandler(engine, registry)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// 全局 CORS 中间件
	r.Use(cors.New(cors.Config{
		// 允许任意来源（包含 file:// 场景的 Origin: null）
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	v1 := r.Group("/v1")
	{
		v1.POST("/auth/register", authHandler.Register)
		v1.POST("/auth/login", authHandler.Login)
		v1.POST("/auth/refresh", authHandler.Refresh)
		v1.POST("/auth/verify", authHandler.Verify)
	}

	protected := v1.Group("")
	protected.Use(auth.Middleware())
	{
		protected.POST("/docs", collabHandler.CreateDocument)
		protected.GET("/docs/:docID", collabHandler.GetDocument)
		protected.POST("/docs/:docID/ops", collabHandler.SubmitOp)
		protected.POST("/docs/:docID/ops/batch", collabHandler.SubmitBatch)
		protected.POST("/docs/:docID/rebase", collabHandler.Rebase)
		protected.POST("/docs/:docID/rollback", auth.RequireRole("admin"), collabHandler.Rollback)
		protected.POST("/diff", collabHandler.Diff)
		protected.GET("/ws", manager.WebSocketConnect)
	}

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	_ = r.Run(fmt.Sprintf(":%d", cfg.Running.Port))
}
