package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"annotation-service/backend/config"
	"annotation-service/backend/internal/attachment"
	"annotation-service/backend/internal/blob"
	"annotation-service/backend/internal/cache"
	"annotation-service/backend/internal/editor"
	"annotation-service/backend/internal/events"
	"annotation-service/backend/internal/httpapi/handlers"
	"annotation-service/backend/internal/httpapi/middleware"
	"annotation-service/backend/internal/session"
	"annotation-service/backend/internal/store"
	"annotation-service/backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("init config failed: %v", err)
	}
	log.Printf("config: port=%d redis=%v kafka=%v blob=%s", cfg.Running.Port, cfg.Redis.Addrs, cfg.Kafka.Brokers, cfg.Blob.Dir)

	// === 批注缓存：配置了 Redis 用 Redis，否则用进程内实现 ===
	var comments cache.CommentCache
	if len(cfg.Redis.Addrs) > 0 {
		rdb := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Password: cfg.Redis.Password,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Fatalf("Failed to connect to redis: %v", err)
		}
		defer rdb.Close()
		comments = cache.NewRedisComments(rdb)
	} else {
		log.Printf("redis not configured, comments are kept in memory")
		comments = cache.NewMemoryComments()
	}

	deps := session.Deps{
		Comments: comments,
		Events:   events.Discard,
		Editor: session.EditorOptions{
			Debounce:     cfg.Debounce(),
			OverflowStep: cfg.Editor.OverflowStep,
			Layout:       editor.Layout{LineHeight: cfg.Editor.LineHeight, CharWidth: cfg.Editor.CharWidth},
		},
	}

	// === MySQL：附件元数据（gorm）+ 文档快照（database/sql）===
	var uploads *attachment.Service
	if cfg.Mysql.DSN != "" {
		gdb, err := store.InitMySQL(cfg.Mysql.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		db, err := sql.Open("mysql", cfg.Mysql.DSN)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		snapshots := store.NewSnapshotStore(db)
		if err := snapshots.EnsureSchema(context.Background()); err != nil {
			log.Fatalf("Failed to create snapshot table: %v", err)
		}
		deps.Snapshots = snapshots

		blobs, err := blob.Open(cfg.Blob.Dir, nil)
		if err != nil {
			log.Fatalf("Failed to open blob store: %v", err)
		}
		defer blobs.Close()

		maxBytes, err := cfg.UploadMaxBytes()
		if err != nil {
			log.Fatalf("Invalid upload max size: %v", err)
		}
		uploads = attachment.NewService(blobs, store.NewMySQLAttachmentRepo(gdb), cfg.Blob.BaseURL, maxBytes)
		deps.Uploader = uploads
	} else {
		log.Printf("mysql not configured, uploads and snapshots are disabled")
	}

	// === Kafka：本地队列 + worker 重试发送 ===
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaCfg := sarama.NewConfig()
		// SyncProducer 必须开启 Return.Successes
		kafkaCfg.Producer.Return.Successes = true
		kafkaCfg.Producer.RequiredAcks = sarama.WaitForLocal
		producer, err := sarama.NewSyncProducer(cfg.Kafka.Brokers, kafkaCfg)
		if err != nil {
			log.Fatalf("Failed to connect kafka: %v", err)
		}
		defer producer.Close()

		dispatcher := events.NewKafkaDispatcher(
			producer,
			cfg.Kafka.Topic,
			events.NewSemaphoreControl(0),
			events.KafkaDispatcherOptions{
				QueueSize:   10_000,
				Workers:     4,
				MaxRetry:    3,
				BaseBackoff: 50 * time.Millisecond,
				MaxBackoff:  1 * time.Second,
			},
		)
		// 先于 producer.Close 执行
		defer dispatcher.Close()
		deps.Events = dispatcher
	}

	hub := ws.NewHub()
	deps.Broadcast = hub
	sessions := session.NewRegistry(deps)
	defer sessions.CloseAll()
	manager := ws.NewManager(hub, sessions)

	r := gin.New()
	// 中间件
	r.Use(gin.Logger())
	r.Use(gin.Recovery())
	r.Use(cors.New(cors.Config{
		// 允许任意来源（包含 file:// 场景的 Origin: null）
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"message": "ok"}) })

	v1 := r.Group("/v1")
	authed := v1.Group("")
	authed.Use(middleware.AuthMiddleware(cfg.Auth.Secret))
	{
		if uploads != nil {
			handlers.NewUploadHandler(uploads).Register(v1, authed)
		}
		handlers.NewCommentHandler(comments, sessions).Register(authed)
		authed.GET("/documents/:docId/ws", manager.WebSocketConnect)
	}

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Running.Port), Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Printf("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("server shutdown: %v", err)
	}
}
