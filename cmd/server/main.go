// Package main is the application entry point.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"partychat-go/internal/cache"
	"partychat-go/internal/config"
	"partychat-go/internal/handler"
	"partychat-go/internal/middleware"
	"partychat-go/internal/model"
	"partychat-go/internal/repository"
	"partychat-go/internal/service"
	"partychat-go/pkg/database"
	"partychat-go/pkg/embedding"
	"partychat-go/pkg/kafka"
	"partychat-go/pkg/llm"
	"partychat-go/pkg/log"
	"partychat-go/pkg/storage"
	"partychat-go/pkg/tika"
	"partychat-go/pkg/token"
)

func main() {
	config.Init("./configs/config.yaml")
	cfg := config.Conf

	log.Init(cfg.Log.Level, cfg.Log.Format, cfg.Log.OutputPath)
	defer log.Sync()
	log.Info("logger initialized")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(cfg.Database.Postgres.DSN)
	if err != nil {
		log.Fatalf("postgres connection failed: %v", err)
	}
	if err := db.AutoMigrate(
		&model.User{},
		&model.Party{},
		&model.PartyProgram{},
		&model.ProgramChunk{},
		&model.ProgramEmbedding{},
	); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	rdb, err := database.NewRedis(rootCtx, cfg.Database.Redis.Addr, cfg.Database.Redis.Password, cfg.Database.Redis.DB)
	if err != nil {
		log.Fatalf("redis connection failed: %v", err)
	}

	storageClient, err := storage.NewClient(rootCtx, cfg.MinIO)
	if err != nil {
		log.Fatalf("object storage initialization failed: %v", err)
	}
	producer := kafka.NewProducer(cfg.Kafka)
	defer producer.Close()

	userRepo := repository.NewUserRepository(db)
	partyRepo := repository.NewPartyRepository(db)
	programRepo := repository.NewProgramRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	embeddingRepo := repository.NewEmbeddingRepository(db)
	conversationRepo := repository.NewConversationRepository(rdb)

	if len(cfg.Parties) > 0 {
		seed := make([]model.Party, 0, len(cfg.Parties))
		for _, p := range cfg.Parties {
			seed = append(seed, model.Party{Name: p.Name, ShortCode: p.ShortCode, Color: p.Color})
		}
		if err := partyRepo.Seed(seed); err != nil {
			log.Fatalf("party seeding failed: %v", err)
		}
		log.Infof("seeded %d parties", len(seed))
	}

	jwtManager := token.NewJWTManager(cfg.JWT.Secret, cfg.JWT.AccessTokenExpireHours, cfg.JWT.RefreshTokenExpireDays)
	tikaClient := tika.NewClient(cfg.Tika)
	embeddingClient := embedding.NewClient(cfg.Embedding)
	llmClient := llm.NewClient(cfg.LLM)
	embeddingCache := cache.NewEmbeddingCache(rdb, cfg.Cache.EmbeddingTTL)
	searchCache := cache.NewSearchCache(rdb, cfg.Cache.SearchTTL)

	userService := service.NewUserService(userRepo, jwtManager)
	contextService := service.NewContextService(embeddingCache, searchCache, embeddingClient, embeddingRepo, partyRepo, cfg.Retrieval)
	chatService := service.NewChatService(contextService, partyRepo, llmClient, conversationRepo, cfg.LLM)
	ingestService := service.NewIngestService(tikaClient, storageClient, embeddingClient,
		partyRepo, programRepo, chunkRepo, embeddingRepo, cfg.Ingestion)

	go kafka.StartConsumer(rootCtx, cfg.Kafka, rdb, ingestService)

	if cfg.Ingestion.SourceDir != "" {
		go func() {
			if _, err := os.Stat(cfg.Ingestion.SourceDir); err != nil {
				log.Infof("source directory %q not present, skipping startup ingestion", cfg.Ingestion.SourceDir)
				return
			}
			summary, err := ingestService.IngestAll(rootCtx, nil)
			if err != nil {
				log.Errorf("startup ingestion aborted: %v", err)
				return
			}
			log.Infof("startup ingestion done: %d ok, %d skipped, %d failed",
				summary.Succeeded, summary.Skipped, summary.Failed)
		}()
	}

	gin.SetMode(cfg.Server.Mode)
	r := gin.New()
	r.Use(middleware.RequestLogger(), gin.Recovery())

	userHandler := handler.NewUserHandler(userService)
	partyHandler := handler.NewPartyHandler(partyRepo)
	compareHandler := handler.NewCompareHandler(contextService)
	programHandler := handler.NewProgramHandler(ingestService, partyRepo, storageClient, producer)
	chatHandler := handler.NewChatHandler(chatService, userRepo, jwtManager)

	apiV1 := r.Group("/api/v1")
	{
		auth := apiV1.Group("/auth")
		{
			auth.POST("/register", userHandler.Register)
			auth.POST("/login", userHandler.Login)
			auth.POST("/refreshToken", userHandler.RefreshToken)
		}

		apiV1.GET("/parties", partyHandler.List)

		authed := apiV1.Group("/")
		authed.Use(middleware.AuthMiddleware(jwtManager, userRepo))
		{
			authed.POST("/compare", compareHandler.Compare)
			authed.GET("/chat/websocket-token", chatHandler.GetWebsocketStopToken)
		}

		admin := apiV1.Group("/admin")
		admin.Use(middleware.AuthMiddleware(jwtManager, userRepo), middleware.AdminAuthMiddleware())
		{
			admin.POST("/programs/upload", programHandler.Upload)
			admin.POST("/ingest", programHandler.RunIngestion)
			admin.GET("/ingest/status", programHandler.Status)
		}
	}
	r.GET("/chat/:token", chatHandler.Handle)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: r,
	}

	go func() {
		log.Infof("server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("HTTP server failed: %s", err)
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown signal received, stopping server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("HTTP server shutdown failed: %v", err)
	}
	log.Info("server stopped cleanly")
}
