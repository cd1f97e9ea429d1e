package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"carmatch/internal/config"
	"carmatch/internal/events"
	"carmatch/internal/guardrail"
	"carmatch/internal/handler"
	"carmatch/internal/logger"
	"carmatch/internal/repository"
	"carmatch/internal/service"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

type catalogBackend interface {
	service.CatalogProvider
	service.EmbeddingStore
}

type pinger interface {
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logg, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = logg.Sync() }()

	logg.Info("CarMatch conversational engine",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gin.SetMode(cfg.Server.GinMode)

	// Catalog
	var catalog catalogBackend
	if cfg.PostgreSQL.Enabled {
		repo, err := repository.NewPostgresRepository(
			cfg.GetPostgreSQLDSN(),
			cfg.PostgreSQL.MaxConnections,
			cfg.PostgreSQL.MaxIdleConnections,
		)
		if err != nil {
			logg.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer repo.Close()
		catalog = repo
		logg.Info("Connected to PostgreSQL catalog")
	} else if cfg.Catalog.File != "" {
		mem, err := repository.LoadMemoryCatalog(cfg.Catalog.File)
		if err != nil {
			logg.Fatal("Failed to load catalog file", zap.String("path", cfg.Catalog.File), zap.Error(err))
		}
		if err := mem.Watch(ctx, cfg.Catalog.File, logg); err != nil {
			logg.Warn("Catalog file will not be reloaded on change", zap.Error(err))
		}
		catalog = mem
		logg.Info("Loaded in-memory catalog", zap.String("path", cfg.Catalog.File))
	} else {
		catalog = repository.NewMemoryCatalog()
		logg.Warn("No catalog configured, starting with an empty in-memory catalog",
			zap.String("hint", "set DATABASE_URL or CATALOG_FILE"))
	}

	// Sessions
	var sessions service.SessionStore
	if cfg.Redis.Addr != "" {
		store, err := repository.NewRedisSessionStore(ctx, repository.RedisOptions{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.KeyPrefix,
			TTL:      cfg.Redis.SessionTTL,
		})
		if err != nil {
			logg.Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer store.Close()
		sessions = store
		logg.Info("Sessions stored in Redis", zap.String("addr", cfg.Redis.Addr))
	} else {
		store := repository.NewMemorySessionStore(cfg.Redis.SessionTTL)
		go store.Run(ctx, cfg.Guardrail.SweepInterval)
		sessions = store
		logg.Warn("REDIS_ADDR not set, sessions are kept in memory")
	}

	// Events
	var publisher events.Publisher = events.NopPublisher{}
	if cfg.NATS.URL != "" {
		nc, err := events.Connect(events.Config{
			URL:           cfg.NATS.URL,
			Token:         cfg.NATS.Token,
			SubjectPrefix: cfg.NATS.SubjectPrefix,
		}, logg)
		if err != nil {
			logg.Fatal("Failed to connect to NATS", zap.Error(err))
		}
		defer nc.Close()
		publisher = nc
		logg.Info("Publishing events to NATS", zap.String("url", cfg.NATS.URL))
	}

	// Inference
	breaker := service.BreakerSettings{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		Cooldown:         cfg.Breaker.Cooldown,
	}
	var providers []service.NamedCompleter
	var embedder service.BatchEmbedder
	if cfg.OpenAI.Enabled {
		openaiClient := service.NewOpenAIClient(&cfg.OpenAI, logg)
		providers = append(providers, openaiClient)
		embedder = openaiClient
		logg.Info("OpenAI client initialized",
			zap.String("api_base", cfg.OpenAI.APIBase),
			zap.String("chat_model", cfg.OpenAI.ChatModel),
			zap.String("embedding_model", cfg.OpenAI.EmbeddingModel),
		)
	}
	if cfg.Anthropic.Enabled {
		anthropicClient, err := service.NewAnthropicClient(&cfg.Anthropic, logg)
		if err != nil {
			logg.Fatal("Failed to create Anthropic client", zap.Error(err))
		}
		providers = append(providers, anthropicClient)
		logg.Info("Anthropic client initialized", zap.String("model", cfg.Anthropic.Model))
	}

	var completer service.Completer
	if len(providers) > 0 {
		completer = service.NewProviderChain(providers, 0, breaker, logg)
	} else {
		logg.Warn("No inference provider configured, using deterministic fallbacks",
			zap.String("hint", "set OPENAI_API_KEY or ANTHROPIC_API_KEY"))
	}

	var queryEmbedder service.Embedder
	if embedder != nil {
		queryEmbedder = embedder
	}

	// Services
	ranker := service.NewRanker(cfg.Ranking.SemanticWeight, cfg.Ranking.CriteriaWeight)
	search := service.NewCatalogSearch(
		catalog,
		service.DefaultStrategies(catalog, queryEmbedder, ranker),
		embedder,
		service.SearchConfig{
			MaxLimit:            cfg.Ranking.MaxLimit,
			EmbeddingDimensions: cfg.OpenAI.EmbeddingDimensions,
			Breaker:             breaker,
		},
		logg,
	)

	limiter := guardrail.NewRateLimiter(cfg.Guardrail.RateLimitCount, cfg.Guardrail.RateLimitWindow)
	go limiter.Run(ctx, cfg.Guardrail.SweepInterval)

	guardCfg := guardrail.DefaultConfig()
	guardCfg.MaxInputLength = cfg.Guardrail.MaxInputLength
	guardCfg.MaxOutputLength = cfg.Guardrail.MaxOutputLength
	guardCfg.MaxSpecialRatio = cfg.Guardrail.MaxSpecialRatio
	guardCfg.MaxRepeatedRun = cfg.Guardrail.MaxRepeatedChars

	orchestrator := service.NewOrchestrator(service.Dependencies{
		Guard:     guardrail.NewFilter(guardCfg, limiter, logg),
		Extractor: service.NewExtractor(completer, cfg.Conversation.ExtractionTimeout, logg),
		Search:    search,
		Talk:      service.NewConversationalist(completer, logg),
		Sessions:  sessions,
		Events:    publisher,
	}, service.OrchestratorConfig{
		HistoryLimit:        cfg.Conversation.HistoryLimit,
		RecommendationLimit: cfg.Conversation.RecommendationLimit,
		TurnTimeout:         cfg.Conversation.TurnTimeout,
	}, logg)

	logg.Info("Services initialized")

	// Handlers
	messageHandler := handler.NewMessageHandler(orchestrator)
	searchHandler := handler.NewSearchHandler(search, cfg.Conversation.RecommendationLimit, cfg.Ranking.MaxLimit)
	embeddingHandler := handler.NewEmbeddingHandler(search)
	feedbackHandler := handler.NewFeedbackHandler(search)

	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitList(cfg.Server.AllowedOrigins)
	corsConfig.AllowMethods = splitList(cfg.Server.AllowedMethods)
	corsConfig.AllowHeaders = splitList(cfg.Server.AllowedHeaders)
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		if p, ok := catalog.(pinger); ok {
			if err := p.Ping(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unhealthy", "error": "catalog unreachable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"service":    "carmatch",
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
			"inference":  len(providers) > 0,
			"semantic":   embedder != nil,
		})
	})

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	apiV1 := router.Group("/api/v1")
	{
		// Conversation intake
		apiV1.POST("/messages", messageHandler.Receive)
		apiV1.POST("/sessions/:id/reset", messageHandler.Reset)

		// Catalog ranking and lookup
		apiV1.POST("/search", searchHandler.Search)
		apiV1.GET("/vehicles/:id", searchHandler.GetVehicle)

		apiV1.POST("/embeddings/batch", embeddingHandler.BatchUpdate)
		apiV1.POST("/feedback", feedbackHandler.Submit)
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           httprate.LimitByIP(cfg.Server.RequestsPerMin, time.Minute)(router),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logg.Info("Starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logg.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logg.Error("Server shutdown failed", zap.Error(err))
	}
	logg.Info("Server stopped")
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
