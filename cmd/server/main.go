package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"legalmatch-backend/ai"
	"legalmatch-backend/cache"
	"legalmatch-backend/chat"
	"legalmatch-backend/config"
	"legalmatch-backend/handlers"
	"legalmatch-backend/logger"
	"legalmatch-backend/middleware"
	"legalmatch-backend/repository"
	"legalmatch-backend/retry"
	"legalmatch-backend/service"
	"legalmatch-backend/storage"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const shutdownTimeout = 15 * time.Second

func main() {
	hasDotEnv := config.LoadDotEnv()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	logr, err := logger.New(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	if !hasDotEnv {
		logr.Warn("No .env file found, using environment variables")
	}
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database connections
	db, err := initPostgres(ctx, cfg.DatabaseURL, logr)
	if err != nil {
		logr.Fatalf("Failed to initialize Postgres: %v", err)
	}
	defer db.Close()

	articleStore, closeArticles, err := initArticleStore(ctx, cfg, db, logr)
	if err != nil {
		logr.Fatalf("Failed to initialize article store: %v", err)
	}
	defer closeArticles()

	// Initialize storage
	fileStorage, err := storage.NewStorageFromEnv(ctx)
	if err != nil {
		logr.Fatalf("Failed to initialize storage: %v", err)
	}
	logr.Info("Storage initialized")

	model, closeModel, err := initModel(ctx, cfg, logr)
	if err != nil {
		logr.Fatalf("Failed to initialize AI model: %v", err)
	}
	defer closeModel()

	// Initialize repositories
	lawyerRepo := repository.NewLawyerRepository(db)
	userRepo := repository.NewUserRepository(db)
	appointmentRepo := repository.NewAppointmentRepository(db)
	faqRepo := repository.NewFAQRepository(db)
	chatRepo := repository.NewChatRepository(db)
	fileRepo := repository.NewFileRepository(db)

	hub := chat.NewHub(chat.WithLogger(logr))

	retryOpts := []retry.Option{
		retry.WithMaxRetries(cfg.AIMaxRetries),
		retry.WithInitialDelay(cfg.AIInitialDelay),
	}

	// Initialize services
	analysisService := service.NewAnalysisService(
		service.AnalysisWithArticleStore(articleStore),
		service.AnalysisWithModel(model),
		service.AnalysisWithCache(cache.New(cache.WithMaxEntries(cfg.CacheMaxEntries))),
		service.AnalysisWithLogger(logr),
		service.AnalysisWithRetryOptions(retryOpts...),
	)
	articleService := service.NewArticleService(
		service.ArticlesWithStore(articleStore),
		service.ArticlesWithFileRepository(fileRepo),
		service.ArticlesWithStorage(fileStorage),
		service.ArticlesWithModel(model),
		service.ArticlesWithLogger(logr),
		service.ArticlesWithRetryOptions(retryOpts...),
	)
	lawyerService := service.NewLawyerService(
		service.LawyersWithStore(lawyerRepo),
		service.LawyersWithModel(model),
		service.LawyersWithLogger(logr),
		service.LawyersWithRetryOptions(retryOpts...),
	)
	userService := service.NewUserService(service.UsersWithStore(userRepo))
	appointmentService := service.NewAppointmentService(
		service.AppointmentsWithStore(appointmentRepo),
		service.AppointmentsWithLawyerStore(lawyerRepo),
		service.AppointmentsWithLogger(logr),
	)
	faqService := service.NewFAQService(faqRepo)
	chatService := service.NewChatService(
		service.ChatWithStore(chatRepo),
		service.ChatWithPublisher(hub),
		service.ChatWithLogger(logr),
	)

	// Initialize handlers
	legalHandler := handlers.NewLegalHandler(analysisService, articleService, lawyerService)
	fileHandler := handlers.NewFileHandler(articleService, fileRepo, fileStorage)
	lawyerHandler := handlers.NewLawyerHandler(lawyerService)
	userHandler := handlers.NewUserHandler(userService)
	appointmentHandler := handlers.NewAppointmentHandler(appointmentService)
	faqHandler := handlers.NewFAQHandler(faqService)
	chatHandler := handlers.NewChatHandler(chatService, hub, logr)

	// Setup Gin router
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Logger(logr), middleware.Metrics(), handlers.DeploymentMode(cfg.IsProduction()))

	aiLimit := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware()

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API routes
	api := r.Group("/api")
	{
		// Legal analysis and article endpoints
		legal := api.Group("/legal")
		legal.POST("/analyze", aiLimit, legalHandler.Analyze)
		legal.POST("/process", aiLimit, legalHandler.ProcessQuery)
		legal.GET("/categories", legalHandler.Categories)
		legal.GET("/articles/:type/:subclass", legalHandler.ListArticles)
		legal.POST("/articles", legalHandler.InsertArticles)
		legal.POST("/articles/upload", aiLimit, fileHandler.UploadArticles)

		// File endpoints
		api.GET("/files", fileHandler.ListFiles)
		api.GET("/files/:id", fileHandler.GetFile)
		api.DELETE("/files/:id", fileHandler.DeleteFile)

		// Lawyer endpoints
		api.POST("/lawyers/match", aiLimit, lawyerHandler.Match)
		api.POST("/lawyers", lawyerHandler.Create)
		api.GET("/lawyers", lawyerHandler.List)
		api.GET("/lawyers/:id", lawyerHandler.Get)
		api.PUT("/lawyers/:id", lawyerHandler.Update)

		// User endpoints
		api.POST("/users", userHandler.Create)
		api.POST("/users/login", userHandler.Login)
		api.GET("/users", userHandler.List)
		api.GET("/users/:id", userHandler.Get)
		api.PUT("/users/:id", userHandler.Update)

		// Appointment endpoints
		api.POST("/appointments", appointmentHandler.Create)
		api.GET("/appointments", appointmentHandler.List)
		api.PATCH("/appointments/:id/status", appointmentHandler.UpdateStatus)

		// FAQ endpoints
		api.GET("/faqs", faqHandler.List)
		api.POST("/faqs", faqHandler.Create)
		api.DELETE("/faqs/:id", faqHandler.Delete)

		// Chat endpoints
		api.POST("/chat/messages", chatHandler.SendMessage)
		api.GET("/chat/conversations", chatHandler.ListConversations)
		api.GET("/chat/conversations/:id/messages", chatHandler.ListMessages)
		api.POST("/chat/conversations/:id/seen", chatHandler.MarkSeen)
		api.GET("/chat/unseen", chatHandler.UnseenCounts)
		api.GET("/chat/ws", chatHandler.Connect)
	}

	// Start server
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.WithFields(logrus.Fields{"port": cfg.Port, "mode": cfg.Mode}).Info("Server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	logr.Info("Shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	hub.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.WithError(err).Error("Server shutdown failed")
	}
}

func initPostgres(ctx context.Context, connString string, logr *logrus.Logger) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if err := repository.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	logr.Info("Postgres connection established")
	return pool, nil
}

// initArticleStore returns the article backend selected by ARTICLE_STORE
// and a function releasing its resources
func initArticleStore(ctx context.Context, cfg *config.Config, db *pgxpool.Pool, logr *logrus.Logger) (service.ArticleStore, func(), error) {
	if cfg.ArticleStore != config.ArticleStoreMongo {
		logr.Info("Using Postgres article store")
		return repository.NewArticleRepository(db), func() {}, nil
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, err
	}
	disconnect := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Disconnect(ctx); err != nil {
			logr.WithError(err).Warn("Failed to disconnect from MongoDB")
		}
	}
	if err := client.Ping(ctx, nil); err != nil {
		disconnect()
		return nil, nil, err
	}

	store := repository.NewMongoArticleRepository(client.Database(cfg.MongoDatabase))
	if err := store.EnsureIndexes(ctx); err != nil {
		disconnect()
		return nil, nil, fmt.Errorf("failed to create indexes: %w", err)
	}

	logr.WithField("database", cfg.MongoDatabase).Info("Using MongoDB article store")
	return store, disconnect, nil
}

// initModel builds the model client selected by AI_PROVIDER
func initModel(ctx context.Context, cfg *config.Config, logr *logrus.Logger) (ai.Model, func(), error) {
	switch cfg.AIProvider {
	case config.AIProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			logr.Warn("OPENAI_API_KEY not set")
		}
		logr.WithField("model", cfg.OpenAIModel).Info("OpenAI client initialized")
		return ai.NewOpenAIModel(cfg.OpenAIAPIKey, cfg.OpenAIModel), func() {}, nil
	default:
		if cfg.GeminiAPIKey == "" {
			logr.Warn("GEMINI_API_KEY not set")
		}
		client, err := ai.NewGeminiClient(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, nil, err
		}
		logr.WithField("model", cfg.GeminiModel).Info("Gemini client initialized")
		return ai.NewGeminiModel(client, cfg.GeminiModel, logr), func() { client.Close() }, nil
	}
}
