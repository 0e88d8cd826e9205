package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/gorilla/mux"
	"github.com/notilink/notilink/internal/config"
	"github.com/notilink/notilink/internal/handlers"
	"github.com/notilink/notilink/internal/middleware"
	"github.com/notilink/notilink/internal/repository"
	"github.com/notilink/notilink/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/sirupsen/logrus"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetLevel(logrus.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	dynamoClient, err := initDynamoDB(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize DynamoDB")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Endpoint,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	// Initialize repositories
	verificationRepo := repository.NewVerificationRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	confirmationRepo := repository.NewConfirmationRepository(dynamoClient, cfg.DynamoDB.TableName, logger)
	rateLimitRepo := repository.NewRateLimitRepository(redisClient, logger)

	// Initialize services
	sessionService, err := service.NewSessionService(&cfg.Auth, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize session service")
	}

	rateLimitService := service.NewRateLimitService(rateLimitRepo, &cfg.RateLimit, logger)
	linkService := service.NewLinkService(verificationRepo, confirmationRepo, rateLimitService, &cfg.Link, logger)

	linkHandlers := handlers.NewLinkHandlers(linkService, logger)

	authMiddleware := middleware.NewAuthMiddleware(sessionService, cfg.Auth.SessionCookie, logger)
	botAuthMiddleware := middleware.NewBotAuthMiddleware(cfg.Link.BotKeyHash, logger)
	router := setupRouter(linkHandlers, authMiddleware, botAuthMiddleware, logger)

	handler := cors.New(cors.Options{
		AllowedMethods:   []string{http.MethodGet, http.MethodPost},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
	}).Handler(router)

	if cfg.Sweep.Enabled {
		sweeper := service.NewSweeper(verificationRepo, logger)
		if err := sweeper.Start(cfg.Sweep.Schedule); err != nil {
			logger.WithError(err).Fatal("Failed to start verification sweeper")
		}
		defer sweeper.Stop()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Fatal("Server forced to shutdown")
	}

	logger.Info("Server exited")
}

func initDynamoDB(cfg *config.Config, logger *logrus.Logger) (*dynamodb.Client, error) {
	var awsCfg aws.Config
	var err error

	if cfg.DynamoDB.Endpoint != "" {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO(),
			awsconfig.WithRegion(cfg.DynamoDB.Region),
			awsconfig.WithEndpointResolverWithOptions(aws.EndpointResolverWithOptionsFunc(
				func(service, region string, options ...interface{}) (aws.Endpoint, error) {
					return aws.Endpoint{
						URL:           cfg.DynamoDB.Endpoint,
						SigningRegion: cfg.DynamoDB.Region,
					}, nil
				})),
		)
	} else {
		awsCfg, err = awsconfig.LoadDefaultConfig(context.TODO())
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := dynamodb.NewFromConfig(awsCfg)
	logger.Info("DynamoDB client initialized")
	return client, nil
}

func setupRouter(
	linkHandlers *handlers.LinkHandlers,
	authMiddleware *middleware.AuthMiddleware,
	botAuthMiddleware *middleware.BotAuthMiddleware,
	logger *logrus.Logger,
) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.LoggingMiddleware(logger))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")

	link := router.PathPrefix("/link").Subrouter()
	link.Use(authMiddleware.RequireSession)
	link.HandleFunc("/start", linkHandlers.StartLink).Methods("POST", "OPTIONS")
	link.HandleFunc("/status/{nonce}", linkHandlers.LinkStatus).Methods("GET", "OPTIONS")

	internal := router.PathPrefix("/internal/link").Subrouter()
	internal.Use(botAuthMiddleware.RequireBotKey)
	internal.HandleFunc("/confirm", linkHandlers.ConfirmLink).Methods("POST")

	return router
}
