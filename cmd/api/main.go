package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	socketio "github.com/googollee/go-socket.io"

	"github.com/jwebster45206/closed-ai/internal/config"
	"github.com/jwebster45206/closed-ai/internal/game"
	"github.com/jwebster45206/closed-ai/internal/handlers"
	"github.com/jwebster45206/closed-ai/internal/logger"
	"github.com/jwebster45206/closed-ai/internal/metrics"
	"github.com/jwebster45206/closed-ai/internal/middleware"
	"github.com/jwebster45206/closed-ai/internal/realtime"
	"github.com/jwebster45206/closed-ai/internal/services"
	"github.com/jwebster45206/closed-ai/internal/services/events"
	"github.com/jwebster45206/closed-ai/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	log := logger.Setup(cfg)

	log.Info("Starting Closed AI API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"model_name", cfg.ModelName)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	redisService, err := services.NewRedisService(cfg.RedisURL, log)
	if err != nil {
		log.Error("Invalid redis configuration", "error", err)
		os.Exit(1)
	}
	redisCtx, redisCancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer redisCancel()
	if err := redisService.WaitForConnection(redisCtx); err != nil {
		log.Error("Failed to connect to redis", "error", err)
		os.Exit(1)
	}

	llmService := services.NewOpenAIService(services.OpenAIConfig{
		APIKey:        cfg.OpenAIAPIKey,
		BaseURL:       cfg.OpenAIBaseURL,
		Model:         cfg.ModelName,
		ImageSize:     cfg.ImageSize,
		StreamTimeout: cfg.StreamTimeout,
		ChatTimeout:   cfg.ChatTimeout,
		ImageTimeout:  cfg.ImageTimeout,
	}, log)

	var tokens services.TokenCounter = services.ApproxCounter{}
	if counter, err := services.NewTiktokenCounter(cfg.ModelName); err != nil {
		log.Warn("Falling back to approximate token counts", "error", err, "model", cfg.ModelName)
	} else {
		tokens = counter
	}

	m := metrics.New()
	redisClient := redisService.GetClient()
	broadcaster := events.NewBroadcaster(redisClient, log)

	sessions := session.NewStore(redisClient, cfg.SessionPrefix, cfg.SessionCookie, cfg.SessionSecret)
	users := session.NewUsers(redisClient)
	authenticator := session.NewAuthenticator(sessions, users)

	gateway := realtime.NewGateway(sessions, users, realtime.Config{
		SessionTimeout: cfg.SessionTimeout,
		ActionTimeout:  cfg.StreamTimeout,
	}, log)
	emitter := game.Emitters{gateway, broadcaster}

	registry := game.NewRegistry(game.Deps{
		LLM:    llmService,
		Tokens: tokens,
		Logger: log,
	}, emitter, game.Options{
		InteractionsPerBackground: cfg.InteractionsPerBackground,
		SideActionTimeout:         cfg.SideActionTimeout,
		Metrics:                   m,
	})
	m.ObserveGames(registry.Len)

	gateway.Bind(registry)
	if cfg.SocketRedisAdapter {
		redisOpts := redisClient.Options()
		if err := gateway.UseRedis(&socketio.RedisAdapterOptions{
			Addr:     redisService.Addr(),
			Prefix:   "socket.io",
			Network:  "tcp",
			Password: redisOpts.Password,
			DB:       redisOpts.DB,
		}); err != nil {
			log.Error("Failed to enable socket.io redis adapter", "error", err)
			os.Exit(1)
		}
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(log, m))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{cfg.ClientOrigin}
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type"}
	corsConfig.AllowCredentials = true
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	healthHandler := handlers.NewHealthHandler(redisService, registry.Len, log)
	router.GET("/health", healthHandler.ServeHTTP)
	router.GET("/metrics", gin.WrapH(m.Handler()))

	api := router.Group("/api", middleware.Auth(authenticator, log))

	gamesHandler := handlers.NewGamesHandler(registry, llmService, gateway, cfg.StreamTimeout, log)
	gamesGroup := api.Group("/games")
	gamesHandler.Register(gamesGroup)
	handlers.NewEventsHandler(gamesHandler, broadcaster, log).Register(gamesGroup)

	handlers.NewSessionHandler(sessions, gateway, log).Register(api.Group("/session"))

	gateway.Mount(router)

	server := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout removed to enable streaming - streaming endpoints handle their own timeouts
		IdleTimeout: 60 * time.Second,
	}

	go func() {
		log.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Server is shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", "error", err)
	}
	if err := gateway.Close(); err != nil {
		log.Error("Error closing socket server", "error", err)
	}
	if err := registry.Close(); err != nil {
		log.Error("Error waiting for games", "error", err)
	}
	if err := redisService.Close(); err != nil {
		log.Error("Error closing redis connection", "error", err)
	}

	log.Info("Server exited")
}
