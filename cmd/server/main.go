package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"meeting_relay/internal/config"
	"meeting_relay/internal/handler"
	"meeting_relay/internal/middleware"
	"meeting_relay/internal/relay"
	"meeting_relay/internal/repository"
	"meeting_relay/internal/service"
	"meeting_relay/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Инициализация логгера
	appLogger := logger.New(cfg.Log.Level)

	// PostgreSQL нужен только для журнала аудита
	var dbPool *pgxpool.Pool
	if cfg.Database.DSN != "" {
		dbPool = connectPostgres(cfg, appLogger)
		defer dbPool.Close()
	}

	// Redis нужен только для зеркала присутствия
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()

		if err := rdb.Ping(context.Background()).Err(); err != nil {
			appLogger.Fatal("Failed to connect to Redis", "error", err)
		}
		appLogger.Info("Redis connection established")
	}

	// Инициализация репозиториев
	repos := repository.NewRepositories(dbPool, rdb, cfg.Redis.PresenceTTL, appLogger)

	// Инициализация сервисов
	services := service.NewServices(repos, cfg, appLogger)

	// Реестр комнат релея
	hub := relay.NewHub(relay.Options{
		WriteWait:     cfg.Relay.WriteWait,
		PongWait:      cfg.Relay.PongWait,
		PingPeriod:    cfg.Relay.PingPeriod(),
		MaxFrameBytes: cfg.Relay.MaxFrameBytes,
		SendBuffer:    cfg.Relay.SendBuffer,
		MaxTextLength: cfg.Relay.MaxTextLength,
	}, services.Membership, appLogger.With("component", "relay"))

	// Инициализация handlers
	handlers := handler.NewHandlers(services, hub, cfg, appLogger)

	// Настройка роутера
	router := setupRouter(handlers, cfg, appLogger)

	// Запуск HTTP сервера
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      middleware.CORS(cfg.Relay.AllowedOrigins)(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		appLogger.Info("Starting server", "port", cfg.Server.Port, "relay_url", cfg.Relay.URL)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Fatal("Failed to start server", "error", err)
		}
	}()

	// Ожидание сигнала для graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Shutdown не ждет hijacked соединения, их закрывает хаб. Хаб должен
	// успеть записать выходы до закрытия Redis и PostgreSQL в defer.
	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("Server forced to shutdown", "error", err)
	}
	if err := hub.Shutdown(ctx); err != nil {
		appLogger.Error("Relay departures not flushed", "error", err)
	}

	appLogger.Info("Server exited")
}

func connectPostgres(cfg *config.Config, log logger.Logger) *pgxpool.Pool {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to parse database DSN", "error", err)
	}
	if cfg.Database.MaxConnections > 0 {
		poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	}

	dbPool, err := pgxpool.NewWithConfig(context.Background(), poolCfg)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	// Проверка подключения к БД
	if err := dbPool.Ping(context.Background()); err != nil {
		log.Fatal("Failed to ping database", "error", err)
	}
	log.Info("Database connection established")
	return dbPool
}

func setupRouter(handlers *handler.Handlers, cfg *config.Config, log logger.Logger) *gin.Engine {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.ErrorHandler())

	// Health check
	router.GET("/health", handlers.Health.Check)

	// Server info - адрес релея для клиентов
	router.GET("/server-info", handlers.Health.ServerInfo)

	// Метрики Prometheus
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Релей чата встречи
	router.GET("/ws/chat", handlers.WebSocket.HandleRelay)

	// API v1
	v1 := router.Group("/api/v1")
	{
		rooms := v1.Group("/rooms")
		{
			rooms.GET("/:id/participants", handlers.Room.GetParticipants)
			rooms.GET("/:id/presence", handlers.Room.GetPresence)
		}
	}

	return router
}
