// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/HugoP8/whazaaa/internal/config"
	"github.com/HugoP8/whazaaa/internal/connection"
	"github.com/HugoP8/whazaaa/internal/controller"
	"github.com/HugoP8/whazaaa/internal/db"
	"github.com/HugoP8/whazaaa/internal/dispatch"
	"github.com/HugoP8/whazaaa/internal/handler"
	"github.com/HugoP8/whazaaa/internal/logger"
	"github.com/HugoP8/whazaaa/internal/media"
	"github.com/HugoP8/whazaaa/internal/notify"
	"github.com/HugoP8/whazaaa/internal/repository"
	"github.com/HugoP8/whazaaa/internal/service"
	"github.com/HugoP8/whazaaa/internal/whatsapp"
)

func main() {
	cfg, fromFile, err := config.Load()
	if err != nil {
		log.Fatalf("❌ invalid configuration: %v", err)
	}

	if err := logger.Init(cfg.Logging.Level, cfg.Logging.Path); err != nil {
		log.Fatalf("❌ failed to init logger: %v", err)
	}
	defer logger.Sync()

	if !fromFile {
		logger.Warn("⚠️ No .env file found, relying on OS environment variables")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := db.Open(ctx, cfg.DatabaseDSN())
	if err != nil {
		logger.Fatal("❌ database unavailable", zap.Error(err))
	}
	defer conn.Close()
	if err := db.Migrate(ctx, conn); err != nil {
		logger.Fatal("❌ migration failed", zap.Error(err))
	}

	if cfg.Store.Dialect == "sqlite3" {
		if err := os.MkdirAll("sessions", 0o755); err != nil {
			logger.Fatal("❌ cannot create session dir", zap.Error(err))
		}
	}
	provider, err := whatsapp.NewMeowProvider(ctx, cfg.Store.Dialect, cfg.Store.DSN)
	if err != nil {
		logger.Fatal("❌ device store unavailable", zap.Error(err))
	}
	defer provider.Close()

	// Sinks
	hub := notify.NewHub()
	sinks := notify.Multi{hub}
	if cfg.AMQP.URL != "" {
		amqpSink, err := notify.NewAMQPSink(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Fatal("❌ RabbitMQ unavailable", zap.Error(err))
		}
		defer amqpSink.Close()
		async := notify.NewAsync("amqp", amqpSink, 0)
		defer async.Close()
		sinks = append(sinks, async)
		logger.Info("📨 publishing events to RabbitMQ", zap.String("exchange", cfg.AMQP.Exchange))
	}
	if cfg.Redis.URL != "" {
		redisSink, err := notify.NewRedisSink(ctx, cfg.Redis.URL, cfg.Redis.Channel)
		if err != nil {
			logger.Fatal("❌ Redis unavailable", zap.Error(err))
		}
		defer redisSink.Close()
		async := notify.NewAsync("redis", redisSink, 0)
		defer async.Close()
		sinks = append(sinks, async)
		logger.Info("📨 publishing events to Redis", zap.String("channel", cfg.Redis.Channel))
	}

	// Repositories
	campaignRepo := &repository.CampaignRepository{DB: conn}
	messageRepo := &repository.MessageRepository{DB: conn}
	contactRepo := &repository.ContactRepository{DB: conn}
	sessionRepo := &repository.SessionRepository{DB: conn}

	sessions := connection.NewSessionManager(
		provider,
		connection.NewRegistry(),
		sessionRepo,
		contactRepo,
		sinks,
		connection.Options{
			ReconnectDelay:       cfg.Dispatch.ReconnectDelay,
			MaxReconnectAttempts: cfg.Dispatch.MaxReconnectAttempts,
		},
	)

	maxUpload := cfg.Media.MaxUploadMB << 20
	store, err := media.NewStore(cfg.Media.Dir, maxUpload)
	if err != nil {
		logger.Fatal("❌ media dir unavailable", zap.Error(err))
	}

	campaignService := service.NewCampaignService(
		campaignRepo,
		messageRepo,
		sessions,
		dispatch.NewEngine(store, sinks),
		sinks,
		cfg.Dispatch.DefaultDelay,
	)

	restored, err := sessions.RestoreSessions(ctx)
	if err != nil {
		logger.Error("⚠️ session restore failed", zap.Error(err))
	}
	logger.Info("🔁 sessions restored", zap.Int("count", restored))

	router := newRouter(routes{
		JWTSecret:  cfg.JWT.Secret,
		CORSOrigin: cfg.Server.CORSOrigin,
		RateLimit:  controller.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window),
		Campaigns: &controller.CampaignController{
			CampaignService: campaignService,
			Media:           store,
			MaxUploadBytes:  maxUpload,
		},
		WhatsApp: &controller.WhatsAppController{Sessions: sessions},
		Events:   handler.NewEventsHandler(hub, cfg.Server.CORSOrigin),
	})

	srv := &http.Server{
		Addr:    cfg.Address(),
		Handler: router,
	}

	go func() {
		logger.Info("🚀 Server running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("❌ server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("🛑 shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("⚠️ HTTP shutdown incomplete", zap.Error(err))
	}

	campaignService.Shutdown()
	sessions.Shutdown()
	logger.Info("👋 bye")
}
