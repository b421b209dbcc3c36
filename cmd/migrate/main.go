//cmd/migrate/main.go
package main

import (
	"context"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/HugoP8/whazaaa/internal/config"
	"github.com/HugoP8/whazaaa/internal/db"
	"github.com/HugoP8/whazaaa/internal/logger"
)

func main() {
	cfg, _, err := config.Load()
	if err != nil {
		log.Fatalf("❌ invalid configuration: %v", err)
	}
	if err := logger.Init(cfg.Logging.Level, ""); err != nil {
		log.Fatalf("❌ failed to init logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	conn, err := db.Open(ctx, cfg.DatabaseDSN())
	if err != nil {
		logger.Fatal("❌ database unavailable", zap.Error(err))
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		logger.Fatal("❌ migration failed", zap.Error(err))
	}
	logger.Info("✅ Migration complete")
}
