// cmd/migrate/main.go
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/unclebandit/smsleopard-webhooks/internal/config"
	"github.com/unclebandit/smsleopard-webhooks/internal/db"
	"github.com/unclebandit/smsleopard-webhooks/internal/logger"
)

// Applies the embedded schema, then optionally runs seed files in order.
// Seeds come from -seed (comma separated) or SEED_FILES.
func main() {
	seedList := flag.String("seed", os.Getenv("SEED_FILES"), "comma separated SQL files to execute after migrating")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	zlog, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to create logger: %v", err)
	}
	defer zlog.Sync()

	if err := db.Migrate(&cfg.Database, zlog); err != nil {
		zlog.Fatal("Migration failed", zap.Error(err))
	}

	files := splitList(*seedList)
	if len(files) == 0 {
		return
	}

	conn, err := db.Open(&cfg.Database, zlog)
	if err != nil {
		zlog.Fatal("Database unavailable", zap.Error(err))
	}
	defer conn.Close()

	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			zlog.Fatal("Failed to read seed file", zap.String("file", file), zap.Error(err))
		}
		if _, err := conn.ExecContext(context.Background(), string(content)); err != nil {
			zlog.Fatal("Failed to execute seed file", zap.String("file", file), zap.Error(err))
		}
		zlog.Info("Seeded", zap.String("file", file))
	}
	zlog.Info("Database seeding completed successfully")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
