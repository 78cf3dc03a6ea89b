package main

import (
	"context"
	"log"

	"github.com/agenthands/kgfuse/internal/app"
	"github.com/agenthands/kgfuse/internal/logger"
	"github.com/agenthands/kgfuse/internal/server"
)

func main() {
	cfg, err := app.LoadConfig("")
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Log.Mode)
	if err != nil {
		log.Fatalf("Failed to init logger: %v", err)
	}
	defer zl.Sync()

	ctx := context.Background()
	a, err := app.New(ctx, cfg, zl)
	if err != nil {
		zl.Fatal("failed to initialize", "error", err)
	}
	defer a.Close(ctx)

	r := server.NewServer(a.Engine, zl).SetupRouter()

	zl.Info("starting server", "port", cfg.Server.Port)
	if err := r.Run(":" + cfg.Server.Port); err != nil {
		zl.Fatal("server stopped", "error", err)
	}
}
