package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"servlite/internal/app"
	"servlite/pkg/config"
	"servlite/pkg/logger"
	"servlite/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var version = "dev"

func main() {
	_ = godotenv.Load(".env")

	cfgPath := flag.String("config", "", "path to YAML config file")
	host := flag.String("host", "", "listen host (overrides config and HOST)")
	port := flag.Int("port", 0, "HTTP port (overrides config and PORT)")
	wsPort := flag.Int("ws-port", 0, "WebSocket port (overrides config and WS_PORT)")
	flag.Parse()

	if *cfgPath == "" {
		*cfgPath = os.Getenv("SERVLITE_CONFIG")
	}
	cfg, err := config.LoadEffective(*cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	// flags win over config and env when provided
	if *host != "" {
		cfg.Server.Host = *host
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *wsPort != 0 {
		cfg.WebSocket.Port = *wsPort
	}

	logger.Init(cfg.Logging.Level, cfg.Logging.File)

	a, err := app.New(cfg, version)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	if err := a.Run(ctx); err != nil {
		log.Fatalf("server failed: %v", err)
	}
}
