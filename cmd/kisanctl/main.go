package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kisanai/backend/internal/cli"
	"github.com/kisanai/backend/internal/config"
	"github.com/kisanai/backend/internal/logger"
)

func main() {
	cfg := config.LoadClient()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}

	app, err := cli.NewAppFromConfig(cfg, log)
	if err != nil {
		log.Error("start failed", "error", err)
		log.Sync()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = cli.Execute(ctx, app, os.Args[1:])
	stop()
	app.Close()
	if err != nil {
		os.Exit(1)
	}
}
