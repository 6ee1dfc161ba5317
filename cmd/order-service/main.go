package main

import (
	"context"
	stdlog "log"

	"fulfillment/internal/app"
	"fulfillment/internal/config"
)

func main() {
	if err := run(); err != nil {
		stdlog.Fatalf("Application failed: %v", err)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.LoadConfig(config.OrderServiceName)
	if err != nil {
		return err
	}

	application, err := app.NewApplication(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	return application.Run()
}
