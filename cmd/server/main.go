package main

import (
	"context"
	"os"

	"taskflow/backend/internal/config"
	"taskflow/backend/internal/logging"

	"github.com/charmbracelet/log"
	gfshutdown "github.com/gelmium/graceful-shutdown"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("failed to load configuration", "err", err)
	}

	logger := logging.NewFromConfig(cfg.Log.Level, cfg.Log.Format)
	logger.Info("starting TaskFlow API", "environment", cfg.Server.Environment, "store", cfg.Database.Driver)

	app, err := NewApp(context.Background(), cfg, logger)
	if err != nil {
		logger.Fatal("failed to initialise application", "err", err)
	}
	app.Start()

	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		cfg.Server.ShutdownTimeout,
		map[string]gfshutdown.Operation{
			"http-server": func(ctx context.Context) error {
				logger.Info("graceful shutdown initiated")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	logger.Info("application exited", "code", exitCode)
	os.Exit(exitCode)
}
