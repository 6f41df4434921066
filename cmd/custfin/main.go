package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"custfin/internal/backend"
	"custfin/internal/cli"
	apphttp "custfin/internal/http"
	applog "custfin/internal/log"
	"custfin/internal/services"
)

func main() {
	cfg, logger := cli.LoadAndValidateConfig(applog.ComponentApp)

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	res, err := backend.NewFactory(logger.Logger).CreateBackend(context.Background(), backendCfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}

	overview := services.NewOverview(res.Service, services.WithMaxAge(cfg.CacheTTL))
	srv := apphttp.NewServer(":"+cfg.Port, res.Service, overview, apphttp.Config{
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Logger:             logger,
		Ready:              res.Ping,
	})
	srv.MaxHeaderBytes = 1 << 16 // 64KB

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(shutdownCtx context.Context) {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		if err := res.Cleanup(); err != nil {
			logger.Error("Backend cleanup error", "error", err)
		}
	})

	logger.Info("Starting custfin server",
		"port", cfg.Port,
		"backend", cfg.DataBackend,
		"events", res.Events != nil,
		"timezone", cfg.Timezone)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
