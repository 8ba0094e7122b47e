package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/tollgate-io/tollgate/internal/config"
	"github.com/tollgate-io/tollgate/internal/gateway"
	"github.com/tollgate-io/tollgate/internal/logging"
	"github.com/tollgate-io/tollgate/internal/metrics"
	"github.com/tollgate-io/tollgate/internal/proxy"
	"github.com/tollgate-io/tollgate/internal/route"
	"go.uber.org/zap"
)

func main() {
	configPath := flag.String("config", "tollgate.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.NewLoader().Load(*configPath)
	if err != nil {
		logging.Error("failed to load configuration", zap.Error(err))
		os.Exit(1)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		logging.Error("failed to initialize logger", zap.Error(err))
		os.Exit(1)
	}
	logging.SetGlobal(logger)
	defer logging.Sync()

	store, err := route.NewSQLiteStore(cfg.Routes.StorePath)
	if err != nil {
		logging.Error("failed to open route store", zap.Error(err))
		os.Exit(1)
	}
	defer store.Close()

	table := route.NewTable(store, route.CompileOptions{
		BodyFallback: route.FallbackMode(cfg.Routes.BodyPredicateFallback),
	})

	m := metrics.New()
	gw := gateway.New(cfg, table, proxy.NewForwarder(), m)

	if err := table.Reload(context.Background()); err != nil {
		logging.Error("initial route table load failed", zap.Error(err))
		os.Exit(1)
	}

	// Config changes swap the dynamic settings and refresh the table, so an
	// operator editing the store out-of-band can touch the config to reload.
	watcher, err := config.NewWatcher(*configPath, func(newCfg *config.Config) {
		gw.ApplyConfig(newCfg)
		if err := table.Reload(context.Background()); err != nil {
			logging.Error("route table reload failed", zap.Error(err))
		}
	})
	if err == nil {
		if err := watcher.Start(); err != nil {
			logging.Warn("config watcher failed to start", zap.Error(err))
		}
		defer watcher.Stop()
	} else {
		logging.Warn("config watcher unavailable", zap.Error(err))
	}

	srv := gateway.NewServer(cfg, gw)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logging.Info("shutting down", zap.String("signal", sig.String()))
		if err := srv.Shutdown(context.Background()); err != nil {
			logging.Error("shutdown error", zap.Error(err))
		}
	case err := <-errCh:
		if err != nil {
			logging.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}
}
