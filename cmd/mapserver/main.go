// Command mapserver loads the plant collection and serves the clustered map API.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	cluster "github.com/georgeryan15/globalpower"
	"github.com/georgeryan15/globalpower/internal/config"
	"github.com/georgeryan15/globalpower/internal/logger"
	"github.com/georgeryan15/globalpower/internal/metrics"
	"github.com/georgeryan15/globalpower/internal/server"
	"github.com/georgeryan15/globalpower/loader"
)

func main() {
	cfg, err := config.Load()
	l := logger.Setup()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l.Debug("config_ok", "addr", cfg.Addr, "data", cfg.DataPath, "radius", cfg.Cluster.Radius)

	res, err := loader.Load(cfg.DataPath)
	if err != nil {
		l.Error("records_load_error", "path", cfg.DataPath, "err", err)
		os.Exit(1)
	}
	for _, w := range res.Warnings {
		l.Warn("record_warning", "id", w.ID, "reason", w.Reason)
	}
	l.Info("records_loaded", "count", len(res.Records), "warnings", len(res.Warnings))

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	m.TotalRecords.Set(float64(len(res.Records)))

	engine, err := cluster.NewEngine(res.Records, &cfg.Cluster,
		cluster.WithLogger(l),
		cluster.WithObserver(m),
		cluster.WithCacheSize(cfg.CacheSize))
	if err != nil {
		l.Error("engine_init_error", "err", err)
		os.Exit(1)
	}
	l.Info("engine_ready", "generation", engine.Index().Generation, "clustered", engine.Index().Len())

	if logger.ParseLevel(os.Getenv("LOG_LEVEL")) != slog.LevelDebug {
		gin.SetMode(gin.ReleaseMode)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := server.New(engine, m, l).Run(ctx, cfg.Addr); err != nil {
		l.Error("http_serve_error", "err", err)
		os.Exit(1)
	}
	l.Info("http_stopped")
}
