package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"thirdcoast.systems/edits/cmd/web/auth"
	"thirdcoast.systems/edits/cmd/web/internal/web"
	"thirdcoast.systems/edits/internal/application"
	"thirdcoast.systems/edits/internal/config"
	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/thumbnail"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting web service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	pool, err := application.OpenDBPoolWithRetry(ctx, *conf)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	dbc, err := db.NewDatabaseConnection(ctx, pool)
	if err != nil {
		slog.Error("failed to create database connection", "error", err)
		os.Exit(1)
	}
	defer dbc.Close()

	media, err := application.NewMediaStorage(*conf)
	if err != nil {
		slog.Error("failed to open media storage", "error", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// Only inline mode derives thumbnails in this process.
	var processor *thumbnail.Processor
	if conf.Thumbnail.Dispatch == config.DispatchInline {
		processor = application.NewThumbnailProcessor(*conf, dbc, media, reg)
	}
	dispatcher, closeDispatcher, err := application.NewThumbnailDispatcher(*conf, dbc, processor)
	if err != nil {
		slog.Error("failed to create thumbnail dispatcher", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeDispatcher(); err != nil {
			slog.Warn("failed to close thumbnail dispatcher", "error", err)
		}
	}()

	var metrics http.Handler
	if conf.MetricsEnabled {
		metrics = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}

	e, err := web.NewWebserver(web.Dependencies{
		DB:             dbc,
		SessionManager: auth.NewSessionManager(conf.SessionSecret),
		Media:          media,
		Dispatcher:     dispatcher,
		UploadMaxBytes: conf.Media.UploadMaxBytes,
		Metrics:        metrics,
	})
	if err != nil {
		slog.Error("failed to create webserver", "error", err)
		os.Exit(1)
	}

	addr := ":" + strconv.Itoa(conf.WebServerPort)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = e.Shutdown(shutdownCtx)
	}()

	slog.Info("Listening", "addr", addr, "thumbnail_dispatch", conf.Thumbnail.Dispatch)
	if err := e.Start(addr); err != nil {
		if errors.Is(err, http.ErrServerClosed) || ctx.Err() != nil {
			return
		}
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
