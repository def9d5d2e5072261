package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"thirdcoast.systems/edits/internal/application"
	"thirdcoast.systems/edits/internal/config"
	"thirdcoast.systems/edits/internal/db"
	"thirdcoast.systems/edits/internal/thumbnail"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Starting thumbnail service")

	conf, err := config.LoadConfig(ctx)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if conf.Thumbnail.Dispatch == config.DispatchInline {
		slog.Error("thumbnailer has nothing to consume when THUMBNAIL_DISPATCH=inline")
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
	processor := application.NewThumbnailProcessor(*conf, dbc, media, reg)

	if conf.MetricsEnabled {
		go serveMetrics(ctx, conf.MetricsPort, reg)
	}

	var wg sync.WaitGroup
	switch conf.Thumbnail.Dispatch {
	case config.DispatchPostgres:
		runPostgres(ctx, &wg, conf, dbc, processor)
	case config.DispatchKafka:
		runKafka(ctx, &wg, conf, dbc, processor)
	}

	<-ctx.Done()
	slog.Info("Thumbnail service stopping")
	wg.Wait()
}

// runPostgres starts the job workers, the LISTEN loop and periodic maintenance.
func runPostgres(ctx context.Context, wg *sync.WaitGroup, conf *config.Config, dbc *db.DatabaseConnection, processor *thumbnail.Processor) {
	q := db.New(dbc)

	if _, err := thumbnail.Backfill(ctx, q, thumbnail.NewPostgresDispatcher(q, nil), nil); err != nil {
		slog.Error("thumbnail backfill failed", "error", err)
	}

	wake := make(chan struct{}, 1)
	go thumbnail.ListenAndSignal(ctx, conf.DatabaseDSN, wake)

	maintainer := thumbnail.NewWorker(q, processor, nil)
	wg.Add(1)
	go func() {
		defer wg.Done()
		maintainer.RunMaintenance(ctx)
	}()

	for i := 0; i < conf.Thumbnail.Workers; i++ {
		w := thumbnail.NewWorker(q, processor, slog.Default().With("worker", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx, wake)
		}()
	}
	slog.Info("Thumbnail workers started", "workers", conf.Thumbnail.Workers)
}

// runKafka consumes the thumbnail topic. Partitions are spread across
// replicas by the consumer group, so one reader per process is enough.
func runKafka(ctx context.Context, wg *sync.WaitGroup, conf *config.Config, dbc *db.DatabaseConnection, processor *thumbnail.Processor) {
	writer := thumbnail.NewKafkaWriter(conf.Kafka.Brokers, conf.Kafka.Topic)
	if _, err := thumbnail.Backfill(ctx, db.New(dbc), thumbnail.NewKafkaDispatcher(writer, nil), nil); err != nil {
		slog.Error("thumbnail backfill failed", "error", err)
	}
	if err := writer.Close(); err != nil {
		slog.Warn("failed to close backfill writer", "error", err)
	}

	reader := thumbnail.NewKafkaReader(conf.Kafka.Brokers, conf.Kafka.Topic, conf.Kafka.GroupID)
	consumer := thumbnail.NewConsumer(reader, processor, nil)
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer reader.Close()
		if err := consumer.Run(ctx); err != nil {
			slog.Error("thumbnail consumer stopped", "error", err)
		}
	}()
	slog.Info("Thumbnail consumer started", "topic", conf.Kafka.Topic, "group", conf.Kafka.GroupID)
}

func serveMetrics(ctx context.Context, port int, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("Serving metrics", "addr", srv.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("metrics server failed", "error", err)
	}
}
