package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/sentinel/internal/alert"
	"github.com/your-org/sentinel/internal/cache"
	"github.com/your-org/sentinel/internal/config"
	"github.com/your-org/sentinel/internal/dedup"
	"github.com/your-org/sentinel/internal/intake"
	"github.com/your-org/sentinel/internal/models"
	"github.com/your-org/sentinel/internal/observability"
	"github.com/your-org/sentinel/internal/queue"
	"github.com/your-org/sentinel/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting sentinel intake worker",
		"workers", cfg.NATS.WorkerCount,
		"cpu_cores", runtime.NumCPU(),
	)

	// Connect to Postgres
	db, err := storage.NewPostgresStore(cfg.Database)
	if err != nil {
		slog.Error("connect to postgres", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Connect to NATS
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats producer", "error", err)
		os.Exit(1)
	}
	defer producer.Close()

	if err := producer.EnsureStreams(context.Background()); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	// Windowed dedup state
	store, err := cache.NewBadgerStore(cfg.Cache.Dir)
	if err != nil {
		slog.Error("open dedup cache", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	engine := dedup.New(store, cfg.Dedup)
	dispatcher := alert.NewNATSDispatcher(producer)
	intakeHandler := intake.NewHandler(engine, db, dispatcher, cfg.Dedup)

	// Create NATS consumer
	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("create consumer", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start consuming detection events
	err = consumer.ConsumeDetections(ctx, "intake-workers", func(ctx context.Context, msg jetstream.Msg) error {
		var ev models.DetectionEvent
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			slog.Error("unmarshal detection event", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		if _, err := intakeHandler.Process(ctx, ev); err != nil {
			if errors.Is(err, models.ErrInvalidEvent) {
				slog.Warn("drop invalid detection event", "detection_id", ev.DetectionID, "error", err)
				return nil
			}
			return fmt.Errorf("process detection %s: %w", ev.DetectionID, err)
		}

		return nil
	}, cfg.NATS.WorkerCount)
	if err != nil {
		slog.Error("start detection consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("worker metrics listening", "addr", ":8082")
		if err := http.ListenAndServe(":8082", mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Periodically report queue depth
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				depth, err := producer.QueueDepth(ctx)
				if err == nil {
					observability.QueueDepth.Set(float64(depth))
				}
			}
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down worker...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("worker stopped")
}
