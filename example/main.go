package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/taskplane/webhooks"
	"github.com/taskplane/webhooks/storage"
)

func main() {
	logger, err := zap.NewDevelopment()
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	// A local receiver standing in for an external subscriber endpoint. It
	// verifies the signature the way a real receiver would.
	secret := "example-secret"
	receiver := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !webhooks.VerifySignature(secret, body, r.Header.Get("X-Signature")) {
			logger.Warn("Rejected delivery with bad signature")
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		logger.Info("Received webhook",
			zap.String("event_id", r.Header.Get("X-Event-Id")),
			zap.String("event_type", r.Header.Get("X-Event-Type")))
		w.WriteHeader(http.StatusOK)
	}))
	defer receiver.Close()

	registry := webhooks.NewRegistry(webhooks.WithRegistryLogger(logger))
	sub, err := registry.Register(receiver.URL,
		[]webhooks.EventKind{webhooks.KindTaskCompleted, webhooks.KindPlanCompleted},
		webhooks.WithSecret(secret),
		webhooks.WithMaxAttempts(3),
		webhooks.WithAttemptTimeout(5*time.Second))
	if err != nil {
		logger.Fatal("Failed to register subscription", zap.Error(err))
	}

	stream := webhooks.NewStream(webhooks.WithStreamLogger(logger))
	stream.Subscribe(func(_ context.Context, event webhooks.Event) error {
		logger.Info("Stream observer saw event", zap.String("event_id", event.ID))
		return nil
	})

	store := storage.NewMemoryStore()
	engine := webhooks.NewEngine(registry,
		webhooks.WithLogger(logger),
		webhooks.WithStore(store),
		webhooks.WithStream(stream),
		webhooks.WithMetrics(webhooks.NewOTelMetricsCollector()))
	defer engine.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Retention worker keeps the in-memory delivery log bounded.
	retention := webhooks.NewRetentionService(store, logger, nil, 24*time.Hour)
	dispatcher := webhooks.NewDispatcher(logger,
		webhooks.NewIntervalWorker("retention", time.Hour, logger, retention.Prune))
	go dispatcher.Start(ctx)
	defer dispatcher.Stop()

	for _, kind := range []webhooks.EventKind{webhooks.KindTaskCompleted, webhooks.KindPlanCompleted} {
		event, err := webhooks.NewEvent(kind, map[string]any{"plan_id": "demo-plan"}, nil)
		if err != nil {
			logger.Fatal("Failed to build event", zap.Error(err))
		}
		engine.Trigger(ctx, event)
	}

	engine.WaitForDeliveries()

	status, err := engine.DeliveryStatus(ctx, sub.ID)
	if err != nil {
		logger.Fatal("Failed to read delivery status", zap.Error(err))
	}
	fmt.Printf("deliveries for %s: total=%d successful=%d failed=%d pending=%d\n",
		sub.ID, status.Total, status.Successful, status.Failed, status.Pending)

	fmt.Printf("recent events on stream: %d\n", len(stream.Recent(10)))
}
