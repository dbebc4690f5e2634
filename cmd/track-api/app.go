package main

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/api/trackingapi"
	"github.com/BlazeeWear/TrackFaro/internal/broker/messages"
	"github.com/BlazeeWear/TrackFaro/internal/models"
	"github.com/BlazeeWear/TrackFaro/internal/notify/slackhook"
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
)

type trackAPIOpts struct {
	httpAddr    string
	swaggerPath string

	topic         string
	consumerGroup string

	onListen func(httpAddr string)
}

type shipmentConsumer interface {
	Consume(ctx context.Context, handler func(ctx context.Context, msg messages.ShipmentUpdated) error) error
}

type noteAdder interface {
	AddNote(ctx context.Context, orderID int64, content string) error
}

func runTrackAPI(ctx context.Context, opts trackAPIOpts, api *trackingapi.API, store noteAdder, notify *slackhook.Client, consumer shipmentConsumer) error {
	if opts.swaggerPath == "" {
		return fmt.Errorf("swaggerPath env var is required")
	}
	if _, err := os.Stat(opts.swaggerPath); os.IsNotExist(err) {
		return fmt.Errorf("swagger file not found: %s", opts.swaggerPath)
	}

	lis, err := net.Listen("tcp", opts.httpAddr)
	if err != nil {
		return err
	}
	if opts.onListen != nil {
		opts.onListen(lis.Addr().String())
	}

	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/swagger.json", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store")
		http.ServeFile(w, r, opts.swaggerPath)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/swagger.json")))
	r.Group(api.Routes)

	go func() {
		slog.Info("kafka consumer started", "topic", opts.topic, "group", opts.consumerGroup)
		err := consumer.Consume(ctx, func(ctx context.Context, msg messages.ShipmentUpdated) error {
			return applyShipmentUpdate(ctx, store, notify, msg)
		})
		if err != nil && ctx.Err() == nil {
			slog.Error("kafka consumer stopped", "error", err.Error())
		}
	}()

	srv := &http.Server{Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		_ = lis.Close()
	}()

	slog.Info("HTTP server listening", "addr", lis.Addr().String())
	if err := srv.Serve(lis); err != nil && err != http.ErrServerClosed {
		return err
	}
	return ctx.Err()
}

// applyShipmentUpdate превращает событие свипера в заметку заказа;
// проблемные отгрузки дополнительно уходят в Slack.
func applyShipmentUpdate(ctx context.Context, store noteAdder, notify *slackhook.Client, msg messages.ShipmentUpdated) error {
	if msg.OrderID == 0 {
		return nil
	}

	note := fmt.Sprintf("Rastreio %s: %s (%s)", msg.TrackingCode, msg.Message, msg.Status)
	if err := store.AddNote(ctx, msg.OrderID, note); err != nil {
		return err
	}

	if msg.Status == models.StatusProblem && notify != nil && notify.Enabled() {
		text := slackhook.ProblemMessage(msg.OrderID, msg.TrackingCode, msg.Message)
		if err := notify.Notify(ctx, text); err != nil {
			slog.Error("slack notify failed", "order_id", msg.OrderID, "error", err.Error())
		}
	}
	return nil
}
