package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-marketplace/internal/config"
	"github.com/ariefcatur/go-marketplace/internal/httpx"
	kafkax "github.com/ariefcatur/go-marketplace/internal/kafka"
	"github.com/ariefcatur/go-marketplace/internal/logging"
	"github.com/ariefcatur/go-marketplace/internal/orders"
	"github.com/ariefcatur/go-marketplace/internal/outbox"
	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/ariefcatur/go-marketplace/internal/retry"
	"github.com/ariefcatur/go-marketplace/internal/telemetry"
	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load("order-service", ":8081", "orders")
	log := logging.New(cfg.ServiceName, cfg.LogLevel)
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownOtel, err := telemetry.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("telemetry init", "err", err)
		os.Exit(1)
	}
	connect := retry.Fixed(cfg.ConnectAttempts, cfg.ConnectBackoff)

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, connect, log)
	if err != nil {
		log.Error("db connect", "err", err)
		os.Exit(1)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db, append(orders.Schema, outbox.Schema...)...); err != nil {
		log.Error("db migrate", "err", err)
		os.Exit(1)
	}

	// Kafka
	broker := kafkax.NewBroker(kafkax.BrokerConfig{
		Brokers:        cfg.KafkaBrokers,
		ClientID:       cfg.ServiceName,
		RequestTimeout: cfg.RPCTimeout,
		Connect:        connect,
	}, log)
	ob := &outbox.Outbox{Store: &outbox.PGStore{DB: db}, Producer: cfg.ServiceName, Log: log}
	broker.OnEmitFailure(ob.Capture)
	if err := broker.Connect(ctx); err != nil {
		log.Error("kafka connect", "err", err)
		os.Exit(1)
	}

	// Saga
	svc := orders.NewService(&orders.Repo{DB: db}, orders.Gateway{Broker: broker}, broker, ob, log)
	go svc.RunSweeper(ctx, cfg.SweepInterval)
	go outbox.NewRelay(log, ob.Store, broker, 5*time.Second).Run(ctx)

	// HTTP
	auth := httpx.NewAuth(users.Client{Broker: broker}, 4096, 30*time.Second)
	srv := httpx.NewServer(cfg.HTTPAddr, httpx.NewRouter(&httpx.OrdersHandler{Svc: svc, Auth: auth}))
	go func() {
		log.Info("http listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("listen", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	broker.Close() // flush producer, lalu sisanya masuk outbox lewat OnEmitFailure
	_ = shutdownOtel(ctx2)
}
