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
	"github.com/ariefcatur/go-marketplace/internal/postgres"
	"github.com/ariefcatur/go-marketplace/internal/products"
	"github.com/ariefcatur/go-marketplace/internal/redisx"
	"github.com/ariefcatur/go-marketplace/internal/retry"
	"github.com/ariefcatur/go-marketplace/internal/telemetry"
	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load("product-service", ":8082", "products")
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
	if err := postgres.Migrate(ctx, db, products.Schema...); err != nil {
		log.Error("db migrate", "err", err)
		os.Exit(1)
	}

	// Redis; kalau belum siap tetap jalan, cache degrade ke DB
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()
	if err := redisx.Ping(ctx, rdb, connect, log); err != nil {
		log.Warn("redis unavailable, serving from store", "err", err)
	}
	cache := redisx.NewCache(rdb, cfg.CacheTTL, log)

	// Kafka: client untuk user.get.bulk, responder untuk topic milik product
	broker := kafkax.NewBroker(kafkax.BrokerConfig{
		Brokers:        cfg.KafkaBrokers,
		ClientID:       cfg.ServiceName,
		RequestTimeout: cfg.RPCTimeout,
		Connect:        connect,
	}, log)
	if err := broker.Connect(ctx); err != nil {
		log.Error("kafka connect", "err", err)
		os.Exit(1)
	}

	repo := &products.Repo{DB: db}
	svc := &products.Service{Repo: repo, Cache: cache, Sellers: products.UserDirectory{Broker: broker}, Log: log}
	ledger := products.NewLedger(repo, cache, log)

	responder := kafkax.NewResponder(kafkax.ResponderConfig{
		Brokers: cfg.KafkaBrokers,
		Group:   cfg.KafkaGroup,
		Workers: cfg.Workers,
		Connect: connect,
	}, log)
	products.Register(responder, svc, ledger)
	go func() {
		if err := responder.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("responder exit", "err", err)
			cancel()
		}
	}()

	// HTTP
	auth := httpx.NewAuth(users.Client{Broker: broker}, 4096, 30*time.Second)
	srv := httpx.NewServer(cfg.HTTPAddr, httpx.NewRouter(&httpx.ProductsHandler{Svc: svc, Auth: auth}))
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
	broker.Close()
	_ = shutdownOtel(ctx2)
}
