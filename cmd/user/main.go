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
	"github.com/ariefcatur/go-marketplace/internal/retry"
	"github.com/ariefcatur/go-marketplace/internal/telemetry"
	"github.com/ariefcatur/go-marketplace/internal/users"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load("user-service", ":8083", "users")
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
	if err := postgres.Migrate(ctx, db, users.Schema...); err != nil {
		log.Error("db migrate", "err", err)
		os.Exit(1)
	}

	svc := &users.Service{
		Repo:   &users.Repo{DB: db},
		Tokens: &users.Tokens{Secret: []byte(cfg.JWTSecret), TTL: cfg.JWTTTL},
		Log:    log,
	}

	// Kafka: user service cuma menjawab RPC
	responder := kafkax.NewResponder(kafkax.ResponderConfig{
		Brokers: cfg.KafkaBrokers,
		Group:   cfg.KafkaGroup,
		Workers: cfg.Workers,
		Connect: connect,
	}, log)
	users.Register(responder, svc)
	go func() {
		if err := responder.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("responder exit", "err", err)
			cancel()
		}
	}()

	// HTTP; token divalidasi lokal, tanpa lewat broker
	auth := httpx.NewAuth(svc, 4096, 30*time.Second)
	srv := httpx.NewServer(cfg.HTTPAddr, httpx.NewRouter(&httpx.UsersHandler{Svc: svc, Auth: auth}))
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
	_ = shutdownOtel(ctx2)
}
