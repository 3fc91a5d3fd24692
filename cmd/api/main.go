package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-resilient-orders/internal/breaker"
	"github.com/ariefcatur/go-resilient-orders/internal/config"
	"github.com/ariefcatur/go-resilient-orders/internal/gate"
	"github.com/ariefcatur/go-resilient-orders/internal/httpx"
	kafkax "github.com/ariefcatur/go-resilient-orders/internal/kafka"
	"github.com/ariefcatur/go-resilient-orders/internal/logging"
	"github.com/ariefcatur/go-resilient-orders/internal/orders"
	"github.com/ariefcatur/go-resilient-orders/internal/postgres"
	"github.com/ariefcatur/go-resilient-orders/internal/redisx"
	"github.com/ariefcatur/go-resilient-orders/internal/stock"
	"github.com/ariefcatur/go-resilient-orders/internal/tracing"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load("order-api", ":8081")
	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracing init", "err", err)
		os.Exit(1)
	}

	// Repo
	var repo orders.Repository
	switch cfg.Storage {
	case "memory":
		repo = orders.NewMemoryRepo()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db, postgres.OrdersSchema...); err != nil {
			log.Error("db migrate", "err", err)
			os.Exit(1)
		}
		repo = &orders.Repo{DB: db}
	}

	// Redis (optional)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redisx.New(cfg.RedisAddr)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Warn("redis unreachable, continuing without cache", "addr", cfg.RedisAddr, "err", err)
			rdb = nil
		}
	}

	// Kafka producer (optional)
	var pub kafkax.Publisher = kafkax.Discard{}
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPlaced, 1024, log)
		prod.Start(ctx)
		pub = prod
	}

	// Stock ledger behind breaker + gate
	cb := breaker.New(breaker.Settings{
		Name:           "stock-ledger",
		Window:         cfg.Breaker.Window,
		MinCalls:       cfg.Breaker.MinCalls,
		FailureRatio:   cfg.Breaker.FailureRatio,
		Cooldown:       cfg.Breaker.Cooldown,
		HalfOpenProbes: cfg.Breaker.HalfOpenProbes,
		Healthy:        stock.IsRejection,
	}, log)
	g := gate.New(cb, gate.Policy{
		MaxAttempts:    cfg.Retry.MaxAttempts,
		AttemptTimeout: cfg.Retry.AttemptTimeout,
		InitialBackoff: cfg.Retry.InitialBackoff,
		MaxBackoff:     cfg.Retry.MaxBackoff,
		IsRejection:    stock.IsRejection,
	}, log)
	gw := stock.NewGateway(g, stock.NewClient(cfg.StockLedgerURL, nil))

	svc := orders.NewService(gw, repo, pub, cfg.ServiceName, log)
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Service:    svc,
		Redis:      rdb,
		Breaker:    cb,
		RetryAfter: cfg.Breaker.Cooldown,
		Log:        log,
	}
	oh.Register(router)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           tracing.WrapHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr, "stock_ledger", cfg.StockLedgerURL, "storage", cfg.Storage)
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
	if prod != nil {
		prod.Close()
		prod.WaitClosed()
	}
	_ = shutdownTracing(ctx2)
}
