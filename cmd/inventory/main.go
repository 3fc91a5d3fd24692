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

	"github.com/ariefcatur/go-resilient-orders/internal/config"
	"github.com/ariefcatur/go-resilient-orders/internal/httpx"
	"github.com/ariefcatur/go-resilient-orders/internal/inventory"
	kafkax "github.com/ariefcatur/go-resilient-orders/internal/kafka"
	"github.com/ariefcatur/go-resilient-orders/internal/logging"
	"github.com/ariefcatur/go-resilient-orders/internal/postgres"
	"github.com/ariefcatur/go-resilient-orders/internal/tracing"
	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load("inventory", ":8082")
	log := logging.New(cfg.LogLevel)
	slog.SetDefault(log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Error("tracing init", "err", err)
		os.Exit(1)
	}

	var store inventory.Store
	switch cfg.Storage {
	case "memory":
		store = inventory.NewMemoryStore()
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Error("db connect", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := postgres.Migrate(ctx, db, postgres.InventorySchema...); err != nil {
			log.Error("db migrate", "err", err)
			os.Exit(1)
		}
		store = &inventory.PGStore{DB: db}
	}

	var pub kafkax.Publisher = kafkax.Discard{}
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, inventory.TopicStockReduced, 1024, log)
		prod.Start(ctx)
		pub = prod
	}

	svc := inventory.NewService(store, pub, cfg.ServiceName, log)
	router := httpx.NewRouter()
	router.Group(func(r chi.Router) {
		r.Use(httpx.Chaos(cfg.Chaos))
		(&httpx.ProductsHandler{Service: svc, Log: log}).Register(r)
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           tracing.WrapHandler(router, cfg.ServiceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr, "storage", cfg.Storage,
			"chaos_error_rate", cfg.Chaos.ErrorRate, "chaos_delay_min", cfg.Chaos.DelayMin)
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
