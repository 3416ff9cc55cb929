package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-rental-settlement/internal/booking"
	"github.com/ariefcatur/go-rental-settlement/internal/checkout"
	"github.com/ariefcatur/go-rental-settlement/internal/config"
	"github.com/ariefcatur/go-rental-settlement/internal/gateway"
	"github.com/ariefcatur/go-rental-settlement/internal/holds"
	"github.com/ariefcatur/go-rental-settlement/internal/httpx"
	kafkax "github.com/ariefcatur/go-rental-settlement/internal/kafka"
	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/notify"
	"github.com/ariefcatur/go-rental-settlement/internal/postgres"
	"github.com/ariefcatur/go-rental-settlement/internal/pricing"
	"github.com/ariefcatur/go-rental-settlement/internal/reconcile"
	"github.com/ariefcatur/go-rental-settlement/internal/redisx"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

// razorpay notes are capped at 15 entries of 256 chars
const (
	razorpayNoteLimit = 256
	razorpayMaxParts  = 12
)

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithService(cfg.ServiceName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		fatal("db migrate", err)
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		fatal("db connect", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	store := &rentals.Repo{DB: db}
	engine := pricing.NewEngine(store)

	codec := checkout.NewCodec(cfg.PayloadLimit)
	var gw gateway.Gateway
	switch cfg.Gateway {
	case "razorpay":
		gw = gateway.NewRazorpay(cfg.RazorpayKeyID, cfg.RazorpaySecret, &gateway.PGIndex{DB: db}, cfg.IntentTTL)
		codec.Limit = min(codec.Limit, razorpayNoteLimit)
		codec.MaxParts = razorpayMaxParts
	default:
		log.Warn("using in-memory mock payment gateway")
		gw = gateway.NewMock(cfg.IntentTTL)
	}

	// Downstream handoff: kafka when brokers are configured, in-process otherwise
	var handoff notify.Handoff
	var prod *kafkax.Producer
	if len(cfg.KafkaBrokers) > 0 {
		prod = kafkax.NewProducer(cfg.KafkaBrokers, rentals.TopicRentalConfirmed, 1024)
		prod.Start(ctx)
		handoff = notify.KafkaHandoff{Producer: prod, Service: cfg.ServiceName}
	} else {
		d, err := notify.NewDispatcherFromConfig(ctx, cfg, store)
		if err != nil {
			fatal("notify setup", err)
		}
		handoff = notify.Direct{Dispatcher: d}
	}

	bk := booking.NewService(store, gw, cfg.Currency)
	bk.Cache = redisx.NewIdempotencyCache(rdb)
	bk.Handoff = handoff
	bk.Attempts, bk.Backoff = cfg.RetryAttempts, cfg.RetryBackoff

	router := httpx.NewRouter(cfg.CORSOrigins)
	(&httpx.QuoteHandler{Engine: engine, Currency: cfg.Currency}).Register(router)
	(&httpx.HoldsHandler{Manager: holds.NewManager(&holds.Repo{DB: db}, store, cfg.HoldTTL)}).Register(router)
	(&httpx.CheckoutHandler{Service: &checkout.Service{
		Engine:    engine,
		Inventory: store,
		Gateway:   gw,
		Codec:     codec,
		Currency:  cfg.Currency,
		BaseURL:   cfg.CheckoutBaseURL,
	}}).Register(router)
	(&httpx.WebhookHandler{
		Events: reconcile.New(store, gw, codec, handoff),
		Secret: cfg.WebhookSecret,
		Dedup:  redisx.NewDeduper(rdb, "webhook"),
	}).Register(router)
	(&httpx.RentalsHandler{Service: bk}).Register(router)

	if cfg.WebhookSecret == "" {
		log.Warn("WEBHOOK_SECRET not set, webhook signatures are not verified")
	}

	// HTTP server
	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		log.Info("HTTP listening", "addr", cfg.HTTPAddr, "gateway", cfg.Gateway)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal("listen", err)
		}
	}()

	// wait signal
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	if prod != nil {
		prod.Close()      // close inbox, flush and close the writer
		cancel()          // stop the producer loop
		prod.WaitClosed() // drain
	}
}
