package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ariefcatur/go-rental-settlement/internal/config"
	"github.com/ariefcatur/go-rental-settlement/internal/holds"
	kafkax "github.com/ariefcatur/go-rental-settlement/internal/kafka"
	"github.com/ariefcatur/go-rental-settlement/internal/logger"
	"github.com/ariefcatur/go-rental-settlement/internal/notify"
	"github.com/ariefcatur/go-rental-settlement/internal/postgres"
	"github.com/ariefcatur/go-rental-settlement/internal/redisx"
	"github.com/ariefcatur/go-rental-settlement/internal/rentals"
)

func fatal(msg string, err error) {
	logger.Error(msg, "error", err)
	os.Exit(1)
}

func main() {
	cfg := config.Load()
	logger.Initialize(cfg.LogLevel, cfg.LogFormat)
	log := logger.WithService(cfg.ServiceName + "-notifier")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		fatal("db connect", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	d, err := notify.NewDispatcherFromConfig(ctx, cfg, &rentals.Repo{DB: db})
	if err != nil {
		fatal("notify setup", err)
	}
	handler := &notify.Consumer{Dispatcher: d, Dedup: redisx.NewDeduper(rdb, "notifier")}

	sweeper, err := holds.NewSweeper(&holds.Repo{DB: db}, cfg.HoldSweepSpec)
	if err != nil {
		fatal("hold sweep schedule", err)
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, rentals.TopicRentalConfirmed, cfg.NotifierWorkers)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("notifier consumer started",
			"group", cfg.NotifierGroup, "topic", rentals.TopicRentalConfirmed, "workers", cfg.NotifierWorkers)
		err := cons.Start(gctx, handler.HandleRentalConfirmed)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		log.Info("hold sweeper started", "spec", cfg.HoldSweepSpec)
		sweeper.Start()
		<-gctx.Done()
		<-sweeper.Stop().Done()
		return nil
	})

	if err := g.Wait(); err != nil {
		fatal("notifier exit", err)
	}
	log.Info("notifier stopped")
}
