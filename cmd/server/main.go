package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/matthewbaird/rentledger/internal/activity"
	"github.com/matthewbaird/rentledger/internal/config"
	"github.com/matthewbaird/rentledger/internal/event"
	"github.com/matthewbaird/rentledger/internal/eventbus"
	"github.com/matthewbaird/rentledger/internal/ledger"
	"github.com/matthewbaird/rentledger/internal/server"
	"github.com/matthewbaird/rentledger/internal/store"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	pol, err := cfg.Policy()
	if err != nil {
		log.Fatalf("loading late-fee policy: %v", err)
	}

	st, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("opening database: %v", err)
	}
	defer st.Close()
	if err := st.Migrate(ctx); err != nil {
		log.Fatalf("running schema migration: %v", err)
	}

	// The activity feed shares the ledger's connection.
	feed := activity.NewSQLStore(st.Driver())
	if err := feed.Migrate(ctx); err != nil {
		log.Fatalf("running activity migration: %v", err)
	}
	log.Println("database migrated successfully")

	bus := eventbus.New(cfg.EventBuffer)
	stream := eventbus.NewWSBroadcaster(cfg.EventBuffer)
	bus.Subscribe("log", eventbus.LogEvents(nil))
	bus.Subscribe("ws", stream)
	bus.Start(ctx)
	defer bus.Stop()

	recorder := event.NewActivityRecorder(feed, event.WithPublisher(bus))

	svc := ledger.New(st, pol, ledger.WithRecorder(recorder))

	if err := server.Run(ctx, server.Config{
		Port:     cfg.Port,
		Ledger:   svc,
		Activity: feed,
		Events:   stream,
	}); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
