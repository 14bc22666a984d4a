package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"mailcrm/internal/config"
	"mailcrm/internal/events"
	"mailcrm/internal/listener"
	"mailcrm/internal/logging"
	"mailcrm/internal/secrets"
	"mailcrm/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	src, err := secrets.NewSource(ctx, cfg)
	must(err)
	must(secrets.Resolve(ctx, src, &cfg))

	opts := []listener.Option{}
	if strings.TrimSpace(cfg.JournalPath) != "" {
		db, err := storage.Open(cfg.JournalPath)
		must(err)
		defer db.Close()
		opts = append(opts, listener.WithJournal(db))
	}

	publisher, err := events.NewPublisher(ctx, cfg)
	must(err)
	defer publisher.Close()
	opts = append(opts, listener.WithEvents(publisher))

	svc := listener.NewService(cfg, logger, opts...)
	must(svc.Run(ctx))
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
