package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"mailcrm/internal/config"
	"mailcrm/internal/events"
	"mailcrm/internal/listener"
	"mailcrm/internal/logging"
	"mailcrm/internal/metrics"
	"mailcrm/internal/pipeline"
	"mailcrm/internal/secrets"
	"mailcrm/internal/server"
	"mailcrm/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cmd := os.Args[1]
	switch cmd {
	case "scan":
		svc, cleanup := buildService(ctx, cfg, logger, nil)
		defer cleanup()
		resp := svc.RunOnce(ctx, "cli")
		printJSON(resp)
		if !resp.Success {
			cleanup()
			os.Exit(1)
		}
	case "serve":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		addr := fs.String("addr", cfg.HTTPAddr, "listen address")
		_ = fs.Parse(os.Args[2:])
		m := metrics.New()
		svc, cleanup := buildService(ctx, cfg, logger, m)
		defer cleanup()
		must(server.New(svc, m.Handler()).Serve(ctx, *addr, 30*time.Second))
	case "parse":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "spreadsheet (.xlsx) or message (.eml) path")
		output := fs.String("output", "", "optional preview xlsx path")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(*input) == "" {
			must(fmt.Errorf("--input is required"))
		}
		extraction, records, err := pipeline.PreviewFile(ctx, *input, pipeline.OptionsFromConfig(cfg), logger)
		must(err)
		if strings.TrimSpace(*output) != "" {
			must(pipeline.ExportRecordsToXLSX(records, *output))
			fmt.Printf("parse done code=%s records=%d skipped=%d output=%s\n", extraction.HeaderCode, len(records), len(extraction.Skipped), *output)
			return
		}
		printJSON(map[string]any{"ddeCode": extraction.HeaderCode, "records": records, "skippedRows": extraction.Skipped})
	case "runs:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		limit := fs.Int("limit", 20, "number of runs")
		_ = fs.Parse(os.Args[2:])
		if strings.TrimSpace(cfg.JournalPath) == "" {
			must(fmt.Errorf("JOURNAL_DB_PATH is not set"))
		}
		db, err := storage.Open(cfg.JournalPath)
		must(err)
		defer db.Close()
		runs, err := db.ListRuns(*limit)
		must(err)
		printJSON(runs)
	default:
		usage()
		os.Exit(1)
	}
}

// buildService resolves credentials and wires the optional journal, metrics
// and event publisher around the listener service.
func buildService(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*listener.Service, func()) {
	src, err := secrets.NewSource(ctx, cfg)
	must(err)
	must(secrets.Resolve(ctx, src, &cfg))

	opts := []listener.Option{}
	var closers []func()

	if strings.TrimSpace(cfg.JournalPath) != "" {
		db, err := storage.Open(cfg.JournalPath)
		must(err)
		opts = append(opts, listener.WithJournal(db))
		closers = append(closers, func() { _ = db.Close() })
	}
	if m != nil {
		opts = append(opts, listener.WithMetrics(m))
	}

	publisher, err := events.NewPublisher(ctx, cfg)
	must(err)
	opts = append(opts, listener.WithEvents(publisher))
	closers = append(closers, publisher.Close)

	done := false
	cleanup := func() {
		if done {
			return
		}
		done = true
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	return listener.NewService(cfg, logger, opts...), cleanup
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	must(enc.Encode(v))
}

func usage() {
	fmt.Println("usage: mailcrm <command>")
	fmt.Println("commands:")
	fmt.Println("  scan")
	fmt.Println("  serve [--addr=:8080]")
	fmt.Println("  parse --input=./DDE_0302.xlsx|./message.eml [--output=./out/preview.xlsx]")
	fmt.Println("  runs:list [--limit=20]")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
