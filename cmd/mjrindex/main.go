// Command mjrindex indexes an output (and optional input) directory tree
// of generated images/video/audio, keeping an on-disk SQLite catalog in
// sync via an initial scan plus a filesystem watcher, and exposing search
// over it to an embedding caller. No HTTP server or RPC surface is wired
// up here; this binary is a reference harness for the engine, not a
// service (spec §1, §4.12).
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/snapetech/mjrindex/internal/assetpaths"
	"github.com/snapetech/mjrindex/internal/config"
	"github.com/snapetech/mjrindex/internal/orchestrator"
	"github.com/snapetech/mjrindex/internal/probes"
	"github.com/snapetech/mjrindex/internal/schema"
	"github.com/snapetech/mjrindex/internal/store"
)

func main() {
	outputRoot := flag.String("output", "", "output directory to index (overrides MJR_OUTPUT_ROOT)")
	inputRoot := flag.String("input", "", "optional input directory to index (overrides MJR_INPUT_ROOT)")
	watch := flag.Bool("watch", true, "watch the output root for changes after the initial scan")
	flag.Parse()

	cfg := config.Load()
	if *outputRoot != "" {
		cfg.OutputRoot = *outputRoot
	}
	if *inputRoot != "" {
		cfg.InputRoot = *inputRoot
	}
	if cfg.OutputRoot == "" {
		log.Fatalf("no output root configured (set -output or MJR_OUTPUT_ROOT)")
	}

	dbPath := filepath.Join(cfg.OutputRoot, cfg.IndexDir, "assets.sqlite")
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		log.Fatalf("create index dir: %v", err)
	}

	st, err := store.Open(dbPath, store.Options{
		PoolSize:         cfg.PoolSize,
		StatementTimeout: cfg.StatementTimeout,
		BusyTimeoutMS:    cfg.BusyTimeoutMS,
	})
	if err != nil {
		log.Fatalf("open store: %v", err)
	}
	defer st.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	migrator := schema.NewMigrator(st)
	if err := migrator.MigrateSchema(ctx); err != nil {
		log.Fatalf("migrate schema: %v", err)
	}

	tagReader := probes.NewTagReader(cfg.ProbeTimeout)
	mediaProbe := probes.NewMediaProbe(cfg.ProbeTimeout)
	router := &probes.Router{Mode: probes.ModeAuto, TagReader: tagReader, MediaProbe: mediaProbe}

	o := orchestrator.New(st, router, tagReader, mediaProbe, orchestrator.Config{
		ExtractConcurrency: int64(cfg.ExtractConcurrency),
		ScanThrottle:       cfg.ScanThrottle,
	})

	log.Printf("scanning output root %s", cfg.OutputRoot)
	stats, err := o.Scanner.ScanDirectory(ctx, cfg.OutputRoot, true, true, assetpaths.SourceOutput, "", true, true)
	if err != nil {
		log.Fatalf("scan output root: %v", err)
	}
	log.Printf("initial scan: scanned=%d added=%d updated=%d skipped=%d errors=%d", stats.Scanned, stats.Added, stats.Updated, stats.Skipped, stats.Errors)
	o.EnqueueEnrich(ctx, stats.ToEnrich)

	if cfg.InputRoot != "" {
		log.Printf("scanning input root %s", cfg.InputRoot)
		if _, err := o.Scanner.ScanDirectory(ctx, cfg.InputRoot, true, true, assetpaths.SourceInput, "", true, false); err != nil {
			log.Printf("scan input root: %v", err)
		}
	}

	if *watch {
		if err := o.AddWatcher(ctx, cfg.OutputRoot, assetpaths.SourceOutput, cfg.WatcherDebounce, cfg.WatcherSettleDelay); err != nil {
			log.Printf("start watcher: %v", err)
		} else {
			log.Printf("watching %s for changes", cfg.OutputRoot)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down")
	cancel()
	if err := o.Close(); err != nil {
		log.Printf("close orchestrator: %v", err)
	}
	time.Sleep(100 * time.Millisecond) // let in-flight watcher/enricher goroutines observe ctx.Done
}
