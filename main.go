// Command footfall-report runs the people-counting service: it schedules
// the configured camera and video streams across a worker pool, aggregates
// the counts, and serves status, charts and metrics over HTTP.
//
// Stream sources are replay detection logs (JSONL); a live inference
// backend plugs in as a counter.Detector without touching the pipeline.
//
// Usage:
//
//	footfall-report [flags]
//	footfall-report [flags] migrate up|down|version|force <n>
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/footfall.report/internal/config"
	"github.com/banshee-data/footfall.report/internal/counter"
	"github.com/banshee-data/footfall.report/internal/db"
	"github.com/banshee-data/footfall.report/internal/metrics"
	"github.com/banshee-data/footfall.report/internal/monitor"
	"github.com/banshee-data/footfall.report/internal/orchestrator"
	"github.com/banshee-data/footfall.report/internal/pool"
	"github.com/banshee-data/footfall.report/internal/replay"
	"github.com/banshee-data/footfall.report/internal/version"
)

var (
	configPath    = flag.String("config", "", "Path to a JSON config file (defaults apply when empty)")
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "footfall.db", "Path to the sqlite database (empty disables persistence)")
	migrationsDir = flag.String("migrations", "migrations", "Path to the migrations directory")
	verbose       = flag.Bool("verbose", false, "Enable diagnostic logging")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	counter.SetLogWriters(os.Stderr, verboseWriter(), nil)
	pool.SetLogWriters(os.Stderr, verboseWriter())
	orchestrator.SetLogWriters(os.Stderr)

	cfg := config.EmptyConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
	}

	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		if err := runMigrate(args[1:]); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		return
	}

	opts := []orchestrator.Option{}
	m := metrics.New()
	opts = append(opts, orchestrator.WithMetrics(m))

	if *dbFile != "" {
		store, err := db.NewDB(*dbFile)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer store.Close()
		if err := store.MigrateUp(*migrationsDir); err != nil {
			log.Fatalf("failed to migrate database: %v", err)
		}
		opts = append(opts, orchestrator.WithStore(store))
	}

	orch := orchestrator.New(counter.NullDetector{}, cfg, replay.OpenStream, opts...)

	added, err := orch.AddConfiguredTasks()
	if err != nil {
		log.Printf("some configured streams could not be scheduled: %v", err)
	}
	log.Printf("footfall-report %s: scheduled %d streams", version.Version, len(added))

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Start(ctx); err != nil {
		log.Fatalf("failed to start orchestrator: %v", err)
	}

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		ws := monitor.NewWebServer(orch, m)
		server := &http.Server{
			Addr:    *listen,
			Handler: ws.Handler(),
		}

		go func() {
			log.Printf("listening on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}
	}()

	<-ctx.Done()
	if err := orch.Stop(); err != nil {
		log.Printf("orchestrator stop: %v", err)
	}

	// Flush a final snapshot so a run's counts survive the process.
	if paths, err := orch.ExportResults("json"); err != nil {
		log.Printf("final export failed: %v", err)
	} else {
		log.Printf("final results exported to %v", paths)
	}

	wg.Wait()
	summary := orch.GetSummary()
	log.Printf("run complete: %d tasks, in=%d out=%d net=%d",
		summary.TotalTasks, summary.Overall.TotalIn, summary.Overall.TotalOut, summary.Overall.NetCount)
}

// verboseWriter returns nil as an untyped interface so the package loggers
// see a disabled stream, not a typed nil writer.
func verboseWriter() io.Writer {
	if *verbose {
		return os.Stderr
	}
	return nil
}

func runMigrate(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: migrate up|down|version|force <n>")
	}
	if *dbFile == "" {
		return fmt.Errorf("migrate requires -db")
	}

	store, err := db.NewDB(*dbFile)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()

	switch args[0] {
	case "up":
		return store.MigrateUp(*migrationsDir)
	case "down":
		return store.MigrateDown(*migrationsDir)
	case "version":
		v, dirty, err := store.MigrateVersion(*migrationsDir)
		if err != nil {
			return err
		}
		log.Printf("schema version %d (dirty=%v)", v, dirty)
		return nil
	case "force":
		if len(args) < 2 {
			return fmt.Errorf("usage: migrate force <version>")
		}
		v, err := strconv.Atoi(args[1])
		if err != nil {
			return fmt.Errorf("bad version %q: %w", args[1], err)
		}
		return store.MigrateForce(*migrationsDir, v)
	default:
		return fmt.Errorf("unknown migrate command %q", args[0])
	}
}
