// Command airlockd runs the Airlock trust boundary: it serves the agent and
// operator HTTP surfaces, drives the sandbox dispatcher, and persists
// credentials, profiles, and execution state either in-process or in
// PostgreSQL, depending on configuration.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ComputClaw/airlock/internal/app"
	"github.com/ComputClaw/airlock/internal/config"
)

func main() {
	addr := flag.String("addr", "", "HTTP listen address (overrides ADDR env var)")
	dsn := flag.String("dsn", "", "PostgreSQL DSN (overrides DATABASE_URL env var; in-memory storage when empty)")
	flag.Parse()

	cfg := config.Load()
	if *addr != "" {
		cfg.Addr = *addr
	}
	if *dsn != "" {
		cfg.DatabaseURL = *dsn
	}

	rootCtx := context.Background()

	application, err := app.New(rootCtx, cfg)
	if err != nil {
		log.Fatalf("initialise application: %v", err)
	}

	if err := application.Start(rootCtx); err != nil {
		log.Fatalf("start application: %v", err)
	}
	log.Printf("airlock listening on %s", cfg.Addr)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		log.Fatalf("shutdown: %v", err)
	}
}
