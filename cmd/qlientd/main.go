// Package main provides the qlientd daemon. It initializes the
// connection core and wires it to a /status HTTP endpoint, following the
// same bring-up/graceful-shutdown shape as the consensus server it is
// descended from.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/salahayoub/qlient/pkg/core"
)

func main() {
	cfg, err := ParseFlags(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to parse flags: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Configuration validation failed: %v", err)
	}

	adminKey, err := cfg.AdminPublicKey()
	if err != nil {
		log.Fatalf("Invalid admin key: %v", err)
	}

	computors := make([]core.ComputorConfig, len(cfg.Computors))
	for i, url := range cfg.Computors {
		computors[i] = core.ComputorConfig{URL: url, ReconnectDelay: cfg.ReconnectDelay}
	}

	connCore, err := core.New(core.Config{
		Computors:               computors,
		SynchronizationInterval: cfg.SynchronizationInterval,
		AdminPublicKey:          adminKey,
		DBPath:                  cfg.DBPath,
	})
	if err != nil {
		log.Fatalf("Failed to create connection core: %v", err)
	}

	if err := connCore.Start(); err != nil {
		log.Fatalf("Failed to start connection core: %v", err)
	}
	log.Printf("Connection core started against %d computors", len(computors))

	statusHandler := NewStatusHandler(connCore)
	mux := http.NewServeMux()
	mux.Handle("/status", statusHandler)

	httpAddr := fmt.Sprintf(":%d", cfg.HTTPPort)
	httpServer := &http.Server{
		Addr:    httpAddr,
		Handler: mux,
	}

	go func() {
		log.Printf("Starting HTTP server on %s", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("HTTP server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	exitCode := gracefulShutdown(httpServer, connCore)
	os.Exit(exitCode)
}

// gracefulShutdown performs an orderly shutdown: stop accepting new HTTP
// requests, then terminate every peer session and close the outbox store.
func gracefulShutdown(httpServer *http.Server, connCore *core.Core) int {
	exitCode := 0

	log.Printf("Stopping HTTP server...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
		exitCode = 1
	} else {
		log.Printf("HTTP server stopped")
	}

	log.Printf("Stopping connection core...")
	if err := connCore.Stop(); err != nil {
		log.Printf("Error stopping connection core: %v", err)
		exitCode = 1
	} else {
		log.Printf("Connection core stopped")
	}

	if exitCode == 0 {
		log.Printf("Graceful shutdown completed successfully")
	} else {
		log.Printf("Graceful shutdown completed with errors")
	}

	return exitCode
}
