package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"annistats/pkg/config"
	"annistats/pkg/live"
	"annistats/pkg/playercount"
	"annistats/pkg/server"
)

func main() {
	log.Println("Starting annistats server...")

	cfg := server.LoadConfig()
	log.Printf("Data directory: %s", cfg.DataDir)
	log.Printf("Archive directory: %s", cfg.ArchiveDir)

	st, err := server.InitializeStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize document store: %v", err)
	}
	defer st.Close()

	archive, err := playercount.NewArchive(cfg.ArchiveDir)
	if err != nil {
		log.Fatalf("Failed to initialize player count archive: %v", err)
	}

	pcHandler, err := playercount.NewHandler(archive)
	if err != nil {
		log.Fatalf("Failed to initialize player count handler: %v", err)
	}
	defer pcHandler.Close()

	hub := live.NewHub()
	sampler := playercount.NewSampler(cfg.PlayerCountURL, archive, hub)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hub.Run(ctx)
	}()
	log.Println("Live player count hub started")

	wg.Add(1)
	go func() {
		defer wg.Done()
		sampler.RunPollLoop(ctx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		sampler.RunMidnightFlush(ctx)
	}()
	log.Printf("Player count sampler started (every %v, flush at midnight)", config.PollInterval)

	dataMonitor, archiveMonitor := server.NewMonitors(cfg)
	handlers, err := server.NewHandlers(st, dataMonitor, archiveMonitor)
	if err != nil {
		log.Fatalf("Failed to initialize handlers: %v", err)
	}
	defer handlers.Close()

	router := server.NewRouter(cfg, handlers, pcHandler, hub, sampler.Buffer())

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
	}

	go func() {
		log.Printf("Server listening on http://localhost:%s", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutdown signal received...")

	// Stop background loops before the final flush so no fetch races the
	// buffer drain.
	cancel()

	flushCtx, flushCancel := context.WithTimeout(context.Background(), config.ShutdownFlushTimeout)
	sampler.FlushWithTimeout(flushCtx, "shutdown")
	flushCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer shutdownCancel()

	log.Println("Gracefully shutting down server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown warning: %v", err)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		log.Println("All background tasks stopped cleanly")
	case <-time.After(5 * time.Second):
		log.Println("Some background tasks did not stop in time (forcing exit)")
	}

	log.Println("annistats server exited cleanly")
}
