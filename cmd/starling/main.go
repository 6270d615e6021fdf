package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wrenfield/starling/internal/config"
	"github.com/wrenfield/starling/internal/database"
	"github.com/wrenfield/starling/internal/logging"
	"github.com/wrenfield/starling/internal/push"
	"github.com/wrenfield/starling/internal/server"
)

func main() {
	// First-boot helper: mint a VAPID key pair, print it, and exit. The
	// operator persists the pair in the environment before enabling push.
	if len(os.Args) > 1 && os.Args[1] == "vapid-keygen" {
		pub, priv, err := push.GenerateVAPIDKeys()
		if err != nil {
			log.Fatalf("failed to generate VAPID keys: %v", err)
		}
		fmt.Printf("STARLING_VAPID_PUBLIC_KEY=%s\n", pub)
		fmt.Printf("STARLING_VAPID_PRIVATE_KEY=%s\n", priv)
		return
	}

	cfg := config.Load()
	logger := logging.Setup(cfg.LogLevel)

	if cfg.JWTSecret == "" {
		log.Fatal("STARLING_JWT_SECRET is required")
	}

	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	srv := server.New(db, cfg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if sched := srv.PushScheduler(); sched != nil {
		sched.Start(ctx)
		defer sched.Stop()
	}

	if mgr := srv.BackupManager(); mgr.Enabled() {
		mgr.Start(ctx)
		defer mgr.Stop()
	}

	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				srv.RateLimiter().Cleanup()
			}
		}
	}()

	httpServer := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      srv.Router(),
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		fmt.Printf("Starling running at http://localhost:%s\n", cfg.Port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	fmt.Println("\nShutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("shutdown error: %v", err)
	}
}
