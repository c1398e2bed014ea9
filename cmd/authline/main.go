package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skordev/authline/internal/audit"
	"github.com/skordev/authline/internal/config"
	"github.com/skordev/authline/internal/crypt"
	"github.com/skordev/authline/internal/defend"
	"github.com/skordev/authline/internal/dispatch"
	"github.com/skordev/authline/internal/engine"
	"github.com/skordev/authline/internal/server"
	"github.com/skordev/authline/internal/session"
	"github.com/skordev/authline/internal/store"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.Paths.Data, 0755); err != nil {
		log.Fatalf("Failed to create data directory: %v", err)
	}

	// Load or bootstrap the password encryption key
	key, err := crypt.LoadOrCreateKey(cfg.Paths.SecretKey)
	if err != nil {
		log.Fatalf("Failed to load secret key: %v", err)
	}
	crypter, err := crypt.New(key)
	if err != nil {
		log.Fatalf("Failed to initialize crypter: %v", err)
	}

	// Open user store
	userStore, err := store.Open(cfg.Paths.Database, crypter)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer userStore.Close()
	log.Printf("Database opened: %s", cfg.Paths.Database)

	// Open audit log
	auditFile, err := os.OpenFile(cfg.Paths.AuditLog, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		log.Fatalf("Failed to open audit log: %v", err)
	}
	defer auditFile.Close()

	// Wire up the core
	registry := session.NewRegistry(cfg.SessionTTL())
	eng := engine.New(registry, userStore)
	defender := defend.NewDefender(cfg.Defense.MaxInvalidAttempts, cfg.SuspendDuration())
	auditLog := audit.NewLogger(auditFile)
	dispatcher := dispatch.New(eng, defender, auditLog, cfg.Defense.KeyByAddress)

	// --- TCP server ---
	listener := server.NewListener(cfg.Server.Listen, func(cc *server.ClientConn) {
		server.Serve(cc, dispatcher)
	})

	go func() {
		if err := listener.ListenAndServe(); err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// --- Health server ---
	healthMux := http.NewServeMux()
	healthMux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HealthPort),
		Handler:           healthMux,
		ReadHeaderTimeout: 2 * time.Second,
	}

	go func() {
		if err := healthServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Health server error: %v", err)
		}
	}()

	fmt.Println("\nauthline is running")
	fmt.Printf("  Listen: %s\n", cfg.Server.Listen)
	fmt.Printf("  Health: port %d\n", cfg.Server.HealthPort)
	fmt.Println("\nPress Ctrl+C to shut down.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Printf("Received signal %v, shutting down...", sig)
	log.Printf("authline shut down complete.")
}
