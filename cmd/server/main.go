package main

import (
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/alienxp03/parley/internal/config"
	"github.com/alienxp03/parley/internal/events"
	"github.com/alienxp03/parley/internal/openrouter"
	"github.com/alienxp03/parley/internal/queue"
	"github.com/alienxp03/parley/internal/scheduler"
	"github.com/alienxp03/parley/internal/storage"
	"github.com/alienxp03/parley/web/handlers"
)

func main() {
	port := flag.Int("port", 0, "Server port (default from config)")
	dbPath := flag.String("db", "", "Database path (default: ~/.parley/parley.db)")
	cfgPath := flag.String("config", "", "Config file path (default: ~/.parley/config.yaml)")
	debug := flag.Bool("debug", false, "Enable debug logging")
	flag.Parse()

	// Initialize slog
	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}
	if *debug {
		opts.Level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, opts))
	slog.SetDefault(logger)

	// Load configuration
	var cfg *config.Config
	var err error
	if *cfgPath != "" {
		cfg, err = config.LoadFrom(*cfgPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	if *port != 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Storage.Path = *dbPath
	}

	// Initialize storage
	path := cfg.Storage.Path
	if path == "" {
		path = storage.DefaultDBPath()
	}

	slog.Info("Initializing storage", "path", path)
	store, err := storage.NewSQLiteStorage(path)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	if err := store.Initialize(); err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}

	// Assemble the debate pipeline
	client := openrouter.New(openrouter.Config{
		BaseURL:     cfg.OpenRouter.BaseURL,
		APIKey:      cfg.OpenRouter.APIKey,
		HTTPReferer: cfg.OpenRouter.HTTPReferer,
		AppTitle:    cfg.OpenRouter.AppTitle,
		Timeout:     cfg.OpenRouter.Timeout,
		CacheTTL:    cfg.OpenRouter.ModelCacheTTL,
	}, nil)

	broker := events.NewBroker()
	pool := queue.NewPool(cfg.Queue.Workers)
	sched := scheduler.New(store, client, broker, pool, scheduler.Config{
		DefaultJudgeModel: cfg.Defaults.JudgeModel,
	})
	pool.SetHandler(sched.Handle)
	pool.Start()
	defer pool.Stop()

	// Create handler
	h := handlers.New(store, broker, sched, client, cfg.Defaults)

	// Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	server := &http.Server{
		Addr:    addr,
		Handler: h.Routes(),
	}

	// Handle shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		<-sigCh
		slog.Info("Shutting down...")
		server.Close()
	}()

	slog.Info("Starting parley server", "url", fmt.Sprintf("http://localhost%s", addr))
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}
