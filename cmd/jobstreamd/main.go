package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/sandeepprukmani-maker/jobstream/internal/config"
	"github.com/sandeepprukmani-maker/jobstream/internal/job"
	"github.com/sandeepprukmani-maker/jobstream/internal/runner"
	"github.com/sandeepprukmani-maker/jobstream/internal/ws"
)

func main() {
	demoMode := flag.Bool("demo", false, "Seed self-running demo jobs")
	configPath := flag.String("config", "config.yaml", "Path to config file")
	port := flag.Int("port", 0, "Override server port")
	dbPath := flag.String("db", "", "Override database path")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	if *port > 0 {
		cfg.Server.Port = *port
	}
	if *dbPath != "" {
		cfg.Server.DatabasePath = *dbPath
	}

	store, err := job.Open(cfg.Server.DatabasePath)
	if err != nil {
		log.Fatalf("Failed to open job store: %v", err)
	}
	defer store.Close()

	reg := ws.NewRegistry(cfg.Server.MaxConnections)
	dispatcher := ws.NewDispatcher(reg)
	run := runner.New(store, dispatcher)

	server := ws.NewServer(store, reg, run, cfg.Server.AllowedOrigins, cfg.Server.AuthToken)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if *demoMode {
		log.Println("Starting in demo mode")
		go run.RunDemo(ctx, cfg.Server.DemoInterval)
	}

	mux := http.NewServeMux()
	server.SetupRoutes(mux)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("Shutting down...")
		cancel()
		store.Close()
		os.Exit(0)
	}()

	if err := ws.ListenAndServe(cfg.Server.Host, cfg.Server.Port, mux); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}
