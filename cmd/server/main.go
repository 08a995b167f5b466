package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"gridquest.io/internal/multiworld"
)

func main() {
	var (
		worldsPath   = flag.String("worlds", "./configs/worlds.yaml", "worlds config path (empty for single-world defaults)")
		resources    = flag.String("resources", "", "base directory for map files (overrides config)")
		dataDir      = flag.String("data", "./data", "runtime data directory (journals, session index)")
		opsAddr      = flag.String("ops_addr", "", "ops listen address (overrides config)")
		port         = flag.Int("port", 0, "primary world port (overrides the first world's port)")
		noVisualizer = flag.Bool("no_visualizer", false, "disable the observer feed; no world requires VSID")
		disableDB    = flag.Bool("disable_db", false, "disable the SQLite session index")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	path := strings.TrimSpace(*worldsPath)
	if path != "" {
		if _, err := os.Stat(path); err != nil {
			logger.Printf("worlds config not found (%s); using defaults", path)
			path = ""
		}
	}
	cfg, err := multiworld.Load(path)
	if err != nil {
		logger.Fatalf("load worlds config: %v", err)
	}
	if strings.TrimSpace(*resources) != "" {
		cfg.ResourcesPath = *resources
	}
	if strings.TrimSpace(*opsAddr) != "" {
		cfg.OpsAddr = *opsAddr
	}
	if *port > 0 && len(cfg.Worlds) > 0 {
		cfg.Worlds[0].Port = *port
	}

	host, err := multiworld.NewHost(cfg, multiworld.Options{
		NoVisualizer: *noVisualizer,
		DisableDB:    *disableDB,
		DataDir:      *dataDir,
	}, logger)
	if err != nil {
		logger.Fatalf("host: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	if err := host.Run(ctx); err != nil {
		logger.Fatalf("run: %v", err)
	}
	logger.Printf("shutdown complete")
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
