package main

import (
	"FlowLens/internal/config"
	"FlowLens/internal/engine/streamaggregator"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	flag.Parse()

	log.Println("Starting fl-engine...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.Println("Configuration loaded successfully.")

	// 2. Initialize a new StreamAggregator
	streamAgg, err := streamaggregator.NewStreamAggregator(cfg)
	if err != nil {
		log.Fatalf("Failed to create stream aggregator: %v", err)
	}

	// 3. Start the aggregator
	streamAgg.Start()

	// 4. Wait for a shutdown signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan

	log.Println("Shutdown signal received, stopping aggregator...")
	streamAgg.Stop()
	log.Println("Shutdown complete.")
}
